package model

import "encoding/json"

// InstructionKind is the closed set of extra instructions an AI reply
// can carry. Anything not recognised is kept as InstructionOpaque.
type InstructionKind int

const (
	// InstructionOpaque is an unrecognised key kept verbatim.
	InstructionOpaque InstructionKind = iota

	// InstructionOverrideRecipients asks that only the reply's own
	// recipient lists be used.
	InstructionOverrideRecipients
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionOverrideRecipients:
		return "override_recipients"
	default:
		return "opaque"
	}
}

// Instruction is one extra instruction from an AI reply.
type Instruction struct {
	Kind InstructionKind `json:"kind"`

	// Key is the name the instruction was given under.
	Key string `json:"key"`

	// Enabled is the flag value for InstructionOverrideRecipients.
	Enabled bool `json:"enabled,omitempty"`

	// Raw is the verbatim JSON value for opaque instructions.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// AiReply is an AI-generated reply with its routing block removed.
type AiReply struct {
	// Content is the trimmed display text.
	Content string `json:"content"`

	// Recipients is the explicit To override list, possibly empty.
	Recipients []string `json:"recipients"`

	// Cc is the explicit Cc override list, possibly empty.
	Cc []string `json:"cc"`

	// Instructions holds every other extracted instruction.
	Instructions []Instruction `json:"instructions,omitempty"`
}

// OverridesRecipients reports whether the reply carries an enabled
// override-recipients instruction.
func (r AiReply) OverridesRecipients() bool {
	for _, in := range r.Instructions {
		if in.Kind == InstructionOverrideRecipients && in.Enabled {
			return true
		}
	}
	return false
}

// RoutingDecision is the final recipient set for one reply. To and Cc
// are deduplicated and disjoint.
type RoutingDecision struct {
	To []string `json:"to"`
	Cc []string `json:"cc"`
}

// OutboundMessage is everything the outbound transport needs to send a
// reply or a notification.
type OutboundMessage struct {
	FromAddress string
	FromName    string
	To          []string
	Cc          []string
	ReplyTo     string
	Subject     string
	HTMLBody    string
	TextBody    string

	// InReplyTo is the Message-ID being answered, without brackets.
	InReplyTo string

	// References is the Message-ID chain, oldest first, without brackets.
	References []string
}
