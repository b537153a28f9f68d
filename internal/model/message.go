package model

import (
	"fmt"
	"strings"
)

// InboundMessage is a single unseen mailbox entry as seen by the
// processing pipeline. It is built once per fetch, filled in by the
// normalization and extraction steps, and discarded after processing.
type InboundMessage struct {
	// UID is the mailbox-local identifier the message was fetched with.
	UID uint32 `json:"uid"`

	// UIDValidity is the UIDVALIDITY of the mailbox UID belongs to.
	UIDValidity uint32 `json:"uid_validity"`

	// MessageID is the persistent Message-ID header, without angle brackets.
	// It is the thread key and the identifier used for mark/delete.
	MessageID string `json:"message_id"`

	// Subject is the decoded subject line.
	Subject string `json:"subject"`

	// RawBody is the undecoded message body text (everything after the
	// top-level header block), fed to the normalizer.
	RawBody string `json:"raw_body"`

	// HTMLBody is the decoded text/html part, if one exists.
	HTMLBody string `json:"html_body"`

	// HTMLOnly is set when the message has an HTML part but no plain
	// text one.
	HTMLOnly bool `json:"html_only,omitempty"`

	// From is the sender address.
	From string `json:"from"`

	// FromName is the sender display name, or the address when absent.
	FromName string `json:"from_name"`

	// To holds the To addresses in header order. May contain duplicates.
	To []string `json:"to"`

	// Cc holds the Cc addresses in header order.
	Cc []string `json:"cc"`

	// ReplyTo holds the Reply-To addresses.
	ReplyTo []string `json:"reply_to"`

	// InReplyTo is the In-Reply-To Message-ID, if present.
	InReplyTo string `json:"in_reply_to,omitempty"`

	// References is the raw References header (a space separated chain).
	References string `json:"references,omitempty"`

	// CleanBody is the normalized body, set during processing.
	CleanBody string `json:"clean_body,omitempty"`

	// ThreadBodies holds normalized bodies of the referenced messages
	// that could be resolved, oldest first.
	ThreadBodies []string `json:"thread_bodies,omitempty"`

	// CustomPrompt is the sender's custom instruction line, if any.
	CustomPrompt string `json:"custom_prompt,omitempty"`

	// Directives are routing instructions the sender wrote into the body.
	Directives []SenderDirective `json:"directives,omitempty"`
}

// AllRecipients returns To followed by Cc.
func (m *InboundMessage) AllRecipients() []string {
	all := make([]string, 0, len(m.To)+len(m.Cc))
	all = append(all, m.To...)
	return append(all, m.Cc...)
}

// SenderDomain returns the lower-cased domain part of the sender address.
func (m *InboundMessage) SenderDomain() string {
	return DomainOf(m.From)
}

// Directive returns the first sender directive of the given kind.
func (m *InboundMessage) Directive(kind DirectiveKind) (SenderDirective, bool) {
	for _, d := range m.Directives {
		if d.Kind == kind {
			return d, true
		}
	}
	return SenderDirective{}, false
}

// DirectiveKind enumerates the routing instructions a sender can give.
type DirectiveKind string

const (
	// DirectiveSendToOnly replaces the reply recipients with one address.
	DirectiveSendToOnly DirectiveKind = "send_to_only"

	// DirectiveAddRecipient adds one address to the reply Cc.
	DirectiveAddRecipient DirectiveKind = "add_recipient"
)

// SenderDirective is a routing instruction extracted from an inbound body.
type SenderDirective struct {
	Kind    DirectiveKind `json:"kind"`
	Address string        `json:"address"`
}

// DomainOf returns the lower-cased part after the last "@", or "".
func DomainOf(addr string) string {
	i := strings.LastIndex(addr, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[i+1:]))
}

// SameAddress compares two addresses case-insensitively, ignoring
// surrounding whitespace.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// MessageRef addresses a message for mark and delete. The Message-ID is
// used when present; otherwise the UID, which is only meaningful while
// the mailbox keeps the same UIDVALIDITY.
type MessageRef struct {
	MessageID   string
	UID         uint32
	UIDValidity uint32
}

// Ref returns the reference used to mark or delete m.
func (m *InboundMessage) Ref() MessageRef {
	return MessageRef{MessageID: m.MessageID, UID: m.UID, UIDValidity: m.UIDValidity}
}

func (r MessageRef) String() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	return fmt.Sprintf("uid %d", r.UID)
}
