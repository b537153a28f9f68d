// Package directive extracts routing instructions from AI replies and
// from inbound message bodies.
package directive

import (
	"bytes"
	"encoding/json"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/nhle/mailreply/internal/model"
)

// Keys of the structured block with a fixed meaning.
const (
	KeyRecipients            = "recipients"
	KeyCc                    = "cc"
	KeyOverrideRecipients    = "override_recipients"
	KeyOnlyToTheseRecipients = "only_to_these_recipients"
)

var (
	jsonBlockPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

	// replyOnlyPattern matches "Cevabı sadece a@b.com'a gönder".
	replyOnlyPattern = regexp.MustCompile(`(?i)cevab[ıi]\s+sadece\s+([^\s,;]+@[^\s,;]+)'[ae]\s+gönder`)

	// alsoAddPattern matches "Şunu da ekle: a@b.com".
	alsoAddPattern = regexp.MustCompile(`(?i)şunu\s+da\s+ekle:\s+([^\s,;]+@[^\s,;]+)`)
)

// ParseReply splits raw AI output into display content and routing
// instructions. A fenced json block that decodes to an object wins; the
// Turkish natural-language patterns are only tried when there is none.
func ParseReply(text string) model.AiReply {
	if reply, ok := parseStructured(text); ok {
		return reply
	}
	return parseNatural(text)
}

func parseStructured(text string) (model.AiReply, bool) {
	m := jsonBlockPattern.FindStringSubmatch(text)
	if m == nil {
		return model.AiReply{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(m[1]), &fields); err != nil || fields == nil {
		return model.AiReply{}, false
	}

	reply := model.AiReply{
		Content: strings.TrimSpace(strings.ReplaceAll(text, m[0], "")),
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		raw := fields[key]
		switch key {
		case KeyRecipients:
			reply.Recipients = stringArray(raw)
		case KeyCc:
			reply.Cc = stringArray(raw)
		case KeyOverrideRecipients, KeyOnlyToTheseRecipients:
			reply.Instructions = append(reply.Instructions, model.Instruction{
				Kind:    model.InstructionOverrideRecipients,
				Key:     key,
				Enabled: truthy(raw),
			})
		default:
			reply.Instructions = append(reply.Instructions, model.Instruction{
				Kind: model.InstructionOpaque,
				Key:  key,
				Raw:  raw,
			})
		}
	}

	return reply, true
}

func parseNatural(text string) model.AiReply {
	reply := model.AiReply{Content: strings.TrimSpace(text)}

	if m := replyOnlyPattern.FindStringSubmatch(text); m != nil {
		reply.Recipients = []string{strings.TrimSpace(m[1])}
		reply.Instructions = append(reply.Instructions, model.Instruction{
			Kind:    model.InstructionOverrideRecipients,
			Key:     KeyOverrideRecipients,
			Enabled: true,
		})
	}
	if m := alsoAddPattern.FindStringSubmatch(text); m != nil {
		reply.Cc = append(reply.Cc, strings.TrimSpace(m[1]))
	}

	return reply
}

// stringArray returns the string elements of a JSON array. Anything that
// is not an array yields nil; non-string elements are skipped.
func stringArray(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// truthy interprets a weakly typed flag value.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "true":
		return true
	case "false", "null", `""`, "0", "[]", "{}":
		return false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return err != nil || b
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0
	}
	return true
}
