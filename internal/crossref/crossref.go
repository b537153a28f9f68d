package crossref

import (
	"regexp"
	"strings"
)

// messageIDPattern matches an angle-bracketed Message-ID (e.g., <abc@mail.example.com>).
var messageIDPattern = regexp.MustCompile(`<([^<>\s]+)>`)

// ExtractMessageIDs extracts the Message-IDs referenced by a References or
// In-Reply-To header value. Both "<a@x> <b@y>" and bare whitespace
// separated lists are accepted. Brackets are stripped.
// Returns a deduplicated list preserving the order of first occurrence.
func ExtractMessageIDs(header string) []string {
	var matches []string
	if found := messageIDPattern.FindAllStringSubmatch(header, -1); len(found) > 0 {
		for _, m := range found {
			matches = append(matches, m[1])
		}
	} else {
		matches = strings.Fields(header)
	}
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var result []string
	for _, m := range matches {
		m = TrimMessageID(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		result = append(result, m)
	}
	return result
}

// TrimMessageID strips surrounding whitespace and angle brackets.
func TrimMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// MergeReferences appends ids to refs, skipping any already present.
// Used to build the References header of a reply: the original chain
// followed by the original Message-ID.
func MergeReferences(refs []string, ids ...string) []string {
	seen := make(map[string]bool, len(refs)+len(ids))
	result := make([]string, 0, len(refs)+len(ids))
	for _, id := range append(append([]string{}, refs...), ids...) {
		id = TrimMessageID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
