package directive

import (
	"strings"

	"github.com/nhle/mailreply/internal/model"
)

// Inbound holds what the sender wrote for the responder itself, as
// opposed to the message text.
type Inbound struct {
	// CustomPrompt is the first non-empty line of the body.
	CustomPrompt string

	// Directives are routing instructions, empty unless requested.
	Directives []model.SenderDirective
}

// ExtractInbound reads the custom prompt line from a normalized body and,
// when withDirectives is set, the sender's routing directives.
func ExtractInbound(body string, withDirectives bool) Inbound {
	var in Inbound

	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			in.CustomPrompt = line
			break
		}
	}

	if !withDirectives {
		return in
	}

	if m := replyOnlyPattern.FindStringSubmatch(body); m != nil {
		in.Directives = append(in.Directives, model.SenderDirective{
			Kind:    model.DirectiveSendToOnly,
			Address: strings.TrimSpace(m[1]),
		})
	}
	if m := alsoAddPattern.FindStringSubmatch(body); m != nil {
		in.Directives = append(in.Directives, model.SenderDirective{
			Kind:    model.DirectiveAddRecipient,
			Address: strings.TrimSpace(m[1]),
		})
	}

	return in
}

// Apply stores the extracted values on msg.
func (in Inbound) Apply(msg *model.InboundMessage) {
	msg.CustomPrompt = in.CustomPrompt
	msg.Directives = in.Directives
}
