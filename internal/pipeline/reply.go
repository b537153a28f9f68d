package pipeline

import (
	"html"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/nhle/mailreply/internal/crossref"
	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/normalize"
)

const sentLayout = "2006-01-02 15:04:05"

// RenderMarkdown converts AI markdown to an HTML fragment.
func RenderMarkdown(content string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank})
	return string(markdown.ToHTML([]byte(content), p, r))
}

// ReplySubject prefixes subject with "Re: " unless it already has it.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// buildReply assembles the outbound reply to msg.
func (p *Processor) buildReply(msg *model.InboundMessage, content string, decision model.RoutingDecision) model.OutboundMessage {
	sent := p.now()

	return model.OutboundMessage{
		FromAddress: p.cfg.Self,
		FromName:    p.cfg.FromName,
		To:          decision.To,
		Cc:          decision.Cc,
		ReplyTo:     p.cfg.Self,
		Subject:     ReplySubject(msg.Subject),
		HTMLBody:    p.replyHTML(msg, content, sent),
		TextBody:    p.replyText(msg, content, sent),
		InReplyTo:   msg.MessageID,
		References:  crossref.MergeReferences(crossref.ExtractMessageIDs(msg.References), msg.MessageID),
	}
}

func (p *Processor) replyHTML(msg *model.InboundMessage, content string, sent time.Time) string {
	var sb strings.Builder
	sb.WriteString(`<div style="font-family: Arial, sans-serif; margin-bottom: 20px;">`)
	sb.WriteString(RenderMarkdown(content))
	sb.WriteString(`</div>`)

	if !p.cfg.IncludeThreadEmails {
		return sb.String()
	}

	sb.WriteString(`<div style="border-top: 1px solid #ccc; margin-top: 20px; padding-top: 10px; color: #777;">`)
	sb.WriteString(`<p><strong>From:</strong> ` + html.EscapeString(msg.FromName) + ` &lt;` + html.EscapeString(msg.From) + `&gt;<br>`)
	sb.WriteString(`<strong>Sent:</strong> ` + sent.Format(sentLayout) + `<br>`)
	sb.WriteString(`<strong>To:</strong> ` + html.EscapeString(strings.Join(msg.To, ", ")) + `<br>`)
	if len(msg.Cc) > 0 {
		sb.WriteString(`<strong>Cc:</strong> ` + html.EscapeString(strings.Join(msg.Cc, ", ")) + `<br>`)
	}
	sb.WriteString(`<strong>Subject:</strong> ` + html.EscapeString(msg.Subject) + `</p>`)

	if strings.TrimSpace(msg.HTMLBody) != "" {
		sb.WriteString(`<div style="margin-top: 20px; padding: 10px; border-left: 4px solid #ccc;">`)
		sb.WriteString(msg.HTMLBody)
	} else {
		sb.WriteString(`<div style="margin-top: 20px; padding: 10px; border-left: 4px solid #ccc; white-space: pre-wrap;">`)
		sb.WriteString(html.EscapeString(quotedBody(msg)))
	}
	sb.WriteString(`</div></div>`)

	return sb.String()
}

func (p *Processor) replyText(msg *model.InboundMessage, content string, sent time.Time) string {
	text := content
	if normalize.HasMarkup(content) {
		text = normalize.HTMLToText(content)
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(text) + "\n\n")

	if !p.cfg.IncludeThreadEmails {
		return sb.String()
	}

	sb.WriteString("-----Original Message-----\n")
	sb.WriteString("From: " + msg.FromName + " <" + msg.From + ">\n")
	sb.WriteString("Sent: " + sent.Format(sentLayout) + "\n")
	sb.WriteString("To: " + strings.Join(msg.To, ", ") + "\n")
	if len(msg.Cc) > 0 {
		sb.WriteString("Cc: " + strings.Join(msg.Cc, ", ") + "\n")
	}
	sb.WriteString("Subject: " + msg.Subject + "\n\n")
	sb.WriteString(quotedBody(msg))

	return sb.String()
}

// quotedBody is the original text shown under a reply.
func quotedBody(msg *model.InboundMessage) string {
	if msg.CleanBody != "" {
		return msg.CleanBody
	}
	return normalize.Normalize(msg.RawBody)
}
