package pipeline

import (
	"context"
	"html"
	"strings"

	"github.com/nhle/mailreply/internal/model"
)

// Notification subjects.
const (
	SubjectLimitReached    = "Günlük istek limitine ulaşıldı"
	SubjectSendFailed      = "E-posta yanıtı gönderilemedi"
	SubjectProcessingError = "E-posta işlenirken hata oluştu"
)

const (
	limitReachedBody = "Merhaba,\n\nGünlük istek limitine ulaştınız. Lütfen 24 saat sonra tekrar deneyin.\n\nSaygılarımızla,\nAi.Z"
	sendFailedBody   = "Merhaba,\n\nE-postanıza yanıt gönderilirken bir hata oluştu. Lütfen daha sonra tekrar deneyin veya sistem yöneticisiyle iletişime geçin.\n\nSaygılarımızla,\nAi.Z"
)

func processingErrorBody(detail string) string {
	return "Merhaba,\n\nE-postanız işlenirken bir hata oluştu. Lütfen daha sonra tekrar deneyin veya sistem yöneticisiyle iletişime geçin.\n\nHata: " +
		detail + "\n\nSaygılarımızla,\nAi.Z"
}

// notification builds a plain notice to one address.
func (p *Processor) notification(to, subject, body string) model.OutboundMessage {
	return model.OutboundMessage{
		FromAddress: p.cfg.Self,
		FromName:    p.cfg.FromName,
		To:          []string{to},
		Subject:     subject,
		HTMLBody:    `<div style="font-family: Arial, sans-serif;">` + nl2br(html.EscapeString(body)) + `</div>`,
		TextBody:    body,
	}
}

// notify sends a notification. Failures are logged and never returned.
func (p *Processor) notify(ctx context.Context, to, subject, body string) {
	if strings.TrimSpace(to) == "" {
		return
	}
	if err := p.transport.Send(ctx, p.notification(to, subject, body)); err != nil {
		p.logger.Error("failed to send notification", "to", to, "subject", subject, "err", err)
		return
	}
	p.logger.Info("notification sent", "to", to, "subject", subject)
}

func nl2br(s string) string {
	return strings.ReplaceAll(s, "\n", "<br>\n")
}
