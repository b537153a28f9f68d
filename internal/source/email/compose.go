package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/nhle/mailreply/internal/model"
)

// NewMessageID returns a unique Message-ID (without brackets) in the
// domain of from.
func NewMessageID(from string) string {
	domain := model.DomainOf(from)
	if domain == "" {
		domain = "localhost"
	}
	return uuid.New().String() + "@" + domain
}

// BuildMessage renders msg as a multipart/alternative RFC 5322 message
// with a plain-text and an HTML part, both quoted-printable UTF-8.
func BuildMessage(msg model.OutboundMessage, messageID string, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetMessageID(messageID)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.FromAddress}})
	h.SetAddressList("To", toAddresses(msg.To))
	if len(msg.Cc) > 0 {
		h.SetAddressList("Cc", toAddresses(msg.Cc))
	}
	if msg.ReplyTo != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Name: msg.FromName, Address: msg.ReplyTo}})
	}
	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{msg.InReplyTo})
	}
	if len(msg.References) > 0 {
		h.SetMsgIDList("References", msg.References)
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	if err := writePart(w, "text/plain", msg.TextBody); err != nil {
		return nil, err
	}
	if err := writePart(w, "text/html", msg.HTMLBody); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}

	return buf.Bytes(), nil
}

func writePart(w *mail.InlineWriter, mediaType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", mediaType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		pw.Close()
		return fmt.Errorf("writing %s part: %w", mediaType, err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("closing %s part: %w", mediaType, err)
	}
	return nil
}

func toAddresses(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, &mail.Address{Address: a})
		}
	}
	return out
}
