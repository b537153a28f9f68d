package email

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/samber/lo"

	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/source"
)

// Sender delivers outbound messages over SMTP. One connection is opened
// per message.
type Sender struct {
	addr       string
	username   string
	password   string
	encryption source.Encryption
	logger     *log.Logger
	now        func() time.Time
}

// NewSender creates a sender for the given server settings.
func NewSender(cfg model.MailServerConfig, logger *log.Logger) (*Sender, error) {
	enc, err := source.ParseEncryption(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return &Sender{
		addr:       cfg.Addr(),
		username:   cfg.Username,
		password:   cfg.Password,
		encryption: enc,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Send renders msg and submits it to every To and Cc recipient.
func (s *Sender) Send(ctx context.Context, msg model.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rcpts := lo.Uniq(append(append([]string{}, msg.To...), msg.Cc...))
	if len(rcpts) == 0 {
		return fmt.Errorf("sending %q: no recipients", msg.Subject)
	}

	raw, err := BuildMessage(msg, NewMessageID(msg.FromAddress), s.now())
	if err != nil {
		return fmt.Errorf("building message: %w", err)
	}

	client, err := s.dial()
	if err != nil {
		return fmt.Errorf("connecting to SMTP %s: %w", s.addr, err)
	}
	defer client.Close()

	if s.username != "" {
		auth := sasl.NewPlainClient("", s.username, s.password)
		if err := client.Auth(auth); err != nil {
			return &source.AuthError{
				Service: source.ServiceSMTP,
				Message: fmt.Sprintf("authentication failed for %s: %v", s.username, err),
			}
		}
	}

	if err := client.SendMail(msg.FromAddress, rcpts, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("sending %q: %w", msg.Subject, err)
	}

	// The message is accepted at this point.
	if err := client.Quit(); err != nil {
		s.logger.Warn("closing SMTP session", "addr", s.addr, "err", err)
	}
	return nil
}

func (s *Sender) dial() (*smtp.Client, error) {
	switch s.encryption {
	case source.EncryptionImplicitTLS:
		return smtp.DialTLS(s.addr, nil)
	case source.EncryptionStartTLS:
		return smtp.DialStartTLS(s.addr, nil)
	default:
		return smtp.Dial(s.addr)
	}
}
