package pipeline

import (
	"strings"

	"github.com/samber/lo"

	"github.com/nhle/mailreply/internal/model"
)

// Gate reasons, also used as outcome details.
const (
	ReasonTooManyRecipients = "too-many-recipients"
	ReasonBlockedRecipient  = "blocked-recipient"
	ReasonBlockedSender     = "blocked-sender"
	ReasonCcOnly            = "cc-only"
	ReasonSenderNotAllowed  = "sender-not-allowed"
	ReasonDomainNotAllowed  = "domain-not-allowed"
)

// Gate is one policy check run before the rate limiter. Pass reports
// whether the message may continue.
type Gate struct {
	Reason string
	Pass   func(cfg Config, msg *model.InboundMessage) bool
}

// Gates are evaluated in this order; the first failing gate drops the
// message.
var Gates = []Gate{
	{ReasonTooManyRecipients, withinRecipientLimit},
	{ReasonBlockedRecipient, noBlockedRecipient},
	{ReasonBlockedSender, senderNotBlocked},
	{ReasonCcOnly, notCcOnly},
	{ReasonSenderNotAllowed, senderAllowed},
	{ReasonDomainNotAllowed, domainAllowed},
}

// checkGates returns the reason of the first failing gate, or "".
func checkGates(cfg Config, msg *model.InboundMessage) string {
	for _, g := range Gates {
		if !g.Pass(cfg, msg) {
			return g.Reason
		}
	}
	return ""
}

// A non-positive limit disables the check.
func withinRecipientLimit(cfg Config, msg *model.InboundMessage) bool {
	return cfg.MaxRecipients <= 0 || len(msg.AllRecipients()) <= cfg.MaxRecipients
}

func noBlockedRecipient(cfg Config, msg *model.InboundMessage) bool {
	return !lo.SomeBy(msg.AllRecipients(), func(addr string) bool {
		return containsAddress(cfg.BlockedRecipients, addr)
	})
}

func senderNotBlocked(cfg Config, msg *model.InboundMessage) bool {
	return !containsAddress(cfg.BlockedSenders, msg.From)
}

// notCcOnly fails when suppression is on and the service address is in
// Cc but not in To.
func notCcOnly(cfg Config, msg *model.InboundMessage) bool {
	if !cfg.IgnoreCcEmails {
		return true
	}
	return containsAddress(msg.To, cfg.Self) || !containsAddress(msg.Cc, cfg.Self)
}

// An empty allowlist admits every sender.
func senderAllowed(cfg Config, msg *model.InboundMessage) bool {
	return len(cfg.ReplyAllowedSenders) == 0 || containsAddress(cfg.ReplyAllowedSenders, msg.From)
}

func domainAllowed(cfg Config, msg *model.InboundMessage) bool {
	domain := msg.SenderDomain()
	if domain == "" {
		return false
	}
	return lo.ContainsBy(cfg.AllowedDomains, func(d string) bool {
		return strings.EqualFold(strings.TrimSpace(d), domain)
	})
}

func containsAddress(list []string, addr string) bool {
	return lo.ContainsBy(list, func(a string) bool {
		return model.SameAddress(a, addr)
	})
}
