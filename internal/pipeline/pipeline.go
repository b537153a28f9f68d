// Package pipeline runs unseen messages through the gates, the AI
// provider and the recipient router, one message at a time.
package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/mailreply/internal/ai"
	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/ratelimit"
	"github.com/nhle/mailreply/internal/route"
	"github.com/nhle/mailreply/internal/store"
	"github.com/nhle/mailreply/internal/thread"
)

// MailStore is the mailbox the pipeline reads from. Mark and delete
// address messages by reference and are safe to retry.
type MailStore interface {
	ListUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) (*model.InboundMessage, error)
	MarkRead(ctx context.Context, ref model.MessageRef) error
	Delete(ctx context.Context, ref model.MessageRef) error
	thread.Lookup
}

// Transport sends replies and notifications.
type Transport interface {
	Send(ctx context.Context, msg model.OutboundMessage) error
}

// Responder produces reply text for a request.
type Responder interface {
	Complete(ctx context.Context, req ai.Request) (string, error)
}

// Limiter gates senders by request rate.
type Limiter interface {
	RecordIfAllowed(ctx context.Context, sender string) (ratelimit.Decision, error)
}

// OutcomeRecorder persists the outcome of each processed message.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, rec store.OutcomeRecord) error
}

// Config is the processing policy.
type Config struct {
	// Self is the mailbox address replies are sent from.
	Self     string
	FromName string

	MaxRecipients       int
	BlockedRecipients   []string
	BlockedSenders      []string
	ReplyAllowedSenders []string
	AllowedDomains      []string
	IgnoreCcEmails      bool

	AllowAIRecipients   bool
	SenderDirectives    bool
	IncludeThreadEmails bool
	SystemPrompt        string

	// Pause is the wait between two messages of a batch.
	Pause time.Duration

	// MarkReadRetryDelay is the wait before retrying a failed mark-read.
	MarkReadRetryDelay time.Duration
}

// ConfigFrom builds a Config from the application configuration.
func ConfigFrom(cfg *model.AppConfig) Config {
	return Config{
		Self:                cfg.SelfAddress(),
		FromName:            cfg.SMTP.FromName,
		MaxRecipients:       cfg.Policy.MaxRecipients,
		BlockedRecipients:   cfg.Policy.BlockedRecipients,
		BlockedSenders:      cfg.Policy.BlockedSenders,
		ReplyAllowedSenders: cfg.Policy.ReplyAllowedSenders,
		AllowedDomains:      cfg.Policy.AllowedDomains,
		IgnoreCcEmails:      cfg.Policy.IgnoreCcEmails,
		AllowAIRecipients:   cfg.Policy.AllowAIRecipients,
		SenderDirectives:    cfg.Policy.SenderDirectives,
		IncludeThreadEmails: cfg.Reply.IncludeThreadEmails,
		SystemPrompt:        cfg.Reply.DefaultPrompt,
		Pause:               time.Duration(cfg.Reply.PauseMillis) * time.Millisecond,
		MarkReadRetryDelay:  time.Second,
	}
}

// Processor runs the per-message state machine. It is not safe for
// concurrent use: messages must be processed one at a time so the rate
// limiter is never double-spent.
type Processor struct {
	cfg       Config
	mail      MailStore
	transport Transport
	responder Responder
	limiter   Limiter
	assembler *thread.Assembler
	router    *route.Router
	outcomes  OutcomeRecorder
	logger    *log.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration)
}

// Option configures a Processor.
type Option func(*Processor)

// WithOutcomeRecorder records every outcome with rec.
func WithOutcomeRecorder(rec OutcomeRecorder) Option {
	return func(p *Processor) { p.outcomes = rec }
}

// WithRouter replaces the default recipient router.
func WithRouter(r *route.Router) Option {
	return func(p *Processor) { p.router = r }
}

// WithClock sets the time source used for quoted headers and outcome
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithSleep replaces the function used for pauses and retry delays.
func WithSleep(sleep func(context.Context, time.Duration)) Option {
	return func(p *Processor) { p.sleep = sleep }
}

// New creates a Processor.
func New(
	cfg Config,
	mail MailStore,
	transport Transport,
	responder Responder,
	limiter Limiter,
	logger *log.Logger,
	opts ...Option,
) *Processor {
	p := &Processor{
		cfg:       cfg,
		mail:      mail,
		transport: transport,
		responder: responder,
		limiter:   limiter,
		assembler: thread.NewAssembler(mail, logger),
		router:    route.NewRouter(),
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
