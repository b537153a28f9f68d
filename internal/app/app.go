// Package app wires configuration, storage and the service clients into
// a ready-to-run processor.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/mailreply/internal/ai"
	"github.com/nhle/mailreply/internal/logging"
	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/pipeline"
	"github.com/nhle/mailreply/internal/ratelimit"
	"github.com/nhle/mailreply/internal/source/email"
	"github.com/nhle/mailreply/internal/store"
	appsync "github.com/nhle/mailreply/internal/sync"
)

// Storage is the request history together with the limiter over it.
type Storage struct {
	Backend store.HistoryBackend
	Limiter *ratelimit.Limiter
}

// OpenStorage opens the configured history backend.
func OpenStorage(cfg *model.AppConfig) (*Storage, error) {
	backend, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	return &Storage{
		Backend: backend,
		Limiter: ratelimit.New(backend, cfg.Policy.DailyRequestLimit),
	}, nil
}

// Outcomes returns the outcome log when the backend keeps one.
func (s *Storage) Outcomes() (store.OutcomeLog, bool) {
	l, ok := s.Backend.(store.OutcomeLog)
	return l, ok
}

// Close releases the backend.
func (s *Storage) Close() error {
	return s.Backend.Close()
}

// App is a configured responder.
type App struct {
	*Storage

	cfg       *model.AppConfig
	logger    *log.Logger
	processor *pipeline.Processor
}

// New validates cfg and builds the processor with its collaborators.
// Nothing connects until the first batch runs.
func New(cfg *model.AppConfig, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mailbox, err := email.NewMailbox(cfg.IMAP)
	if err != nil {
		return nil, err
	}
	sender, err := email.NewSender(cfg.SMTP, logging.ForComponent(logger, "smtp"))
	if err != nil {
		return nil, err
	}

	st, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	provider := ai.NewProvider(cfg.OpenAI, logging.ForComponent(logger, "ai"))

	var opts []pipeline.Option
	if outcomes, ok := st.Outcomes(); ok {
		opts = append(opts, pipeline.WithOutcomeRecorder(outcomes))
	}

	processor := pipeline.New(
		pipeline.ConfigFrom(cfg),
		mailbox,
		sender,
		provider,
		st.Limiter,
		logging.ForComponent(logger, "pipeline"),
		opts...,
	)

	return &App{
		Storage:   st,
		cfg:       cfg,
		logger:    logger,
		processor: processor,
	}, nil
}

// RunBatch processes the unseen messages once.
func (a *App) RunBatch(ctx context.Context) (pipeline.Summary, error) {
	return a.processor.RunBatch(ctx)
}

// NewPoller returns a poller running batches at the configured interval.
func (a *App) NewPoller(opts ...appsync.Option) *appsync.Poller {
	interval := time.Duration(a.cfg.Watch.IntervalSec) * time.Second
	return appsync.New(a, interval, logging.ForComponent(a.logger, "watch"), opts...)
}

// Close releases storage.
func (a *App) Close() error {
	if a.Storage == nil {
		return nil
	}
	if err := a.Storage.Close(); err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}
	return nil
}
