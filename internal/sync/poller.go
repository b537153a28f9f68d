package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/mailreply/internal/pipeline"
	"github.com/nhle/mailreply/internal/source"
)

// SyncState represents what the poller is doing.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncStatus is a snapshot of the poller state.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Batches  int
	Error    error
}

// BatchResult is reported after every batch.
type BatchResult struct {
	Summary  pipeline.Summary
	Error    error
	Started  time.Time
	Finished time.Time
}

// Runner runs one batch over the mailbox.
type Runner interface {
	RunBatch(ctx context.Context) (pipeline.Summary, error)
}

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 60 * time.Second

// batchTimeout bounds a single batch. A batch is not interrupted by
// Run's context, only by this timeout.
const batchTimeout = 30 * time.Minute

// Option configures a Poller.
type Option func(*Poller)

// WithResultHandler calls fn after each batch, on the polling goroutine.
func WithResultHandler(fn func(BatchResult)) Option {
	return func(p *Poller) { p.onResult = fn }
}

// Poller runs batches on an interval and on demand.
type Poller struct {
	runner    Runner
	interval  time.Duration
	logger    *log.Logger
	onResult  func(BatchResult)
	triggerCh chan struct{}
	now       func() time.Time

	mu     gosync.Mutex
	status SyncStatus
}

// New creates a Poller running runner every interval.
func New(runner Runner, interval time.Duration, logger *log.Logger, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		runner:    runner,
		interval:  interval,
		logger:    logger,
		triggerCh: make(chan struct{}, 1),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled. The first batch starts immediately.
// A batch that is running when ctx is cancelled is allowed to finish
// before Run returns.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("watching mailbox", "interval", p.interval)
	p.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopped watching mailbox")
			return nil
		case <-ticker.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.logger.Info("batch triggered")
			p.runOnce(ctx)
			ticker.Reset(p.interval)
		}
	}
}

// Trigger requests an immediate batch. Requests made while one is
// already pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the current poller state.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) runOnce(parent context.Context) {
	if parent.Err() != nil {
		return
	}

	p.setState(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), batchTimeout)
	defer cancel()

	res := BatchResult{Started: p.now()}
	res.Summary, res.Error = p.runner.RunBatch(ctx)
	res.Finished = p.now()

	switch {
	case res.Error == nil:
		p.setState(SyncIdle, nil)
	case source.IsAuthError(res.Error):
		p.logger.Error("authentication failed, check credentials", "err", res.Error)
		p.setState(SyncError, res.Error)
	case errors.Is(res.Error, context.DeadlineExceeded):
		p.logger.Error("batch timed out", "timeout", batchTimeout)
		p.setState(SyncError, res.Error)
	default:
		p.logger.Error("batch failed", "err", res.Error)
		p.setState(SyncError, res.Error)
	}

	if p.onResult != nil {
		p.onResult(res)
	}
}

func (p *Poller) setState(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state != SyncRunning {
		p.status.Batches++
	}
	if state == SyncIdle {
		p.status.LastSync = p.now()
	}
}
