package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nhle/mailreply/internal/model"
	"github.com/nhle/mailreply/internal/ratelimit"
)

// ErrCorruptHistory is returned when a stored request history cannot be
// decoded.
var ErrCorruptHistory = errors.New("corrupt request history")

// OutcomeRecord is one processed message in the outcome log.
type OutcomeRecord struct {
	ID          string    `db:"id"`
	MessageID   string    `db:"message_id"`
	Sender      string    `db:"sender"`
	Subject     string    `db:"subject"`
	Outcome     string    `db:"outcome"`
	Detail      string    `db:"detail"`
	ProcessedAt time.Time `db:"processed_at"`
}

// HistoryBackend is a request-history store that owns a resource.
type HistoryBackend interface {
	ratelimit.HistoryStore
	io.Closer
}

// OutcomeLog records and lists processed-message outcomes.
type OutcomeLog interface {
	RecordOutcome(ctx context.Context, rec OutcomeRecord) error
	RecentOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error)
}

// Open returns the history backend selected by cfg. The SQLite backend
// also implements OutcomeLog.
func Open(cfg model.StorageConfig) (HistoryBackend, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.RequestHistoryFile)
	case "sqlite":
		return NewSQLiteStore(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
