// Package ratelimit caps how many requests each sender gets answered in a
// rolling window.
//
// The limiter holds no lock of its own. It is safe for concurrent use only
// as far as the HistoryStore's Update is atomic; both stores in
// internal/store serialize Update, but the pipeline calls the limiter from
// a single goroutine anyway.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultWindow is the rolling window requests are counted over.
const DefaultWindow = 24 * time.Hour

// History maps a sender address to its request times, oldest first.
type History map[string][]time.Time

// Cleanup drops timestamps before cutoff and senders left with none.
// It reports whether anything was removed.
func (h History) Cleanup(cutoff time.Time) bool {
	modified := false
	for sender, stamps := range h {
		kept := stamps[:0]
		for _, ts := range stamps {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) != len(stamps) {
			modified = true
		}
		if len(kept) == 0 {
			delete(h, sender)
			continue
		}
		h[sender] = kept
	}
	return modified
}

// Clone returns a deep copy of h.
func (h History) Clone() History {
	out := make(History, len(h))
	for sender, stamps := range h {
		out[sender] = append([]time.Time(nil), stamps...)
	}
	return out
}

// HistoryStore persists the request history.
type HistoryStore interface {
	// Load returns a snapshot of the stored history.
	Load(ctx context.Context) (History, error)

	// Update runs fn on the current history and persists the result as
	// one atomic read-modify-write. fn receives a History it may mutate
	// and return. If fn returns an error nothing is written.
	Update(ctx context.Context, fn func(History) (History, error)) error
}

// Decision is the result of one rate-limit check.
type Decision struct {
	Accepted bool

	// Used is the number of requests in the window, including this one
	// when accepted.
	Used  int
	Limit int
}

// Usage summarizes one sender's requests in the current window.
type Usage struct {
	Sender string
	Count  int
	Oldest time.Time
	Newest time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithWindow replaces DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// Limiter enforces a per-sender request limit over a rolling window.
type Limiter struct {
	store  HistoryStore
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a Limiter allowing limit requests per sender per window.
func New(store HistoryStore, limit int, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  limit,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured per-window limit.
func (l *Limiter) Limit() int {
	return l.limit
}

// RecordIfAllowed expires old entries, then either records a request for
// sender or rejects it when the sender already has limit requests in the
// window. Every accepted call consumes exactly one slot.
func (l *Limiter) RecordIfAllowed(ctx context.Context, sender string) (Decision, error) {
	key := senderKey(sender)
	var d Decision

	err := l.store.Update(ctx, func(h History) (History, error) {
		if h == nil {
			h = History{}
		}
		now := l.now()
		h.Cleanup(now.Add(-l.window))

		used := len(h[key])
		if used >= l.limit {
			d = Decision{Accepted: false, Used: used, Limit: l.limit}
			return h, nil
		}

		h[key] = append(h[key], now)
		d = Decision{Accepted: true, Used: used + 1, Limit: l.limit}
		return h, nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("recording request for %s: %w", sender, err)
	}

	return d, nil
}

// Usage returns per-sender usage within the current window, most active
// sender first.
func (l *Limiter) Usage(ctx context.Context) ([]Usage, error) {
	h, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading request history: %w", err)
	}

	h = h.Clone()
	h.Cleanup(l.now().Add(-l.window))

	usage := make([]Usage, 0, len(h))
	for sender, stamps := range h {
		sorted := append([]time.Time(nil), stamps...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		usage = append(usage, Usage{
			Sender: sender,
			Count:  len(sorted),
			Oldest: sorted[0],
			Newest: sorted[len(sorted)-1],
		})
	}

	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Count != usage[j].Count {
			return usage[i].Count > usage[j].Count
		}
		return usage[i].Sender < usage[j].Sender
	})
	return usage, nil
}

func senderKey(sender string) string {
	return strings.ToLower(strings.TrimSpace(sender))
}
