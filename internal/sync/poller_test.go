package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailreply/internal/logging"
	"github.com/nhle/mailreply/internal/pipeline"
	"github.com/nhle/mailreply/internal/source"
)

type fakeRunner struct {
	started chan struct{}
	release chan struct{}
	ctxErrs chan error
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		started: make(chan struct{}, 8),
		ctxErrs: make(chan error, 8),
	}
}

func (r *fakeRunner) RunBatch(ctx context.Context) (pipeline.Summary, error) {
	r.started <- struct{}{}
	if r.release != nil {
		<-r.release
	}
	r.ctxErrs <- ctx.Err()
	return pipeline.Summary{}, r.err
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
}

func runPoller(ctx context.Context, p *Poller) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return done
}

func TestPoller_RunsImmediatelyAndStops(t *testing.T) {
	runner := newFakeRunner()
	var results []BatchResult
	p := New(runner, time.Hour, logging.Discard(), WithResultHandler(func(r BatchResult) {
		results = append(results, r)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runPoller(ctx, p)

	waitFor(t, runner.started)
	assert.NoError(t, <-runner.ctxErrs)
	cancel()

	require.NoError(t, <-done)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Error)
	assert.Equal(t, SyncIdle, p.Status().State)
	assert.Equal(t, 1, p.Status().Batches)
}

func TestPoller_TriggerRunsBatch(t *testing.T) {
	runner := newFakeRunner()
	p := New(runner, time.Hour, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := runPoller(ctx, p)

	waitFor(t, runner.started)
	p.Trigger()
	waitFor(t, runner.started)

	cancel()
	require.NoError(t, <-done)
}

func TestPoller_InterruptedBatchCompletes(t *testing.T) {
	runner := newFakeRunner()
	runner.release = make(chan struct{})
	p := New(runner, time.Hour, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := runPoller(ctx, p)

	waitFor(t, runner.started)
	cancel()
	close(runner.release)

	require.NoError(t, <-done)
	assert.NoError(t, <-runner.ctxErrs, "batch context must survive cancellation of Run")
	assert.Equal(t, 1, p.Status().Batches)
}

func TestPoller_AuthErrorSetsErrorState(t *testing.T) {
	runner := newFakeRunner()
	runner.err = &source.AuthError{Service: source.ServiceIMAP, Message: "invalid credentials"}
	p := New(runner, time.Hour, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := runPoller(ctx, p)

	waitFor(t, runner.started)
	<-runner.ctxErrs
	cancel()
	require.NoError(t, <-done)

	st := p.Status()
	assert.Equal(t, SyncError, st.State)
	assert.True(t, source.IsAuthError(st.Error))
	assert.True(t, st.LastSync.IsZero())
}

func TestPoller_TriggerCoalesces(t *testing.T) {
	p := New(newFakeRunner(), 0, logging.Discard())
	assert.Equal(t, DefaultInterval, p.interval)

	p.Trigger()
	p.Trigger()
	assert.Len(t, p.triggerCh, 1)
}

func TestSyncState_String(t *testing.T) {
	assert.Equal(t, "idle", SyncIdle.String())
	assert.Equal(t, "running", SyncRunning.String())
	assert.Equal(t, "error", SyncError.String())
	assert.Equal(t, "unknown", SyncState(9).String())
}
