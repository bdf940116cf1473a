package refresh_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-pos-client/auth"
	"github.com/jrsteele09/go-pos-client/auth/refresh"
	"github.com/jrsteele09/go-pos-client/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedRefresher blocks every call until release is closed and counts how often it was called.
type gatedRefresher struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	err     error
}

func newGatedRefresher(err error) *gatedRefresher {
	return &gatedRefresher{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
		err:     err,
	}
}

func (r *gatedRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	r.entered <- struct{}{}
	select {
	case <-r.release:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitEntered(t *testing.T, r *gatedRefresher) {
	t.Helper()
	select {
	case <-r.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not started")
	}
}

func TestCoordinator_ConcurrentCallersShareOneRefresh(t *testing.T) {
	r := newGatedRefresher(nil)
	c := refresh.NewCoordinator(r)

	const callers = 5
	results := make(chan error, callers)
	go func() { results <- c.Refresh(context.Background()) }()
	waitEntered(t, r)
	require.Equal(t, refresh.Refreshing, c.State())

	var wg sync.WaitGroup
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Refresh(context.Background())
		}()
	}
	// give the joiners time to attach to the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(r.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, <-results)
	}
	require.Equal(t, int32(1), r.calls.Load())
	require.Equal(t, refresh.Idle, c.State())
}

func TestCoordinator_WaitersShareFailure(t *testing.T) {
	r := newGatedRefresher(errors.Wrap(auth.ErrRefreshDenied, "status 401"))
	c := refresh.NewCoordinator(r)

	results := make(chan error, 3)
	go func() { results <- c.Refresh(context.Background()) }()
	waitEntered(t, r)
	go func() { results <- c.Refresh(context.Background()) }()
	go func() { results <- c.Refresh(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(r.release)

	for i := 0; i < 3; i++ {
		err := <-results
		require.ErrorIs(t, err, auth.ErrRefreshDenied)
		require.True(t, auth.IsTerminal(err))
	}
	require.Equal(t, int32(1), r.calls.Load())
}

func TestCoordinator_MarkerClearedAfterSettlement(t *testing.T) {
	r := newGatedRefresher(nil)
	close(r.release)
	c := refresh.NewCoordinator(r)

	require.NoError(t, c.Refresh(context.Background()))
	<-r.entered
	require.NoError(t, c.Refresh(context.Background()))
	<-r.entered

	require.Equal(t, int32(2), r.calls.Load(), "a later caller starts a new refresh")
}

func TestCoordinator_WaiterCancellationDoesNotCancelRefresh(t *testing.T) {
	r := newGatedRefresher(nil)
	c := refresh.NewCoordinator(r)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- c.Refresh(ctx) }()
	waitEntered(t, r)

	second := make(chan error, 1)
	go func() { second <- c.Refresh(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-first
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, auth.IsTerminal(err))
	require.Equal(t, refresh.Refreshing, c.State())

	close(r.release)
	require.NoError(t, <-second)
	require.Equal(t, int32(1), r.calls.Load())
}

func TestCoordinator_TimeoutIsDenied(t *testing.T) {
	r := newGatedRefresher(nil)
	c := refresh.NewCoordinator(r, refresh.WithTimeout(20*time.Millisecond))

	err := c.Refresh(context.Background())

	require.ErrorIs(t, err, auth.ErrRefreshDenied)
	require.Equal(t, refresh.Idle, c.State())
}

func TestCoordinator_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := newGatedRefresher(nil)
	close(r.release)
	c := refresh.NewCoordinator(r, refresh.WithMetrics(m))

	require.NoError(t, c.Refresh(context.Background()))

	count, err := testutil.GatherAndCount(reg, "pos_client_refresh_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
