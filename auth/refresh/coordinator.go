// Package refresh guarantees that at most one refresh call is outstanding at a time. Every caller that asks for a
// refresh while one is running waits for it and receives the same outcome.
package refresh

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-pos-client/auth"
	"github.com/jrsteele09/go-pos-client/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey     = "refresh"
	defaultTimeout = 30 * time.Second
)

// Refresher performs the actual refresh call, normally *auth.SessionRefresher.
type Refresher interface {
	Refresh(ctx context.Context) error
}

var (
	_ Refresher = (*auth.Client)(nil)
	_ Refresher = (*auth.SessionRefresher)(nil)
)

// Status is the coordinator's observable state.
type Status int32

const (
	// Idle means no refresh is outstanding.
	Idle Status = iota
	// Refreshing means a refresh call is outstanding.
	Refreshing
)

func (s Status) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// Coordinator serializes refreshes: callers arriving while one runs share its outcome.
type Coordinator struct {
	refresher Refresher
	group     singleflight.Group
	status    atomic.Int32
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// CoordinatorOption defines a function type to modify the Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithTimeout bounds a refresh independently of the callers waiting on it. Zero disables the bound.
func WithTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithMetrics records refresh outcomes and joins in m.
func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the logger, log.Logger by default.
func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a Coordinator over refresher, normally *auth.SessionRefresher.
func NewCoordinator(refresher Refresher, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		refresher: refresher,
		timeout:   defaultTimeout,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// State reports whether a refresh is currently outstanding.
func (c *Coordinator) State() Status {
	return Status(c.status.Load())
}

// Refresh starts a refresh, or joins the one already running, and waits for its outcome.
// The refresh is not tied to ctx: if ctx ends first the caller gets ctx.Err() and the refresh carries on
// for the other waiters.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if c.refresher == nil {
		return errors.Wrap(auth.ErrNoRefreshAvailable, "[Coordinator.Refresh] no refresher")
	}

	var started atomic.Bool
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		started.Store(true)
		return nil, c.run(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if !started.Load() {
			c.metrics.RefreshJoined()
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.status.Store(int32(Refreshing))
	c.metrics.RefreshStarted()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	err := c.refresher.Refresh(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !auth.IsTerminal(err) {
		err = errors.Wrap(auth.ErrRefreshDenied, "[Coordinator.Refresh] timed out")
	}

	c.status.Store(int32(Idle))
	c.metrics.RefreshFinished(outcome(err))
	c.logger.Debug().Err(err).Dur("took", time.Since(started)).Msg("Refresh settled")
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, auth.ErrNoRefreshAvailable):
		return metrics.OutcomeNoCredential
	case errors.Is(err, auth.ErrNetwork):
		return metrics.OutcomeNetwork
	}
	return metrics.OutcomeDenied
}
