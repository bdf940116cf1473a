// Package transport holds the request authorizer: an http.RoundTripper that decorates API requests with the
// session's credentials and, when the backend answers 401, refreshes once and replays the request.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-pos-client/auth"
	"github.com/jrsteele09/go-pos-client/metrics"
	"github.com/jrsteele09/go-pos-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	csrfHeader      = "X-CSRF-Token"
	requestIDHeader = "X-Request-ID"
)

// Credentials is the read side of the session state.
type Credentials interface {
	oauth2.TokenSource
	Get() session.Session
	Snapshot() (session.Session, uint64)
}

// Refresher obtains a new access credential, normally the refresh coordinator.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Terminator ends the session observed at generation once it cannot be renewed, normally *auth.Client.
// It must leave a newer session alone.
type Terminator interface {
	Terminate(generation uint64, cause error) bool
}

var (
	_ Credentials       = (*session.State)(nil)
	_ Terminator        = (*auth.Client)(nil)
	_ http.RoundTripper = (*Authorizer)(nil)
)

// Authorizer is an http.RoundTripper that attaches the session credentials and recovers from a 401 once.
type Authorizer struct {
	base        http.RoundTripper
	credentials Credentials
	refresher   Refresher
	terminator  Terminator
	authPaths   []string
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// AuthorizerOption defines a function type to modify the Authorizer instance.
type AuthorizerOption func(*Authorizer)

// WithAuthPaths sets the paths that bypass decoration and 401 handling.
func WithAuthPaths(paths ...string) AuthorizerOption {
	return func(a *Authorizer) {
		a.authPaths = paths
	}
}

// WithMetrics records 401s and replay outcomes in m.
func WithMetrics(m *metrics.Metrics) AuthorizerOption {
	return func(a *Authorizer) {
		a.metrics = m
	}
}

// WithLogger sets the logger, log.Logger by default.
func WithLogger(logger zerolog.Logger) AuthorizerOption {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

// NewAuthorizer wraps base, which defaults to http.DefaultTransport.
func NewAuthorizer(base http.RoundTripper, credentials Credentials, refresher Refresher, terminator Terminator, options ...AuthorizerOption) *Authorizer {
	if base == nil {
		base = http.DefaultTransport
	}
	a := &Authorizer{
		base:        base,
		credentials: credentials,
		refresher:   refresher,
		terminator:  terminator,
		authPaths:   auth.DefaultEndpoints().Paths(),
		logger:      log.Logger,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// NewClient returns an HTTP client whose requests go through a new Authorizer.
func NewClient(base http.RoundTripper, credentials Credentials, refresher Refresher, terminator Terminator, options ...AuthorizerOption) *http.Client {
	return &http.Client{
		Transport: NewAuthorizer(base, credentials, refresher, terminator, options...),
	}
}

// RoundTrip implements http.RoundTripper.
func (a *Authorizer) RoundTrip(req *http.Request) (*http.Response, error) {
	if a.isAuthPath(req.URL.Path) {
		return a.base.RoundTrip(req)
	}

	getBody, err := rewindableBody(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorizer.RoundTrip] buffering request body")
	}
	requestID := req.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	first, sentToken, generation := a.decorate(req, requestID)
	if getBody != nil {
		if first.Body, err = getBody(); err != nil {
			return nil, errors.Wrap(err, "[Authorizer.RoundTrip] GetBody")
		}
	}
	resp, err := a.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	a.metrics.Unauthorized()

	current := a.credentials.Get()
	logger := a.logger.With().Str("request_id", requestID).Str("path", req.URL.Path).Logger()

	switch {
	case current.Anonymous():
		// the session already ended, there is nothing left to renew or tear down
		return resp, nil
	case current.AccessToken != sentToken:
		logger.Debug().Msg("Credential changed since the request was sent, replaying")
	case !current.HasRefreshCredential():
		a.terminate(logger, generation, errors.Wrap(auth.ErrNoRefreshAvailable, "[Authorizer.RoundTrip]"))
		return resp, nil
	default:
		if err := a.refresher.Refresh(req.Context()); err != nil {
			if !auth.IsTerminal(err) {
				drain(resp)
				return nil, err
			}
			a.terminate(logger, generation, err)
			return resp, nil
		}
	}

	drain(resp)
	replay, _, generation := a.decorate(req, requestID)
	if getBody != nil {
		if replay.Body, err = getBody(); err != nil {
			return nil, errors.Wrap(err, "[Authorizer.RoundTrip] GetBody")
		}
	}
	resp, err = a.base.RoundTrip(replay)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		a.metrics.Unauthorized()
		a.metrics.Replayed(metrics.OutcomeFailure)
		a.terminate(logger, generation, errors.Wrap(auth.ErrRefreshDenied, "[Authorizer.RoundTrip] replay rejected"))
		return resp, nil
	}
	a.metrics.Replayed(metrics.OutcomeSuccess)
	return resp, nil
}

// decorate clones req with the credentials as they are now. It returns the access token it attached and the
// generation of the session that token belongs to; a teardown caused by this request is scoped to it.
func (a *Authorizer) decorate(req *http.Request, requestID string) (*http.Request, string, uint64) {
	out := req.Clone(req.Context())
	out.Header.Set(requestIDHeader, requestID)

	// the generation is read first so a session swapped in before Token() is never the one torn down
	current, generation := a.credentials.Snapshot()
	tok, err := a.credentials.Token()
	if err != nil {
		out.Header.Del("Authorization")
		out.Header.Del(csrfHeader)
		return out, "", generation
	}
	tok.SetAuthHeader(out)
	if current.CSRFToken != "" && current.AccessToken == tok.AccessToken {
		out.Header.Set(csrfHeader, current.CSRFToken)
	}
	return out, tok.AccessToken, generation
}

func (a *Authorizer) terminate(logger zerolog.Logger, generation uint64, cause error) {
	if a.terminator == nil {
		logger.Warn().Err(cause).Msg("Credentials could not be renewed")
		return
	}
	if a.terminator.Terminate(generation, cause) {
		logger.Warn().Err(cause).Msg("Credentials could not be renewed")
		return
	}
	logger.Debug().Err(cause).Msg("Credentials could not be renewed, session already ended or replaced")
}

func (a *Authorizer) isAuthPath(path string) bool {
	for _, p := range a.authPaths {
		if p != "" && (path == p || strings.HasSuffix(path, p)) {
			return true
		}
	}
	return false
}

// rewindableBody returns a function producing a fresh copy of the request body, buffering it when the
// request cannot rewind itself. It returns nil for requests without a body.
func rewindableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
