package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/jrsteele09/go-pos-client/metrics"
	"github.com/jrsteele09/go-pos-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode selects how the refresh credential travels.
type Mode string

const (
	// ModeBody keeps a rotating refresh token in memory and posts it in the refresh body.
	ModeBody Mode = "body"
	// ModeCookie relies on an http-only refresh cookie held by the cookie jar plus a CSRF token.
	ModeCookie Mode = "cookie"
)

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBody:
		return ModeBody, nil
	case ModeCookie:
		return ModeCookie, nil
	}
	return "", errors.Errorf("[auth.ParseMode] unknown credential mode %q", s)
}

const (
	defaultRefreshTimeout = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second

	csrfHeader = "X-CSRF-Token"
)

// Navigator moves the application away from protected views once the session ends.
type Navigator interface {
	ToLogin()
}

// Endpoints are the paths of the auth surface, relative to the base URL.
type Endpoints struct {
	Login   string
	Refresh string
	Logout  string
}

// DefaultEndpoints returns the backend's standard auth paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:   "/auth/login",
		Refresh: "/auth/refresh",
		Logout:  "/auth/logout",
	}
}

// Paths lists the endpoint paths, for callers that must recognise auth traffic.
func (e Endpoints) Paths() []string {
	return []string{e.Login, e.Refresh, e.Logout}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by a successful login.
type LoginResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	CSRFToken    string        `json:"csrfToken,omitempty"`
	User         *session.User `json:"user"`
}

// RefreshRequest is the body of POST /auth/refresh and /auth/logout. It is empty in cookie mode.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshResponse is the body returned by a successful refresh.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	CSRFToken    string `json:"csrfToken,omitempty"`
}

// Client is the only component that talks to the auth endpoints. Its HTTP client is never wrapped by the
// request authorizer, so auth calls are not decorated and a failing refresh cannot recurse.
type Client struct {
	baseURL        string
	endpoints      Endpoints
	mode           Mode
	httpClient     *http.Client
	state          *session.State
	navigator      Navigator
	refreshTimeout time.Duration
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithMode selects the credential mode, ModeBody by default.
func WithMode(mode Mode) ClientOption {
	return func(c *Client) {
		c.mode = mode
	}
}

// WithHTTPClient replaces the bare HTTP client. In cookie mode it must carry a cookie jar.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithEndpoints overrides DefaultEndpoints.
func WithEndpoints(endpoints Endpoints) ClientOption {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// WithNavigator sets where the client sends the application when the session ends.
func WithNavigator(navigator Navigator) ClientOption {
	return func(c *Client) {
		c.navigator = navigator
	}
}

// WithRefreshTimeout bounds a single refresh call; hitting it counts as a denied refresh.
func WithRefreshTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.refreshTimeout = timeout
	}
}

// WithMetrics records login, logout and termination counts in m.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger, log.Logger by default.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an auth client for the backend at baseURL that keeps its results in state.
func NewClient(baseURL string, state *session.State, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	if state == nil {
		return nil, errors.New("[NewClient] state is required")
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		endpoints:      DefaultEndpoints(),
		mode:           ModeBody,
		state:          state,
		refreshTimeout: defaultRefreshTimeout,
		logger:         log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	if c.mode != ModeBody && c.mode != ModeCookie {
		return nil, errors.Errorf("[NewClient] unknown credential mode %q", c.mode)
	}
	if c.httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Wrap(err, "[NewClient] cookiejar.New")
		}
		c.httpClient = &http.Client{Timeout: defaultRequestTimeout, Jar: jar}
	}
	if c.mode == ModeCookie && c.httpClient.Jar == nil {
		return nil, errors.New("[NewClient] cookie mode requires an HTTP client with a cookie jar")
	}
	return c, nil
}

// Mode returns the credential mode the client was built with.
func (c *Client) Mode() Mode {
	return c.mode
}

// Endpoints returns the auth paths the client calls.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// State returns the session state the client writes to.
func (c *Client) State() *session.State {
	return c.state
}

// Login exchanges email and password for a session. On any failure the current session is left untouched.
func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	var res LoginResponse
	status, err := c.post(ctx, c.endpoints.Login, LoginRequest{Email: email, Password: password}, nil, &res)
	if err != nil {
		c.metrics.Login(metrics.OutcomeNetwork)
		return session.Session{}, &networkError{op: "Client.Login", err: err}
	}

	switch {
	case status == http.StatusBadRequest:
		c.metrics.Login(metrics.OutcomeFailure)
		return session.Session{}, errors.Wrap(ErrBadRequest, "[Client.Login]")
	case status == http.StatusUnauthorized:
		c.metrics.Login(metrics.OutcomeInvalid)
		return session.Session{}, errors.Wrap(ErrInvalidCredentials, "[Client.Login]")
	case !isSuccess(status):
		c.metrics.Login(metrics.OutcomeFailure)
		return session.Session{}, &networkError{op: "Client.Login", err: errors.Errorf("unexpected status %d", status)}
	case res.AccessToken == "" || res.User == nil:
		c.metrics.Login(metrics.OutcomeFailure)
		return session.Session{}, &networkError{op: "Client.Login", err: errors.New("incomplete login response")}
	}

	refreshToken, csrfToken := c.credentials(res.RefreshToken, res.CSRFToken)
	c.state.SetSession(res.User, res.AccessToken, refreshToken, csrfToken)
	c.metrics.Login(metrics.OutcomeSuccess)
	c.logger.Info().Str("user_id", res.User.ID).Str("mode", string(c.mode)).Msg("Logged in")
	return c.state.Get(), nil
}

// Refresh exchanges the refresh credential for a new access credential. It makes no network call when there is
// nothing to exchange. A refresh that completes after the session was cleared or replaced is discarded.
func (c *Client) Refresh(ctx context.Context) error {
	current, generation := c.state.Snapshot()
	return c.refresh(ctx, current, generation)
}

// SessionRefresher returns a refresher over c that also ends the session the refresh started from when the
// refresh fails terminally. Run under the refresh coordinator, the session is torn down once per wave, before
// any waiter sees the outcome.
func (c *Client) SessionRefresher() *SessionRefresher {
	return &SessionRefresher{client: c}
}

// SessionRefresher is a refresh that tears down its own session on terminal failure, see Client.SessionRefresher.
type SessionRefresher struct {
	client *Client
}

// Refresh runs Client.Refresh and, on a terminal failure, terminates the session it started from.
func (r *SessionRefresher) Refresh(ctx context.Context) error {
	current, generation := r.client.state.Snapshot()
	err := r.client.refresh(ctx, current, generation)
	if err != nil && IsTerminal(err) {
		r.client.Terminate(generation, err)
	}
	return err
}

func (c *Client) refresh(ctx context.Context, current session.Session, generation uint64) error {
	if !c.canRefresh(current) {
		return errors.Wrap(ErrNoRefreshAvailable, "[Client.Refresh]")
	}

	if c.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.refreshTimeout)
		defer cancel()
	}

	var body RefreshRequest
	headers := map[string]string{}
	if c.mode == ModeBody {
		body.RefreshToken = current.RefreshToken
	} else {
		headers[csrfHeader] = current.CSRFToken
	}

	var res RefreshResponse
	status, err := c.post(ctx, c.endpoints.Refresh, body, headers, &res)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Wrap(ErrRefreshDenied, "[Client.Refresh] timed out")
		}
		return &networkError{op: "Client.Refresh", err: err}
	}
	if !isSuccess(status) {
		return errors.Wrapf(ErrRefreshDenied, "[Client.Refresh] status %d", status)
	}
	if res.AccessToken == "" {
		return errors.Wrap(ErrRefreshDenied, "[Client.Refresh] response carried no access token")
	}

	refreshToken, csrfToken := c.credentials(res.RefreshToken, res.CSRFToken)
	if !c.state.UpdateTokensFor(generation, res.AccessToken, refreshToken, csrfToken) {
		return errors.Wrap(ErrRefreshDenied, "[Client.Refresh] session ended while refreshing")
	}
	c.logger.Debug().Msg("Access token refreshed")
	return nil
}

// Logout tells the backend to forget the session, then clears it locally and leaves protected views.
// Server failures are logged and otherwise ignored.
func (c *Client) Logout(ctx context.Context) {
	current := c.state.Get()

	var body RefreshRequest
	headers := map[string]string{}
	if c.mode == ModeBody {
		body.RefreshToken = current.RefreshToken
	} else if current.CSRFToken != "" {
		headers[csrfHeader] = current.CSRFToken
	}

	status, err := c.post(ctx, c.endpoints.Logout, body, headers, nil)
	switch {
	case err != nil:
		c.logger.Debug().Err(err).Msg("Logout request failed, clearing session locally")
	case !isSuccess(status):
		c.logger.Debug().Int("status", status).Msg("Logout rejected by backend, clearing session locally")
	}

	c.state.Clear()
	c.metrics.Logout()
	c.logger.Info().Msg("Logged out")
	c.toLogin()
}

// Terminate ends the session observed at generation after its credentials could not be renewed. A session
// created since then, for example by a new login, is left alone and false is returned. No network call is made.
func (c *Client) Terminate(generation uint64, cause error) bool {
	if !c.state.ClearFor(generation) {
		c.logger.Debug().Err(cause).Msg("Session already ended or replaced, nothing to terminate")
		return false
	}
	c.metrics.Terminated()
	c.logger.Warn().Err(cause).Msg("Session terminated")
	c.toLogin()
	return true
}

// Resume tries to renew the session at start-up. Every failure is swallowed; the result reports whether
// a fresh access credential was obtained.
func (c *Client) Resume(ctx context.Context) bool {
	current := c.state.Get()
	if !c.canRefresh(current) {
		return false
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Session not resumed")
		return false
	}
	return true
}

func (c *Client) canRefresh(s session.Session) bool {
	if c.mode == ModeBody {
		return s.RefreshToken != ""
	}
	return s.CSRFToken != ""
}

// credentials keeps only the credential that belongs to the client's mode.
func (c *Client) credentials(refreshToken, csrfToken string) (string, string) {
	if c.mode == ModeBody {
		return refreshToken, ""
	}
	return "", csrfToken
}

func (c *Client) toLogin() {
	if c.navigator != nil {
		c.navigator.ToLogin()
	}
}

func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "json.Marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, errors.Wrap(err, "http.NewRequestWithContext")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out == nil || !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		c.logger.Debug().Err(err).Str("path", path).Msg("Undecodable auth response")
	}
	return resp.StatusCode, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
