// Package devserver is a development backend that emulates the POS auth surface and a small in-memory
// POS API. It issues real HS256 access tokens, rotating refresh tokens and, for cookie clients, a refresh
// cookie with a CSRF token. It exists for demos and for exercising the client end to end.
package devserver

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-pos-client/internal/config"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	demoUserID   = "user_demo"
	demoTenantID = "tenant_demo"
	demoRole     = "admin"
)

type Server struct {
	env    string
	router *mux.Router
	routes []string
	logger zerolog.Logger

	users  *userRepo
	tokens *tokenIssuer
	store  *posStore

	csrfLock   sync.Mutex
	csrfTokens map[string]string // user id -> current CSRF token

	refreshCalls atomic.Int64
	refreshDelay atomic.Int64 // nanoseconds

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	nowFunc  func() time.Time
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

type Config interface {
	config.AppConfig
	config.DevServerConfig
}

// New builds the dev backend and seeds the demo user.
func New(cfg Config, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[devserver.New] config is required")
	}

	s := &Server{
		env:        cfg.GetEnv(),
		router:     mux.NewRouter(),
		logger:     log.Logger,
		users:      newUserRepo(),
		csrfTokens: make(map[string]string),
		registry:   prometheus.NewRegistry(),
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.tokens = newTokenIssuer(cfg.GetSigningKey(), cfg.GetAccessTokenTTL(), cfg.GetRefreshTokenTTL(), s.nowFunc)
	s.store = newPOSStore(s.nowFunc)
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pos_devserver",
		Name:      "requests_total",
		Help:      "Requests served by the dev backend, by route and status.",
	}, []string{"route", "status"})
	s.registry.MustRegister(s.requests)

	hash, err := hashPassword(cfg.GetDemoPassword())
	if err != nil {
		return nil, errors.Wrap(err, "[devserver.New] hashPassword")
	}
	s.users.Upsert(&demoUser{
		ID:           demoUserID,
		TenantID:     demoTenantID,
		Email:        cfg.GetDemoEmail(),
		Name:         cfg.GetDemoName(),
		Role:         demoRole,
		PasswordHash: hash,
	})

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(method, path string, handler http.HandlerFunc) {
	s.routes = append(s.routes, method+" "+path)
	s.router.HandleFunc(path, handler).Methods(method)
}

func (s *Server) RegisterRouteHandler(method, path string, handler http.Handler) {
	s.routes = append(s.routes, method+" "+path)
	s.router.Handle(path, handler).Methods(method)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		s.logger.Debug().Str("route", route).Msg("Registered route")
	}
}

// ExpireAccessTokens makes every access token issued so far fail authentication, as if it had expired.
func (s *Server) ExpireAccessTokens() {
	s.tokens.ExpireAccessTokens()
}

// RevokeRefresh forgets every refresh credential so the next refresh is rejected.
func (s *Server) RevokeRefresh() {
	s.tokens.RevokeRefreshTokens()
	s.csrfLock.Lock()
	s.csrfTokens = make(map[string]string)
	s.csrfLock.Unlock()
}

// RefreshCalls returns how many refresh requests reached the server.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// SetRefreshDelay delays every refresh response by d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// Registry exposes the server's metrics registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}
