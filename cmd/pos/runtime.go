package main

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrsteele09/go-pos-client/api"
	"github.com/jrsteele09/go-pos-client/auth"
	"github.com/jrsteele09/go-pos-client/auth/refresh"
	"github.com/jrsteele09/go-pos-client/internal/config"
	"github.com/jrsteele09/go-pos-client/internal/logging"
	"github.com/jrsteele09/go-pos-client/metrics"
	"github.com/jrsteele09/go-pos-client/navigation"
	"github.com/jrsteele09/go-pos-client/session"
	"github.com/jrsteele09/go-pos-client/session/badgerstore"
	"github.com/jrsteele09/go-pos-client/session/redisstore"
	"github.com/jrsteele09/go-pos-client/transport"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// runtime is the wired session pipeline shared by every command of one process.
type runtime struct {
	cfg      *config.Settings
	logger   zerolog.Logger
	store    session.Store
	closer   io.Closer
	state    *session.State
	router   *navigation.Router
	auth     *auth.Client
	api      *api.Client
	registry *prometheus.Registry
}

func newRuntime(cfg *config.Settings) (*runtime, error) {
	logger := logging.Setup(cfg, os.Stderr)

	mode, err := auth.ParseMode(cfg.GetCredentialMode())
	if err != nil {
		return nil, err
	}

	store, closer, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	state := session.New(store,
		session.WithKeyPrefix(cfg.GetStoreKeyPrefix()),
		session.WithLogger(logger),
	)
	router := navigation.NewRouter(state, navigation.WithLogger(logger))

	endpoints := auth.Endpoints{
		Login:   cfg.GetLoginPath(),
		Refresh: cfg.GetRefreshPath(),
		Logout:  cfg.GetLogoutPath(),
	}
	authClient, err := auth.NewClient(cfg.GetBaseURL(), state,
		auth.WithMode(mode),
		auth.WithEndpoints(endpoints),
		auth.WithNavigator(router),
		auth.WithRefreshTimeout(cfg.GetRefreshTimeout()),
		auth.WithMetrics(m),
		auth.WithLogger(logger),
	)
	if err != nil {
		_ = closeQuietly(closer)
		return nil, err
	}

	coordinator := refresh.NewCoordinator(authClient.SessionRefresher(),
		refresh.WithTimeout(cfg.GetRefreshTimeout()),
		refresh.WithMetrics(m),
		refresh.WithLogger(logger),
	)
	httpClient := transport.NewClient(http.DefaultTransport, state, coordinator, authClient,
		transport.WithAuthPaths(endpoints.Paths()...),
		transport.WithMetrics(m),
		transport.WithLogger(logger),
	)
	httpClient.Timeout = cfg.GetRequestTimeout()

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		closer:   closer,
		state:    state,
		router:   router,
		auth:     authClient,
		api:      api.NewClient(cfg.GetBaseURL(), httpClient),
		registry: registry,
	}, nil
}

func (r *runtime) Close() error {
	return closeQuietly(r.closer)
}

// openStore picks the credential store named by the storage driver.
func openStore(cfg config.StorageConfig) (session.Store, io.Closer, error) {
	switch strings.ToLower(cfg.GetStoreDriver()) {
	case "memory", "":
		return nil, nil, nil
	case "badger":
		dir := cfg.GetDataDir()
		if dir != "" {
			dir = filepath.Join(dir, "session")
		}
		store, err := badgerstore.Open(dir)
		if err != nil {
			return nil, nil, errors.Wrap(err, "[openStore] badger")
		}
		return store, store, nil
	case "redis":
		store, err := redisstore.Open(cfg.GetRedisURL())
		if err != nil {
			return nil, nil, errors.Wrap(err, "[openStore] redis")
		}
		return store, store, nil
	}
	return nil, nil, errors.Errorf("[openStore] unknown storage driver %q", cfg.GetStoreDriver())
}

func closeQuietly(c io.Closer) error {
	if c == nil {
		return nil
	}
	return c.Close()
}
