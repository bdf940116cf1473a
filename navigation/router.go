package navigation

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrUnknownRoute is returned for a path that is not in the route table.
var ErrUnknownRoute = errors.New("unknown route")

const maxHops = 8

// Route is an entry of the route table. A route either redirects or is a view, optionally guarded.
type Route struct {
	Path       string
	RedirectTo string
	Guard      Guard
}

// DefaultRoutes is the POS application's route table.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "", RedirectTo: "/home"},
		{Path: LoginPath, Guard: RequireAnonymous},
		{Path: "/home", RedirectTo: HomePath},
		{Path: HomePath, Guard: RequireAuth},
		{Path: "/home/movimientos", Guard: RequireAuth},
		{Path: "/home/sales", Guard: RequireAuth},
	}
}

// Router resolves paths against the route table and remembers the current view.
type Router struct {
	mu      sync.Mutex
	routes  map[string]Route
	auth    Authenticator
	current string
	logger  zerolog.Logger
}

// RouterOption defines a function type to modify the Router instance.
type RouterOption func(*Router)

func WithRoutes(routes []Route) RouterOption {
	return func(r *Router) {
		r.routes = indexRoutes(routes)
	}
}

func WithLogger(logger zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func NewRouter(a Authenticator, options ...RouterOption) *Router {
	r := &Router{
		routes: indexRoutes(DefaultRoutes()),
		auth:   a,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Navigate follows redirects and guards starting at path and makes the resulting view current.
func (r *Router) Navigate(path string) (string, error) {
	target := normalize(path)
	for hop := 0; hop < maxHops; hop++ {
		route, ok := r.routes[target]
		if !ok {
			return "", errors.Wrapf(ErrUnknownRoute, "[Router.Navigate] %q", path)
		}
		if route.RedirectTo != "" {
			target = normalize(route.RedirectTo)
			continue
		}
		if route.Guard != nil {
			if d := route.Guard(r.auth); !d.Allow {
				r.logger.Debug().Str("from", target).Str("to", d.Redirect).Msg("Navigation redirected by guard")
				target = normalize(d.Redirect)
				continue
			}
		}
		r.setCurrent(target)
		return target, nil
	}
	return "", errors.Errorf("[Router.Navigate] too many redirects from %q", path)
}

// ToLogin leaves whatever view is current for the login view.
func (r *Router) ToLogin() {
	r.setCurrent(LoginPath)
}

// Current returns the current view, empty before the first navigation.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Router) setCurrent(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = path
}

func indexRoutes(routes []Route) map[string]Route {
	index := make(map[string]Route, len(routes))
	for _, route := range routes {
		route.Path = normalize(route.Path)
		index[route.Path] = route
	}
	return index
}

func normalize(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
