package navigation_test

import (
	"testing"

	"github.com/jrsteele09/go-pos-client/navigation"
	"github.com/stretchr/testify/require"
)

type fakeAuth bool

func (f fakeAuth) IsAuthenticated() bool { return bool(f) }

func TestRequireAuth(t *testing.T) {
	require.Equal(t, navigation.Decision{Allow: true}, navigation.RequireAuth(fakeAuth(true)))
	require.Equal(t, navigation.Decision{Redirect: "/login"}, navigation.RequireAuth(fakeAuth(false)))
	require.Equal(t, navigation.Decision{Redirect: "/login"}, navigation.RequireAuth(nil))
}

func TestRequireAnonymous(t *testing.T) {
	require.Equal(t, navigation.Decision{Allow: true}, navigation.RequireAnonymous(fakeAuth(false)))
	require.Equal(t, navigation.Decision{Redirect: "/home/inventory"}, navigation.RequireAnonymous(fakeAuth(true)))
}

func TestRouter_Navigate(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		path          string
		want          string
	}{
		{name: "root redirects home when authenticated", authenticated: true, path: "", want: "/home/inventory"},
		{name: "root ends at login when anonymous", authenticated: false, path: "/", want: "/login"},
		{name: "protected view when anonymous", authenticated: false, path: "/home/sales", want: "/login"},
		{name: "protected view when authenticated", authenticated: true, path: "/home/movimientos", want: "/home/movimientos"},
		{name: "login when authenticated", authenticated: true, path: "/login", want: "/home/inventory"},
		{name: "login when anonymous", authenticated: false, path: "login", want: "/login"},
		{name: "query string ignored", authenticated: true, path: "/home/sales?from=2026-01-01", want: "/home/sales"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := navigation.NewRouter(fakeAuth(tt.authenticated))
			got, err := r.Navigate(tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.want, r.Current())
		})
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	r := navigation.NewRouter(fakeAuth(true))
	_, err := r.Navigate("/reports")
	require.ErrorIs(t, err, navigation.ErrUnknownRoute)
	require.Empty(t, r.Current())
}

func TestRouter_RedirectLoop(t *testing.T) {
	r := navigation.NewRouter(fakeAuth(true), navigation.WithRoutes([]navigation.Route{
		{Path: "/a", RedirectTo: "/b"},
		{Path: "/b", RedirectTo: "/a"},
	}))
	_, err := r.Navigate("/a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "too many redirects")
}

func TestRouter_ToLogin(t *testing.T) {
	r := navigation.NewRouter(fakeAuth(true))
	_, err := r.Navigate("/home/sales")
	require.NoError(t, err)

	r.ToLogin()

	require.Equal(t, "/login", r.Current())
}
