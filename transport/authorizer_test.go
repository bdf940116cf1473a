package transport_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-pos-client/api"
	"github.com/jrsteele09/go-pos-client/auth"
	"github.com/jrsteele09/go-pos-client/auth/refresh"
	"github.com/jrsteele09/go-pos-client/devserver"
	"github.com/jrsteele09/go-pos-client/internal/config"
	poserrors "github.com/jrsteele09/go-pos-client/internal/errors"
	"github.com/jrsteele09/go-pos-client/metrics"
	"github.com/jrsteele09/go-pos-client/navigation"
	"github.com/jrsteele09/go-pos-client/session"
	"github.com/jrsteele09/go-pos-client/session/storefake"
	"github.com/jrsteele09/go-pos-client/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport remembers the headers of every request it forwards and can answer 401 for one path
// regardless of credentials.
type recordingTransport struct {
	base       http.RoundTripper
	mu         sync.Mutex
	sent       []http.Header
	paths      []string
	always401  atomic.Value // string path
	sentBodies []string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		body = string(data)
		req.Body = io.NopCloser(strings.NewReader(body))
	}
	rt.mu.Lock()
	rt.sent = append(rt.sent, req.Header.Clone())
	rt.paths = append(rt.paths, req.URL.Path)
	rt.sentBodies = append(rt.sentBodies, body)
	rt.mu.Unlock()

	if p, _ := rt.always401.Load().(string); p != "" && p == req.URL.Path {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader(`{"message":"Unauthorized"}`)),
			Header:     http.Header{},
			Request:    req,
		}, nil
	}
	return rt.base.RoundTrip(req)
}

func (rt *recordingTransport) requests() ([]string, []http.Header, []string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.paths...), append([]http.Header(nil), rt.sent...), append([]string(nil), rt.sentBodies...)
}

// testFixture wires the whole pipeline against the dev backend.
type testFixture struct {
	backend   *devserver.Server
	http      *httptest.Server
	store     *storefake.FakeStore
	state     *session.State
	router    *navigation.Router
	auth      *auth.Client
	recorder  *recordingTransport
	api       *api.Client
	registry  *prometheus.Registry
	refresher *refresh.Coordinator
}

func setupTestFixture(t *testing.T, mode auth.Mode) *testFixture {
	t.Helper()

	backend, err := devserver.New(config.New())
	require.NoError(t, err)
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := storefake.NewFakeStore()
	state := session.New(store)
	router := navigation.NewRouter(state)
	authClient, err := auth.NewClient(ts.URL, state,
		auth.WithMode(mode),
		auth.WithNavigator(router),
		auth.WithMetrics(m),
	)
	require.NoError(t, err)

	coordinator := refresh.NewCoordinator(authClient.SessionRefresher(), refresh.WithMetrics(m))
	recorder := &recordingTransport{base: http.DefaultTransport}
	httpClient := transport.NewClient(recorder, state, coordinator, authClient, transport.WithMetrics(m))

	return &testFixture{
		backend:   backend,
		http:      ts,
		store:     store,
		state:     state,
		router:    router,
		auth:      authClient,
		recorder:  recorder,
		api:       api.NewClient(ts.URL, httpClient),
		registry:  reg,
		refresher: coordinator,
	}
}

func (f *testFixture) login(t *testing.T) session.Session {
	t.Helper()
	s, err := f.auth.Login(context.Background(), "admin@demo.com", "123456")
	require.NoError(t, err)
	_, err = f.router.Navigate("/home/inventory")
	require.NoError(t, err)
	return s
}

func TestAuthorizer_DecoratesWithCurrentCredential(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	s := f.login(t)

	_, err := f.api.ListProducts(context.Background())
	require.NoError(t, err)

	_, headers, _ := f.recorder.requests()
	require.Len(t, headers, 1)
	require.Equal(t, "Bearer "+s.AccessToken, headers[0].Get("Authorization"))
	require.NotEmpty(t, headers[0].Get("X-Request-ID"))
	require.Empty(t, headers[0].Get("X-CSRF-Token"))
	for _, values := range headers[0] {
		for _, v := range values {
			require.NotContains(t, v, s.RefreshToken, "the refresh credential never leaves the auth client")
		}
	}
}

func TestAuthorizer_AuthEndpointsAreNotDecorated(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)

	httpClient := transport.NewClient(f.recorder, f.state, f.refresher, f.auth)
	req, err := http.NewRequest(http.MethodPost, f.http.URL+"/auth/logout", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	_, headers, _ := f.recorder.requests()
	require.Len(t, headers, 1)
	require.Empty(t, headers[0].Get("Authorization"))
	require.Empty(t, headers[0].Get("X-Request-ID"))
}

func TestAuthorizer_CookieModeSendsCSRF(t *testing.T) {
	f := setupTestFixture(t, auth.ModeCookie)
	s := f.login(t)

	_, err := f.api.ListCategories(context.Background())
	require.NoError(t, err)

	_, headers, _ := f.recorder.requests()
	require.Equal(t, s.CSRFToken, headers[0].Get("X-CSRF-Token"))
	require.Empty(t, headers[0].Get("Cookie"), "the refresh cookie is scoped to the auth endpoints")
}

func TestAuthorizer_ExpiredAccessIsRefreshedAndReplayed(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	before := f.login(t)
	f.backend.ExpireAccessTokens()

	register, err := f.api.OpenCash(context.Background(), api.OpenCashRequest{InitialAmount: 250, Notes: "morning float"})

	require.NoError(t, err)
	require.Equal(t, 250.0, register.InitialAmount)
	require.Equal(t, 1, f.backend.RefreshCalls())
	require.True(t, f.state.IsAuthenticated())
	require.NotEqual(t, before.AccessToken, f.state.Get().AccessToken)

	paths, headers, bodies := f.recorder.requests()
	require.Equal(t, []string{"/cash/open", "/cash/open"}, paths)
	require.Equal(t, "Bearer "+before.AccessToken, headers[0].Get("Authorization"))
	require.Equal(t, "Bearer "+f.state.Get().AccessToken, headers[1].Get("Authorization"))
	require.Equal(t, headers[0].Get("X-Request-ID"), headers[1].Get("X-Request-ID"))
	require.Equal(t, bodies[0], bodies[1], "the replay carries the original body")
	require.Contains(t, bodies[1], "morning float")
}

func TestAuthorizer_RejectedRefreshTerminatesSession(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.RevokeRefresh()

	_, err := f.api.ListProducts(context.Background())

	require.ErrorIs(t, err, poserrors.ErrUnauthorized)
	var statusErr *poserrors.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.Code)

	require.False(t, f.state.IsAuthenticated())
	require.Equal(t, 0, f.store.Len())
	require.Equal(t, navigation.LoginPath, f.router.Current())

	got, err := f.router.Navigate("/home/sales")
	require.NoError(t, err)
	require.Equal(t, navigation.LoginPath, got)
}

func TestAuthorizer_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.SetRefreshDelay(150 * time.Millisecond)

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.api.ListProducts(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	require.Equal(t, 1, f.backend.RefreshCalls())
	require.True(t, f.state.IsAuthenticated())
	require.Equal(t, refresh.Idle, f.refresher.State())

	count, err := testutil.GatherAndCount(f.registry, "pos_client_replays_total")
	require.NoError(t, err)
	require.Equal(t, 1, count, "one outcome series")
}

func TestAuthorizer_ConcurrentFailuresAllTerminal(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.RevokeRefresh()
	f.backend.SetRefreshDelay(100 * time.Millisecond)

	const callers = 4
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.api.ListCategories(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, poserrors.ErrUnauthorized)
	}
	require.Equal(t, 1, f.backend.RefreshCalls())
	require.False(t, f.state.IsAuthenticated())
	require.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(terminatedTotal(1)),
		"pos_client_session_terminated_total"), "the session is torn down once per wave")
}

func terminatedTotal(n int) string {
	return fmt.Sprintf(`
# HELP pos_client_session_terminated_total Sessions cleared because credentials could not be renewed.
# TYPE pos_client_session_terminated_total counter
pos_client_session_terminated_total %d
`, n)
}

func TestAuthorizer_StaleWaveSparesNewLogin(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.SetRefreshDelay(300 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := f.api.ListProducts(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.refresher.State() == refresh.Refreshing }, 2*time.Second, 5*time.Millisecond)

	// the user signs out and back in while the old wave is still waiting on the backend
	f.auth.Logout(context.Background())
	f.backend.SetRefreshDelay(0)
	fresh := f.login(t)

	require.ErrorIs(t, <-done, poserrors.ErrUnauthorized)
	require.True(t, f.state.IsAuthenticated())
	require.Equal(t, fresh.AccessToken, f.state.Get().AccessToken)
	require.Equal(t, 2, f.store.Len())
	require.Equal(t, "/home/inventory", f.router.Current())
	require.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(terminatedTotal(0)),
		"pos_client_session_terminated_total"))

	_, err := f.api.ListProducts(context.Background())
	require.NoError(t, err)
}

func TestAuthorizer_FailedWaveEndsSessionBeforeLateArrivals(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.RevokeRefresh()

	// the wave fails and settles while this request, decorated with the old credential, is still on the wire
	late := &refreshingTransport{base: f.recorder, refresh: func() {
		assert.ErrorIs(t, f.refresher.Refresh(context.Background()), auth.ErrRefreshDenied)
		assert.False(t, f.state.IsAuthenticated(), "ended before the wave settled")
	}}
	httpClient := transport.NewClient(late, f.state, f.refresher, f.auth)

	_, err := api.NewClient(f.http.URL, httpClient).ListProducts(context.Background())

	require.ErrorIs(t, err, poserrors.ErrUnauthorized)
	require.Equal(t, 1, f.backend.RefreshCalls(), "no second refresh with a credential known to be denied")
	require.Equal(t, navigation.LoginPath, f.router.Current())
}

func TestAuthorizer_NoRefreshCredentialTerminatesWithoutCall(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	s := f.login(t)

	// a restart keeps only the access credential and the user
	f.state.SetSession(s.User, s.AccessToken, "", "")
	f.backend.ExpireAccessTokens()

	_, err := f.api.ListProducts(context.Background())

	require.ErrorIs(t, err, poserrors.ErrUnauthorized)
	require.Equal(t, 0, f.backend.RefreshCalls())
	require.False(t, f.state.IsAuthenticated())
	require.Equal(t, navigation.LoginPath, f.router.Current())
}

func TestAuthorizer_ReplayRejectedIsTerminal(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)
	f.recorder.always401.Store("/sales")

	_, err := f.api.ListSales(context.Background(), api.SalesFilter{})

	require.ErrorIs(t, err, poserrors.ErrUnauthorized)
	require.Equal(t, 1, f.backend.RefreshCalls(), "replayed at most once")
	paths, _, _ := f.recorder.requests()
	require.Equal(t, []string{"/sales", "/sales"}, paths)
	require.False(t, f.state.IsAuthenticated())
}

func TestAuthorizer_StaleCredentialReplaysWithoutRefresh(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	stale := f.login(t).AccessToken
	f.backend.ExpireAccessTokens()

	// another request renews the credential while this one is on the wire
	racing := &refreshingTransport{base: f.recorder, refresh: func() {
		require.NoError(t, f.auth.Refresh(context.Background()))
	}}
	httpClient := transport.NewClient(racing, f.state, f.refresher, f.auth)

	_, err := api.NewClient(f.http.URL, httpClient).ListProducts(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, f.backend.RefreshCalls(), "no second refresh")
	paths, headers, _ := f.recorder.requests()
	require.Equal(t, []string{"/product", "/product"}, paths)
	require.Equal(t, "Bearer "+stale, headers[0].Get("Authorization"))
	require.Equal(t, "Bearer "+f.state.Get().AccessToken, headers[1].Get("Authorization"))
}

// refreshingTransport runs refresh once before forwarding the first request.
type refreshingTransport struct {
	base    http.RoundTripper
	once    sync.Once
	refresh func()
}

func (rt *refreshingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.once.Do(rt.refresh)
	return rt.base.RoundTrip(req)
}

func TestAuthorizer_WaiterCancellationIsNotTerminal(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.SetRefreshDelay(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := f.api.ListProducts(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, f.state.IsAuthenticated(), "abandoning the wait does not end the session")

	require.Eventually(t, func() bool { return f.refresher.State() == refresh.Idle }, 2*time.Second, 10*time.Millisecond)
	_, err = f.api.ListProducts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.backend.RefreshCalls(), "the detached refresh completed and was reused")
}

func TestAuthorizer_NonUnauthorizedPassThrough(t *testing.T) {
	f := setupTestFixture(t, auth.ModeBody)
	f.login(t)

	_, err := f.api.GetSale(context.Background(), "missing")

	require.ErrorIs(t, err, poserrors.ErrNotFound)
	require.Equal(t, 0, f.backend.RefreshCalls())
	require.True(t, f.state.IsAuthenticated())
}
