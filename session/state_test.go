package session_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-pos-client/session"
	"github.com/jrsteele09/go-pos-client/session/storefake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testUser = &session.User{ID: "user_demo", TenantID: "tenant-1", Email: "admin@demo.com", Name: "Admin Demo", Role: "admin"}
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user_demo",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func newState(t *testing.T, store session.Store) *session.State {
	t.Helper()
	return session.New(store, session.WithNowFunc(func() time.Time { return testNow }))
}

func TestSetSession_PersistsAccessTokenAndUserOnly(t *testing.T) {
	store := storefake.NewFakeStore()
	s := newState(t, store)

	s.SetSession(testUser, "access-1", "refresh-1", "")

	require.True(t, s.IsAuthenticated())
	got := s.Get()
	require.Equal(t, "access-1", got.AccessToken)
	require.Equal(t, "refresh-1", got.RefreshToken)
	require.Equal(t, testUser, got.User)

	token, err := store.Get("pos.accessToken")
	require.NoError(t, err)
	require.Equal(t, "access-1", token)
	userJSON, err := store.Get("pos.user")
	require.NoError(t, err)
	var stored session.User
	require.NoError(t, json.Unmarshal([]byte(userJSON), &stored))
	require.Equal(t, *testUser, stored)
	require.Equal(t, 2, store.Len(), "refresh credential must not be persisted")
}

func TestSetSession_CopiesUser(t *testing.T) {
	s := newState(t, nil)
	u := *testUser
	s.SetSession(&u, "access-1", "refresh-1", "")

	u.Name = "changed"
	got := s.Get()
	got.User.Role = "mutated"

	require.Equal(t, "Admin Demo", s.Get().User.Name)
	require.Equal(t, "admin", s.Get().User.Role)
}

func TestUpdateTokens_PreservesUser(t *testing.T) {
	store := storefake.NewFakeStore()
	s := newState(t, store)
	s.SetSession(testUser, "access-1", "refresh-1", "")

	s.UpdateTokens("access-2", "refresh-2", "")

	got := s.Get()
	require.Equal(t, "access-2", got.AccessToken)
	require.Equal(t, "refresh-2", got.RefreshToken)
	require.Equal(t, testUser, got.User)
	token, err := store.Get("pos.accessToken")
	require.NoError(t, err)
	require.Equal(t, "access-2", token)
}

func TestUpdateTokens_KeepsUnrotatedSecondaryCredential(t *testing.T) {
	s := newState(t, nil)
	s.SetSession(testUser, "access-1", "refresh-1", "csrf-1")

	s.UpdateTokens("access-2", "", "")

	got := s.Get()
	require.Equal(t, "refresh-1", got.RefreshToken)
	require.Equal(t, "csrf-1", got.CSRFToken)
}

func TestUpdateTokensFor_RejectsStaleGeneration(t *testing.T) {
	s := newState(t, nil)
	s.SetSession(testUser, "access-1", "refresh-1", "")
	_, gen := s.Snapshot()

	s.Clear()

	require.False(t, s.UpdateTokensFor(gen, "access-2", "refresh-2", ""))
	require.False(t, s.IsAuthenticated(), "a refresh finishing after logout must not resurrect the session")

	s.SetSession(testUser, "access-3", "refresh-3", "")
	_, gen = s.Snapshot()
	require.True(t, s.UpdateTokensFor(gen, "access-4", "", ""))
	require.Equal(t, "access-4", s.Get().AccessToken)
}

func TestClearFor_SparesNewerSession(t *testing.T) {
	store := storefake.NewFakeStore()
	s := newState(t, store)
	s.SetSession(testUser, "access-1", "refresh-1", "")
	_, stale := s.Snapshot()

	s.Clear()
	s.SetSession(testUser, "access-2", "refresh-2", "")

	require.False(t, s.ClearFor(stale))
	require.Equal(t, "access-2", s.Get().AccessToken)
	require.Equal(t, 2, store.Len())

	_, current := s.Snapshot()
	require.True(t, s.ClearFor(current))
	require.False(t, s.IsAuthenticated())
	require.Equal(t, 0, store.Len())
	require.False(t, s.ClearFor(current), "a generation is torn down at most once")
}

func TestClear_ErasesMemoryAndStore(t *testing.T) {
	store := storefake.NewFakeStore()
	s := newState(t, store)
	s.SetSession(testUser, "access-1", "refresh-1", "csrf-1")

	s.Clear()

	require.False(t, s.IsAuthenticated())
	require.False(t, s.HasRefreshCredential())
	require.Equal(t, session.Session{}, s.Get())
	require.Equal(t, 0, store.Len())
}

func TestIsAuthenticated_ExpiredTokenStillCounts(t *testing.T) {
	s := newState(t, nil)
	s.SetSession(testUser, signedToken(t, testNow.Add(-time.Minute)), "refresh-1", "")

	require.True(t, s.IsAuthenticated(), "local check only, expiry is discovered by the API")
	got := s.Get()
	require.Nil(t, got.User, "a known-expired credential never shows a user")
	require.Equal(t, "refresh-1", got.RefreshToken)
	require.True(t, got.Expired(testNow))
}

func TestGet_ReportsUserWhileTokenValid(t *testing.T) {
	s := newState(t, nil)
	exp := testNow.Add(10 * time.Minute)
	s.SetSession(testUser, signedToken(t, exp), "refresh-1", "")

	got := s.Get()
	require.NotNil(t, got.User)
	require.True(t, got.Expiry.Equal(exp.Truncate(time.Second)))
}

func TestNew_RestoresFromStore(t *testing.T) {
	store := storefake.NewFakeStore()
	first := newState(t, store)
	first.SetSession(testUser, "access-1", "refresh-1", "")

	restored := newState(t, store)

	require.True(t, restored.IsAuthenticated())
	got := restored.Get()
	require.Equal(t, "access-1", got.AccessToken)
	require.Equal(t, testUser, got.User)
	require.Empty(t, got.RefreshToken, "refresh credential does not survive a restart")
	require.False(t, restored.HasRefreshCredential())
}

func TestNew_DiscardsCorruptRecord(t *testing.T) {
	store := storefake.NewFakeStore()
	require.NoError(t, store.Set("pos.accessToken", "access-1"))
	require.NoError(t, store.Set("pos.user", "{not json"))

	s := newState(t, store)

	require.False(t, s.IsAuthenticated())
	require.Equal(t, 0, store.Len(), "both keys are cleared together")
}

func TestNew_DiscardsIncompleteRecord(t *testing.T) {
	store := storefake.NewFakeStore()
	require.NoError(t, store.Set("pos.user", `{"id":"user_demo"}`))

	s := newState(t, store)

	require.False(t, s.IsAuthenticated())
	require.Nil(t, s.Get().User)
	require.Equal(t, 0, store.Len())
}

func TestNew_StoreFailureIsAnonymous(t *testing.T) {
	store := storefake.NewFakeStore()
	store.Err = errors.New("disk gone")

	s := newState(t, store)

	require.False(t, s.IsAuthenticated())
}

func TestWithKeyPrefix(t *testing.T) {
	store := storefake.NewFakeStore()
	s := session.New(store, session.WithKeyPrefix("till-7."))
	s.SetSession(testUser, "access-1", "", "")

	_, err := store.Get("till-7.accessToken")
	require.NoError(t, err)
	_, err = store.Get("pos.accessToken")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestToken_TokenSource(t *testing.T) {
	s := newState(t, nil)

	_, err := s.Token()
	require.ErrorIs(t, err, session.ErrNoAccessToken)

	s.SetSession(testUser, "access-1", "refresh-1", "")
	tok, err := s.Token()
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
}

func TestState_ConcurrentAccess(t *testing.T) {
	s := newState(t, storefake.NewFakeStore())
	s.SetSession(testUser, "access-0", "refresh-0", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.UpdateTokens("access-n", "refresh-n", "")
		}()
		go func() {
			defer wg.Done()
			got := s.Get()
			assert.NotEmpty(t, got.AccessToken)
		}()
	}
	wg.Wait()
	require.Equal(t, "access-n", s.Get().AccessToken)
}
