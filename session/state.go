package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ErrNoAccessToken is returned by Token when the session is anonymous.
var ErrNoAccessToken = errors.New("no access token")

const (
	defaultKeyPrefix = "pos."
	accessTokenKey   = "accessToken"
	userKey          = "user"
)

// State is the single source of truth for the live session. It is safe for concurrent use.
type State struct {
	mu         sync.RWMutex
	session    Session
	generation uint64 // bumped whenever a session is created or destroyed

	store     Store
	keyPrefix string
	logger    zerolog.Logger
	nowFunc   func() time.Time
}

var _ oauth2.TokenSource = (*State)(nil)

// StateOption defines a function type to modify the State instance.
type StateOption func(*State)

// WithKeyPrefix sets the prefix of the durable storage keys.
func WithKeyPrefix(prefix string) StateOption {
	return func(s *State) {
		s.keyPrefix = prefix
	}
}

func WithLogger(logger zerolog.Logger) StateOption {
	return func(s *State) {
		s.logger = logger
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) StateOption {
	return func(s *State) {
		s.nowFunc = now
	}
}

// New creates the session state and restores the durable subset from store, if any.
// A nil store keeps the session in memory only.
func New(store Store, options ...StateOption) *State {
	s := &State{
		store:     store,
		keyPrefix: defaultKeyPrefix,
		logger:    log.Logger,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.restore()
	return s
}

func (s *State) restore() {
	if s.store == nil {
		return
	}

	token, tokenErr := s.store.Get(s.key(accessTokenKey))
	userJSON, userErr := s.store.Get(s.key(userKey))
	if errors.Is(tokenErr, ErrNotFound) && errors.Is(userErr, ErrNotFound) {
		return
	}
	if tokenErr != nil || userErr != nil {
		s.logger.Warn().AnErr("token_err", tokenErr).AnErr("user_err", userErr).Msg("Discarding incomplete stored session")
		s.erase()
		return
	}

	var user User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil || token == "" {
		s.logger.Warn().Err(err).Msg("Discarding corrupt stored session")
		s.erase()
		return
	}

	s.session = Session{
		User:        &user,
		AccessToken: token,
		Expiry:      accessTokenExpiry(token),
	}
	s.generation++
	s.logger.Debug().Str("user_id", user.ID).Msg("Session restored")
}

// Get returns a copy of the current session. A user is only reported together with an access
// credential that is not known to be expired.
func (s *State) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view()
}

// Snapshot returns the current session together with its generation, see UpdateTokensFor and ClearFor.
func (s *State) Snapshot() (Session, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(), s.generation
}

func (s *State) view() Session {
	current := s.session.clone()
	if current.Anonymous() || current.Expired(s.nowFunc()) {
		current.User = nil
	}
	return current
}

// SetSession replaces the session. Only the access credential and the user are persisted;
// refresh and CSRF credentials stay in memory.
func (s *State) SetSession(user *User, accessToken, refreshToken, csrfToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u *User
	if user != nil {
		copied := *user
		u = &copied
	}
	s.session = Session{
		User:         u,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CSRFToken:    csrfToken,
		Expiry:       accessTokenExpiry(accessToken),
	}
	s.generation++

	s.persist(u, accessToken)
}

// UpdateTokens replaces the credentials and keeps the user. An empty refreshToken or csrfToken
// keeps the previous value.
func (s *State) UpdateTokens(accessToken, refreshToken, csrfToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateTokens(accessToken, refreshToken, csrfToken)
}

// UpdateTokensFor applies UpdateTokens only if the session is still the one observed at generation.
// It returns false when the session was replaced or cleared in between, e.g. by a logout racing a refresh.
func (s *State) UpdateTokensFor(generation uint64, accessToken, refreshToken, csrfToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	s.updateTokens(accessToken, refreshToken, csrfToken)
	return true
}

func (s *State) updateTokens(accessToken, refreshToken, csrfToken string) {
	s.session.AccessToken = accessToken
	s.session.Expiry = accessTokenExpiry(accessToken)
	if refreshToken != "" {
		s.session.RefreshToken = refreshToken
	}
	if csrfToken != "" {
		s.session.CSRFToken = csrfToken
	}

	if s.store == nil {
		return
	}
	if err := s.store.Set(s.key(accessTokenKey), accessToken); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist refreshed access token")
	}
}

// Clear makes the session anonymous and erases the durable copy.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	s.generation++
	s.erase()
}

// ClearFor applies Clear only if the session is still the one observed at generation. It returns false,
// leaving the session alone, when a newer session replaced the observed one.
func (s *State) ClearFor(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	s.session = Session{}
	s.generation++
	s.erase()
	return true
}

// IsAuthenticated reports whether an access credential is present. It is a local check only;
// an expired credential still counts until a request fails.
func (s *State) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.AccessToken != ""
}

// HasRefreshCredential reports whether a refresh can be attempted.
func (s *State) HasRefreshCredential() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.HasRefreshCredential()
}

// Token implements oauth2.TokenSource over the current access credential.
func (s *State) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	return &oauth2.Token{
		AccessToken:  s.session.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.session.RefreshToken,
		Expiry:       s.session.Expiry,
	}, nil
}

func (s *State) persist(user *User, accessToken string) {
	if s.store == nil {
		return
	}
	if user == nil || accessToken == "" {
		s.erase()
		return
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode user for storage")
		return
	}
	if err := s.store.Set(s.key(accessTokenKey), accessToken); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist access token")
		return
	}
	if err := s.store.Set(s.key(userKey), string(userJSON)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist user")
	}
}

func (s *State) erase() {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(s.key(accessTokenKey), s.key(userKey)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to erase stored session")
	}
}

func (s *State) key(name string) string {
	return s.keyPrefix + name
}
