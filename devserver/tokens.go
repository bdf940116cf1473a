package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	issuer   = "https://dev.pos.local"
	audience = "punto-de-venta-web"

	refreshTokenLength = 32
)

var (
	errInvalidToken = errors.New("invalid token")
	errTokenRevoked = errors.New("token revoked")
)

// storedRefreshToken is the server-side record of an opaque refresh token.
type storedRefreshToken struct {
	Token  string
	UserID string
	Iat    time.Time
}

// tokenIssuer signs access tokens with HS256 and keeps one rotating refresh token per user.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFunc    func() time.Time

	lock          sync.RWMutex
	refreshTokens map[string]*storedRefreshToken // token -> record
	byUser        map[string]string              // user id -> token
	generation    uint64                         // access tokens of an older generation are rejected
}

func newTokenIssuer(secret string, accessTTL, refreshTTL time.Duration, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		secret:        []byte(secret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		nowFunc:       now,
		refreshTokens: make(map[string]*storedRefreshToken),
		byUser:        make(map[string]string),
	}
}

type accessClaims struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID string `json:"tenant,omitempty"`
	Gen      uint64 `json:"gen"`
	jwt.RegisteredClaims
}

func (ti *tokenIssuer) CreateAccessToken(u *demoUser) (string, error) {
	now := ti.nowFunc()
	ti.lock.RLock()
	gen := ti.generation
	ti.lock.RUnlock()
	claims := accessClaims{
		Email:    u.Email,
		Role:     u.Role,
		TenantID: u.TenantID,
		Gen:      gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", errors.Wrap(err, "[tokenIssuer.CreateAccessToken] SignedString")
	}
	return signed, nil
}

// VerifyAccessToken checks signature, issuer, audience and expiry and returns the claims.
func (ti *tokenIssuer) VerifyAccessToken(raw string) (*accessClaims, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(ti.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Wrap(errInvalidToken, err.Error())
	}

	ti.lock.RLock()
	current := ti.generation
	ti.lock.RUnlock()
	if claims.Gen < current {
		return nil, errors.Wrap(errTokenRevoked, "[tokenIssuer.VerifyAccessToken]")
	}
	return &claims, nil
}

// ExpireAccessTokens rejects every access token issued so far.
func (ti *tokenIssuer) ExpireAccessTokens() {
	ti.lock.Lock()
	defer ti.lock.Unlock()
	ti.generation++
}

// CreateRefreshToken issues a new refresh token for the user, replacing any previous one.
func (ti *tokenIssuer) CreateRefreshToken(userID string) (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[tokenIssuer.CreateRefreshToken] rand.Read")
	}
	token := "rt_" + hex.EncodeToString(tokenBytes)

	ti.lock.Lock()
	defer ti.lock.Unlock()
	if existing, ok := ti.byUser[userID]; ok {
		delete(ti.refreshTokens, existing)
	}
	ti.refreshTokens[token] = &storedRefreshToken{Token: token, UserID: userID, Iat: ti.nowFunc()}
	ti.byUser[userID] = token
	return token, nil
}

// ConsumeRefreshToken validates token and removes it, so each refresh token is usable once.
func (ti *tokenIssuer) ConsumeRefreshToken(token string) (*storedRefreshToken, error) {
	ti.lock.Lock()
	defer ti.lock.Unlock()

	rt, ok := ti.refreshTokens[token]
	if !ok {
		return nil, errors.Wrap(errInvalidToken, "[tokenIssuer.ConsumeRefreshToken] unknown refresh token")
	}
	delete(ti.refreshTokens, token)
	delete(ti.byUser, rt.UserID)
	if ti.nowFunc().Sub(rt.Iat) > ti.refreshTTL {
		return nil, errors.Wrap(errInvalidToken, "[tokenIssuer.ConsumeRefreshToken] refresh token expired")
	}
	return rt, nil
}

// RevokeRefreshTokens forgets every refresh token.
func (ti *tokenIssuer) RevokeRefreshTokens() {
	ti.lock.Lock()
	defer ti.lock.Unlock()
	ti.refreshTokens = make(map[string]*storedRefreshToken)
	ti.byUser = make(map[string]string)
}

func (ti *tokenIssuer) RevokeRefreshToken(token string) {
	ti.lock.Lock()
	defer ti.lock.Unlock()
	if rt, ok := ti.refreshTokens[token]; ok {
		delete(ti.byUser, rt.UserID)
		delete(ti.refreshTokens, token)
	}
}
