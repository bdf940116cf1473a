package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated identity returned by the backend on login.
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
}

// Session is the authenticated context for the process.
// A refresh credential may outlive the access credential, but a User is only ever reported
// alongside an access credential that is not known to be expired.
type Session struct {
	User         *User     // nil when anonymous
	AccessToken  string    // Bearer credential attached to API requests
	RefreshToken string    // Body-mode refresh credential, memory only
	CSRFToken    string    // Cookie-mode secondary credential, memory only
	Expiry       time.Time // exp claim of the access token, zero when unknown
}

// Anonymous reports whether the session carries no access credential.
func (s Session) Anonymous() bool {
	return s.AccessToken == ""
}

// Expired reports whether the access credential is known to have expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// HasRefreshCredential reports whether there is anything to exchange for a new access credential.
func (s Session) HasRefreshCredential() bool {
	return s.RefreshToken != "" || s.CSRFToken != ""
}

func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// accessTokenExpiry reads the exp claim without verifying the signature; the client cannot verify it
// and only uses it to know when a credential is stale.
func accessTokenExpiry(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
