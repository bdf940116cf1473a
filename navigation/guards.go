// Package navigation decides which views may be entered. Guards are pure: they read the session's local
// authentication flag and never touch the network.
package navigation

const (
	LoginPath = "/login"
	HomePath  = "/home/inventory"
)

// Authenticator is the read-only view of the session guards need.
type Authenticator interface {
	IsAuthenticated() bool
}

// Decision is the outcome of a guard. When Allow is false the caller should go to Redirect instead.
type Decision struct {
	Allow    bool
	Redirect string
}

// Guard decides whether a view may be entered.
type Guard func(Authenticator) Decision

// RequireAuth admits authenticated sessions and sends everyone else to the login view.
func RequireAuth(a Authenticator) Decision {
	if a != nil && a.IsAuthenticated() {
		return Decision{Allow: true}
	}
	return Decision{Redirect: LoginPath}
}

// RequireAnonymous admits anonymous sessions and sends authenticated ones to the home view.
func RequireAnonymous(a Authenticator) Decision {
	if a == nil || !a.IsAuthenticated() {
		return Decision{Allow: true}
	}
	return Decision{Redirect: HomePath}
}
