package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-pos-client/auth"
)

const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/auth"
	csrfHeader        = "X-CSRF-Token"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// LoginHandler answers with an access token, a body refresh token, a CSRF token and the user, and sets the
// refresh cookie. Body clients keep the refresh token, cookie clients keep the CSRF token.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		user, err := s.users.Authenticate(req.Email, req.Password)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Login rejected")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		res, ok := s.issue(w, user)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, auth.LoginResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			CSRFToken:    res.CSRFToken,
			User:         user.sessionUser(),
		})
	}
}

// RefreshHandler rotates the refresh credential. A body refresh token takes precedence; without one the
// refresh cookie is used and the X-CSRF-Token header must match the CSRF token issued with it.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if d := time.Duration(s.refreshDelay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}

		var req auth.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		token := req.RefreshToken
		viaCookie := token == ""
		if viaCookie {
			cookie, err := r.Cookie(refreshCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			token = cookie.Value
		}

		stored, err := s.tokens.ConsumeRefreshToken(token)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Refresh rejected")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if viaCookie && !s.checkCSRF(stored.UserID, r.Header.Get(csrfHeader)) {
			s.logger.Debug().Msg("Refresh rejected: CSRF token mismatch")
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}

		user, err := s.users.GetByID(stored.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		res, ok := s.issue(w, user)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// LogoutHandler revokes the presented refresh credential and clears the cookie. It always succeeds.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "" {
			s.tokens.RevokeRefreshToken(req.RefreshToken)
		}
		if cookie, err := r.Cookie(refreshCookieName); err == nil {
			s.tokens.RevokeRefreshToken(cookie.Value)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookieName,
			Value:    "",
			Path:     refreshCookiePath,
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.users.GetByID(claimsFrom(r).Subject)
		if err != nil {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeJSON(w, http.StatusOK, user.sessionUser())
	}
}

// issue creates a full credential set for user and sets the refresh cookie.
func (s *Server) issue(w http.ResponseWriter, user *demoUser) (auth.RefreshResponse, bool) {
	access, err := s.tokens.CreateAccessToken(user)
	if err != nil {
		s.logger.Err(err).Msg("Failed to create access token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return auth.RefreshResponse{}, false
	}
	refresh, err := s.tokens.CreateRefreshToken(user.ID)
	if err != nil {
		s.logger.Err(err).Msg("Failed to create refresh token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return auth.RefreshResponse{}, false
	}
	csrf := uuid.NewString()
	s.csrfLock.Lock()
	s.csrfTokens[user.ID] = csrf
	s.csrfLock.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refresh,
		Path:     refreshCookiePath,
		Expires:  s.nowFunc().Add(s.tokens.refreshTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return auth.RefreshResponse{AccessToken: access, RefreshToken: refresh, CSRFToken: csrf}, true
}

func (s *Server) checkCSRF(userID, presented string) bool {
	s.csrfLock.Lock()
	defer s.csrfLock.Unlock()
	expected, ok := s.csrfTokens[userID]
	return ok && presented != "" && presented == expected
}
