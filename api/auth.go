package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookie = "linkeeper_session"
	stateCookie   = "oauth_state"
)

// handleGoogleLogin starts the sign-in flow: stash a CSRF state cookie and
// bounce to the consent screen.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.google == nil || s.sessions == nil || s.users == nil {
		respondError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	state := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// handleGoogleCallback finishes the flow: validate state, trade the code
// for a profile, record the login and hand the browser a session cookie.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.google == nil || s.sessions == nil || s.users == nil {
		respondError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	stateParam := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || stateParam == "" || cookie.Value != stateParam {
		respondError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	profile, err := s.google.Exchange(r.Context(), code)
	if err != nil {
		respondError(w, http.StatusBadGateway, "sign-in failed")
		return
	}

	user, err := s.users.UpsertUser(r.Context(), profile.Email, profile.Name, profile.Picture)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record login")
		return
	}

	token, err := s.sessions.Issue(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.frontendURL, http.StatusTemporaryRedirect)
}

// handleMe returns the signed-in user's profile from the session token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	token := s.sessionToken(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	claims, err := s.sessions.Verify(token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid or expired session")
		return
	}

	// The stored record is fresher than the token: later logins refresh
	// name and picture without reissuing the session.
	if s.users != nil {
		if user, err := s.users.FindUserByEmail(r.Context(), claims.Email); err == nil {
			respondJSON(w, http.StatusOK, map[string]string{
				"id":      user.ID,
				"email":   user.Email,
				"name":    user.Name,
				"picture": user.Picture,
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id":      claims.Subject,
		"email":   claims.Email,
		"name":    claims.Name,
		"picture": claims.Picture,
	})
}

// handleLogout clears the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}
