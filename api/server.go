// Package api exposes the HTTP surface: link CRUD for the frontend and
// bot, Google sign-in, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	linkeeper "github.com/linkeeper/linkeeper"
	"github.com/linkeeper/linkeeper/auth"
	"github.com/linkeeper/linkeeper/models"
)

// UserStore records logins for Google sign-in and serves stored profiles.
type UserStore interface {
	UpsertUser(ctx context.Context, email, name, picture string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// LinkCounter reports the live link count for health and the gauge.
type LinkCounter interface {
	CountLinks(ctx context.Context) (int, error)
}

// Config contains server configuration.
type Config struct {
	Addr        string
	APIKey      string // static key for trusted clients; empty disables key auth
	FrontendURL string // where the OAuth callback lands users, default "/"
	CORSEnabled bool
}

// Deps are the injected collaborators. Sessions, Google and Users may be
// nil together when interactive sign-in is not configured; Counter may be
// nil in tests.
type Deps struct {
	Links    *linkeeper.Service
	Users    UserStore
	Counter  LinkCounter
	Sessions *auth.JWTManager
	Google   *auth.Google
	Metrics  *Collector
}

// Server is the HTTP API server.
type Server struct {
	links    *linkeeper.Service
	users    UserStore
	counter  LinkCounter
	sessions *auth.JWTManager
	google   *auth.Google
	metrics  *Collector

	apiKey      string
	frontendURL string
	corsEnabled bool

	addr   string
	mux    *http.ServeMux
	server *http.Server
}

// NewServer wires routes and middleware.
func NewServer(config Config, deps Deps) *Server {
	frontendURL := config.FrontendURL
	if frontendURL == "" {
		frontendURL = "/"
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewCollector("linkeeper")
	}

	s := &Server{
		links:       deps.Links,
		users:       deps.Users,
		counter:     deps.Counter,
		sessions:    deps.Sessions,
		google:      deps.Google,
		metrics:     metrics,
		apiKey:      config.APIKey,
		frontendURL: frontendURL,
		corsEnabled: config.CORSEnabled,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.HandleFunc("/api/urls", s.requireAuth(s.handleLinks))
	s.mux.HandleFunc("/api/urls/", s.requireAuth(s.handleLinkByID)) // /api/urls/{id}

	s.mux.HandleFunc("/auth/google/login", s.handleGoogleLogin)
	s.mux.HandleFunc("/auth/google/callback", s.handleGoogleCallback)
	s.mux.HandleFunc("/auth/me", s.handleMe)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server.
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// UpdateLinkGauge refreshes the live link count gauge.
func (s *Server) UpdateLinkGauge(ctx context.Context) {
	if s.counter == nil {
		return
	}
	count, err := s.counter.CountLinks(ctx)
	if err != nil {
		slog.Warn("link gauge update failed", "error", err)
		return
	}
	s.metrics.LinksTotal.Set(float64(count))
}

// middleware applies CORS, logging and metrics to all routes.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		// Health checks would drown out everything else.
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			elapsed := time.Since(start)
			s.metrics.observe(r.Method, routeLabel(r.URL.Path), rec.status, elapsed)
			slog.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", elapsed,
			)
		}
	})
}

// routeLabel collapses id-bearing paths into one metric label to keep
// cardinality bounded.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/urls/") && path != "/api/urls/" {
		return "/api/urls/{id}"
	}
	return path
}

// requireAuth accepts either of the two credential schemes, API key first:
// an X-API-Key header from trusted automation, or a Bearer/cookie session
// token from the frontend.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-API-Key"); key != "" {
			if auth.ValidAPIKey(s.apiKey, key) {
				next(w, r)
				return
			}
			respondError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		if s.sessions != nil {
			if token := s.sessionToken(r); token != "" {
				if _, err := s.sessions.Verify(token); err == nil {
					next(w, r)
					return
				}
				respondError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
		}

		respondError(w, http.StatusUnauthorized, "authentication required: provide X-API-Key or a Bearer token")
	}
}

// sessionToken pulls the session JWT from the Authorization header or the
// session cookie.
func (s *Server) sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body := map[string]any{
		"status": "healthy",
		"time":   time.Now(),
	}
	if s.counter != nil {
		count, err := s.counter.CountLinks(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get link count")
			return
		}
		body["count"] = count
	}

	respondJSON(w, http.StatusOK, body)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
