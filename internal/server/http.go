package server

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"

	"github.com/teemow/coachcontacts/internal/contactsync"
	"github.com/teemow/coachcontacts/internal/instrumentation"
)

const (
	// MaxBodyBytes caps every request body.
	MaxBodyBytes = 1 << 20

	// DefaultHTTPAddr is where the contact endpoints listen by default.
	DefaultHTTPAddr = ":8080"

	// DefaultExchangeTimeout bounds the authorization code exchange.
	DefaultExchangeTimeout = 15 * time.Second

	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, session-id, X-Session-ID"
	corsMaxAge       = "600"
)

// Config wires the HTTP endpoint layer.
type Config struct {
	Service  *contactsync.Service
	Sessions SessionStore

	// OAuth enables POST /oauth/exchange when set.
	OAuth *oauth2.Config
	// ExchangeTimeout bounds the token endpoint call. Defaults to DefaultExchangeTimeout.
	ExchangeTimeout time.Duration

	// AllowedOrigins lists CORS origins. Empty or "*" allows any origin.
	AllowedOrigins []string

	Health *HealthChecker
	// MCP is mounted at /mcp when set.
	MCP http.Handler

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

type handler struct {
	svc      *contactsync.Service
	sessions SessionStore
	oauth    *oauth2.Config
	logger   *slog.Logger

	exchangeTimeout time.Duration
}

// NewHandler returns the router serving the contact endpoints, the legacy
// flat routes, the session adapter and the health probes.
func NewHandler(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthChecker(nil)
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = DefaultExchangeTimeout
	}
	h := &handler{
		svc:             cfg.Service,
		sessions:        cfg.Sessions,
		oauth:           cfg.OAuth,
		logger:          cfg.Logger,
		exchangeTimeout: cfg.ExchangeTimeout,
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(metricsMiddleware(cfg.Metrics))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "NotFound", Message: "no such route"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "MethodNotAllowed", Message: "method not allowed"})
	})

	r.Route("/coach/{coachId}", func(r chi.Router) {
		r.Get("/sheets-contacts", h.list)
		r.Post("/sheets-contacts", h.add)
		r.Post("/sheets-contacts/sync", h.sync)
		r.Post("/sheets-contacts/import", h.importPeople)
		r.Get("/sheets-contacts/{id}", h.get)
		r.Put("/sheets-contacts/{id}", h.update)
		r.Delete("/sheets-contacts/{id}", h.remove)
		r.Post("/init-sheets-contacts", h.initSheet)
	})

	r.Route("/sheets-contacts", func(r chi.Router) {
		r.Post("/list", h.legacyList)
		r.Post("/add", h.legacyAdd)
		r.Post("/update", h.legacyUpdate)
		r.Post("/delete", h.legacyDelete)
		r.Post("/init", h.legacyInit)
		r.Post("/sync", h.legacySync)
	})
	r.Post("/sheets/create-contacts", h.createContactsSheet)

	if cfg.OAuth != nil {
		r.Post("/oauth/exchange", h.exchange)
	}
	r.Delete("/session", h.logout)

	cfg.Health.RegisterHealthEndpoints(r)
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}
	return r
}

// corsMiddleware sets the CORS headers on every response and answers
// preflight requests itself, before any session check.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	anyOrigin := len(allowed) == 0 || slices.Contains(allowed, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := w.Header()
			if anyOrigin {
				hdr.Set("Access-Control-Allow-Origin", "*")
			} else {
				origin := r.Header.Get("Origin")
				if !slices.Contains(allowed, origin) {
					origin = allowed[0]
				}
				hdr.Set("Access-Control-Allow-Origin", origin)
				hdr.Add("Vary", "Origin")
			}
			hdr.Set("Access-Control-Allow-Methods", corsAllowMethods)
			hdr.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			hdr.Set("Access-Control-Max-Age", corsMaxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware records every request under its chi route pattern, so
// coach and contact ids never become label values.
func metricsMiddleware(m *instrumentation.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					pattern = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(r.Context(), r.Method, pattern, status, time.Since(start))
		})
	}
}

// ParseOrigins splits a comma-separated origin list.
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
