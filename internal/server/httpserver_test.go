package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRedirectURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "valid HTTPS URL", url: "https://contacts.example.com/oauth/callback"},
		{name: "valid HTTP localhost", url: "http://localhost:8080/callback"},
		{name: "valid HTTP 127.0.0.1", url: "http://127.0.0.1:8080/callback"},
		{name: "valid HTTP ::1 (IPv6 loopback)", url: "http://[::1]:8080/callback"},
		{name: "HTTPS with port", url: "https://contacts.example.com:8443/cb"},
		{name: "invalid HTTP non-localhost", url: "http://contacts.example.com/cb", wantErr: true},
		{name: "invalid HTTP with localhost substring", url: "http://localhost.example.com", wantErr: true},
		{name: "invalid HTTP with 127.0.0.1 in domain", url: "http://127.0.0.1.example.com", wantErr: true},
		{name: "empty URL", url: "", wantErr: true},
		{name: "invalid URL format", url: "not a url", wantErr: true},
		{name: "invalid scheme", url: "ftp://example.com", wantErr: true},
		{name: "missing host", url: "https:///callback", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRedirectURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetricsMiddleware_NilMetrics(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metricsMiddleware(nil))
	r.Get("/coach/{coachId}/sheets-contacts", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/coach/42/sheets-contacts", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHTTPServer_StartAndShutdown(t *testing.T) {
	env := newTestEnv(t)
	srv := NewHTTPServer(Config{Service: nil, Sessions: env.store}, nil)

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start("127.0.0.1:0") }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-serverErr, http.ErrServerClosed)
}

func TestHTTPServer_MountsMCP(t *testing.T) {
	called := false
	mcp := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})
	srv := NewHTTPServer(Config{MCP: mcp}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHTTPServer_ShutdownWithoutStart(t *testing.T) {
	assert.NoError(t, NewHTTPServer(Config{}, nil).Shutdown(context.Background()))
}
