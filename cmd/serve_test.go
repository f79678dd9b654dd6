package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/coachcontacts/internal/credentials"
	"github.com/teemow/coachcontacts/internal/sheets"
)

func validConfig() serveConfig {
	return serveConfig{
		Transport:     TransportStreamableHTTP,
		RemoteTimeout: sheets.DefaultTimeout,
		RefreshMargin: credentials.DefaultRefreshMargin,
		Session:       SessionStorageConfig{Type: string(credentials.StorageTypeMemory)},
	}
}

func TestServeCmd_Defaults(t *testing.T) {
	cmd := newServeCmd()

	for flag, want := range map[string]string{
		"transport":            TransportStreamableHTTP,
		"http-addr":            ":8080",
		"metrics-addr":         ":9090",
		"session-storage-type": "memory",
		"remote-timeout":       "15s",
		"refresh-margin":       "5m0s",
		"yolo":                 "false",
	} {
		f := cmd.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, want, f.DefValue, flag)
	}
}

func TestLoadServeEnvVars(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("GOOGLE_CLIENT_ID", "env-client")
	t.Setenv("REMOTE_TIMEOUT", "3s")
	t.Setenv("REFRESH_MARGIN", "2m")
	t.Setenv("SESSION_STORAGE_TYPE", "valkey")
	t.Setenv("VALKEY_URL", "valkey:6379")
	t.Setenv("VALKEY_DB", "2")
	t.Setenv("VALKEY_TLS_ENABLED", "true")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://dash.example.com")

	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--google-client-id", "flag-client", "--valkey-db", "5"}))

	var cfg serveConfig
	cfg.GoogleClientID = "flag-client"
	cfg.Session.Valkey.DB = 5
	cfg.Metrics.Enabled = true
	require.NoError(t, loadServeEnvVars(cmd, &cfg))

	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "flag-client", cfg.GoogleClientID, "explicit flag wins")
	assert.Equal(t, 3*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, 2*time.Minute, cfg.RefreshMargin)
	assert.Equal(t, "valkey", cfg.Session.Type)
	assert.Equal(t, "valkey:6379", cfg.Session.Valkey.URL)
	assert.Equal(t, 5, cfg.Session.Valkey.DB, "explicit flag wins")
	assert.True(t, cfg.Session.Valkey.TLSEnabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "https://dash.example.com", cfg.AllowedOrigins)
}

func TestLoadServeEnvVars_InvalidValues(t *testing.T) {
	t.Setenv("REMOTE_TIMEOUT", "soon")
	t.Setenv("VALKEY_DB", "first")
	t.Setenv("METRICS_ENABLED", "maybe")

	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Parse(nil))

	cfg := validConfig()
	err := loadServeEnvVars(cmd, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REMOTE_TIMEOUT")
	assert.Contains(t, err.Error(), "VALKEY_DB")
	assert.Contains(t, err.Error(), "METRICS_ENABLED")
	assert.Equal(t, sheets.DefaultTimeout, cfg.RemoteTimeout)
}

func TestServeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*serveConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*serveConfig) {}},
		{name: "stdio", mutate: func(c *serveConfig) { c.Transport = TransportStdio }},
		{name: "unknown transport", mutate: func(c *serveConfig) { c.Transport = "sse" }, wantErr: "unsupported transport"},
		{name: "zero timeout", mutate: func(c *serveConfig) { c.RemoteTimeout = 0 }, wantErr: "remote timeout"},
		{name: "negative margin", mutate: func(c *serveConfig) { c.RefreshMargin = -time.Second }, wantErr: "refresh margin"},
		{name: "unknown storage", mutate: func(c *serveConfig) { c.Session.Type = "redis" }, wantErr: "unsupported session storage"},
		{name: "valkey without url", mutate: func(c *serveConfig) { c.Session.Type = "valkey" }, wantErr: "valkey URL is required"},
		{
			name: "valkey with url",
			mutate: func(c *serveConfig) {
				c.Session.Type = "valkey"
				c.Session.Valkey.URL = "valkey:6379"
			},
		},
		{name: "https redirect", mutate: func(c *serveConfig) { c.GoogleRedirectURL = "https://dash.example.com/callback" }},
		{name: "plain http redirect", mutate: func(c *serveConfig) { c.GoogleRedirectURL = "http://dash.example.com/callback" }, wantErr: "redirect URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewSessionPersister(t *testing.T) {
	key := "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 bytes

	tests := []struct {
		name     string
		cfg      SessionStorageConfig
		wantType any
		wantErr  string
	}{
		{name: "memory", cfg: SessionStorageConfig{Type: "memory"}, wantType: credentials.MemoryPersister{}},
		{name: "default", cfg: SessionStorageConfig{}, wantType: credentials.MemoryPersister{}},
		{
			name:     "encrypted file",
			cfg:      SessionStorageConfig{Type: "file", EncryptionKey: key},
			wantType: &credentials.FilePersister{},
		},
		{name: "bad key", cfg: SessionStorageConfig{Type: "file", EncryptionKey: "c2hvcnQ="}, wantErr: "encryption key"},
		{name: "unsupported", cfg: SessionStorageConfig{Type: "redis"}, wantErr: "unsupported"},
		{name: "valkey without address", cfg: SessionStorageConfig{Type: "valkey"}, wantErr: "valkey address is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Type == "file" {
				tt.cfg.FilePath = filepath.Join(t.TempDir(), "sessions.json")
			}

			p, closeFn, err := newSessionPersister(tt.cfg)
			require.NotNil(t, closeFn)
			defer closeFn()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, p)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))
	assert.NoError(t, loadDotEnv(""))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("COACHCONTACTS_TEST_VALUE=from-file\nCOACHCONTACTS_TEST_SET=from-file\n"), 0o600))
	t.Setenv("COACHCONTACTS_TEST_SET", "from-env")
	t.Setenv("COACHCONTACTS_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("COACHCONTACTS_TEST_VALUE"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("COACHCONTACTS_TEST_VALUE"))
	assert.Equal(t, "from-env", os.Getenv("COACHCONTACTS_TEST_SET"), "environment wins over the file")
}
