package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/coachcontacts/internal/contactsync"
	"github.com/teemow/coachcontacts/internal/credentials"
	"github.com/teemow/coachcontacts/internal/google"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/logging"
	"github.com/teemow/coachcontacts/internal/server"
	"github.com/teemow/coachcontacts/internal/sheets"
	"github.com/teemow/coachcontacts/internal/tools/contacts_tools"
)

// Transport names accepted by --transport.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// SessionStorageConfig selects where sessions are persisted.
type SessionStorageConfig struct {
	// Type is "memory", "file" or "valkey" (default: "memory")
	Type string

	// FilePath is used when Type is "file". Empty means the XDG data directory.
	FilePath string

	// Valkey configuration (used when Type is "valkey")
	Valkey ValkeyStorageConfig

	// EncryptionKey is a base64 AES-256 key sealing persisted sessions.
	EncryptionKey string
}

// ValkeyStorageConfig holds configuration for Valkey storage backend
type ValkeyStorageConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// KeyPrefix is the prefix for all Valkey keys (default: "coachcontacts:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

type serveConfig struct {
	Debug     bool
	LogFormat string
	EnvFile   string

	Transport string
	HTTPAddr  string
	Yolo      bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	AllowedOrigins string
	RemoteTimeout  time.Duration
	RefreshMargin  time.Duration

	Session SessionStorageConfig
	Metrics MetricsConfig
}

func newServeCmd() *cobra.Command {
	var cfg serveConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service and the MCP server",
		Long: `Start the contact service for the coaching dashboard.

Supports multiple transport types:
  - streamable-http: HTTP endpoints for the dashboard plus MCP at /mcp (default)
  - stdio: MCP over standard input/output

Safety Mode:
  By default the MCP tools are read-only. Use --yolo to enable the tools that
  modify the coach's sheet. The HTTP endpoints are not affected.

Sessions:
  The dashboard exchanges a Google authorization code at POST /oauth/exchange
  and sends the returned id in the session-id header. Sessions are kept in
  memory, in a file or in Valkey (--session-storage-type). Set
  SESSION_ENCRYPTION_KEY to encrypt persisted sessions.

Every flag can also be set through the environment variable named in its
help text, or in a .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(cfg.EnvFile); err != nil {
				return err
			}
			if err := loadServeEnvVars(cmd, &cfg); err != nil {
				return err
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	f.StringVar(&cfg.LogFormat, "log-format", logging.FormatText, "Log format: text or json. Can also use LOG_FORMAT env var.")
	f.StringVar(&cfg.EnvFile, "env-file", ".env", "File with environment variables to load. A missing file is ignored.")
	f.StringVar(&cfg.Transport, "transport", TransportStreamableHTTP, "Transport type: streamable-http or stdio")
	f.StringVar(&cfg.HTTPAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	f.BoolVar(&cfg.Yolo, "yolo", false, "Enable MCP tools that modify the contact sheet. Default is read-only mode.")

	f.StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	f.StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	f.StringVar(&cfg.GoogleRedirectURL, "google-redirect-url", "", "Default OAuth redirect URL for code exchange. Can also use GOOGLE_REDIRECT_URL env var.")

	f.StringVar(&cfg.AllowedOrigins, "cors-allowed-origins", "*", "Comma-separated CORS origins. Can also use CORS_ALLOWED_ORIGINS env var.")
	f.DurationVar(&cfg.RemoteTimeout, "remote-timeout", sheets.DefaultTimeout, "Timeout for each Google API call. Can also use REMOTE_TIMEOUT env var.")
	f.DurationVar(&cfg.RefreshMargin, "refresh-margin", credentials.DefaultRefreshMargin, "Refresh access tokens this long before they expire. Can also use REFRESH_MARGIN env var.")

	f.StringVar(&cfg.Session.Type, "session-storage-type", string(credentials.StorageTypeMemory), "Session storage type: memory, file or valkey. Can also use SESSION_STORAGE_TYPE env var.")
	f.StringVar(&cfg.Session.FilePath, "session-file-path", "", "Session file for file storage (default: XDG data directory). Can also use SESSION_FILE_PATH env var.")
	f.StringVar(&cfg.Session.EncryptionKey, "session-encryption-key", "", "AES-256 key for persisted sessions (32 bytes, base64 encoded). Can also use SESSION_ENCRYPTION_KEY env var. Generate with: openssl rand -base64 32")
	f.StringVar(&cfg.Session.Valkey.URL, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	f.StringVar(&cfg.Session.Valkey.Password, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	f.BoolVar(&cfg.Session.Valkey.TLSEnabled, "valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	f.StringVar(&cfg.Session.Valkey.KeyPrefix, "valkey-key-prefix", "coachcontacts:", "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	f.IntVar(&cfg.Session.Valkey.DB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")

	f.BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	f.StringVar(&cfg.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadDotEnv loads path into the environment. Variables that are already set
// win over the file.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadServeEnvVars fills every flag that was not set on the command line from
// its environment variable.
func loadServeEnvVars(cmd *cobra.Command, cfg *serveConfig) error {
	env := envLoader{cmd: cmd}

	env.String("log-format", "LOG_FORMAT", &cfg.LogFormat)
	env.String("http-addr", "HTTP_ADDR", &cfg.HTTPAddr)
	env.String("google-client-id", "GOOGLE_CLIENT_ID", &cfg.GoogleClientID)
	env.String("google-client-secret", "GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret)
	env.String("google-redirect-url", "GOOGLE_REDIRECT_URL", &cfg.GoogleRedirectURL)
	env.String("cors-allowed-origins", "CORS_ALLOWED_ORIGINS", &cfg.AllowedOrigins)
	env.Duration("remote-timeout", "REMOTE_TIMEOUT", &cfg.RemoteTimeout)
	env.Duration("refresh-margin", "REFRESH_MARGIN", &cfg.RefreshMargin)

	env.String("session-storage-type", "SESSION_STORAGE_TYPE", &cfg.Session.Type)
	env.String("session-file-path", "SESSION_FILE_PATH", &cfg.Session.FilePath)
	env.String("session-encryption-key", "SESSION_ENCRYPTION_KEY", &cfg.Session.EncryptionKey)
	env.String("valkey-url", "VALKEY_URL", &cfg.Session.Valkey.URL)
	env.String("valkey-password", "VALKEY_PASSWORD", &cfg.Session.Valkey.Password)
	env.Bool("valkey-tls", "VALKEY_TLS_ENABLED", &cfg.Session.Valkey.TLSEnabled)
	env.String("valkey-key-prefix", "VALKEY_KEY_PREFIX", &cfg.Session.Valkey.KeyPrefix)
	env.Int("valkey-db", "VALKEY_DB", &cfg.Session.Valkey.DB)

	env.Bool("metrics-enabled", "METRICS_ENABLED", &cfg.Metrics.Enabled)
	env.String("metrics-addr", "METRICS_ADDR", &cfg.Metrics.Addr)

	return errors.Join(env.errs...)
}

type envLoader struct {
	cmd  *cobra.Command
	errs []error
}

func (l *envLoader) lookup(flag, key string) (string, bool) {
	if l.cmd.Flags().Changed(flag) {
		return "", false
	}
	v := os.Getenv(key)
	return v, v != ""
}

func (l *envLoader) String(flag, key string, dst *string) {
	if v, ok := l.lookup(flag, key); ok {
		*dst = v
	}
}

func (l *envLoader) Bool(flag, key string, dst *bool) {
	if v, ok := l.lookup(flag, key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid %s value %q (expected true/false)", key, v))
			return
		}
		*dst = b
	}
}

func (l *envLoader) Int(flag, key string, dst *int) {
	if v, ok := l.lookup(flag, key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid %s value %q (expected an integer)", key, v))
			return
		}
		*dst = n
	}
}

func (l *envLoader) Duration(flag, key string, dst *time.Duration) {
	if v, ok := l.lookup(flag, key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid %s value %q (expected a duration like 15s)", key, v))
			return
		}
		*dst = d
	}
}

func (c serveConfig) validate() error {
	switch c.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", c.Transport)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("remote timeout must be positive, got %s", c.RemoteTimeout)
	}
	if c.RefreshMargin < 0 {
		return fmt.Errorf("refresh margin must not be negative, got %s", c.RefreshMargin)
	}
	switch credentials.StorageType(c.Session.Type) {
	case credentials.StorageTypeMemory, credentials.StorageTypeFile:
	case credentials.StorageTypeValkey:
		if c.Session.Valkey.URL == "" {
			return fmt.Errorf("valkey URL is required when session storage type is valkey")
		}
	default:
		return fmt.Errorf("unsupported session storage type: %s (supported: memory, file, valkey)", c.Session.Type)
	}
	if c.GoogleRedirectURL != "" {
		if err := server.ValidateRedirectURL(c.GoogleRedirectURL); err != nil {
			return fmt.Errorf("invalid Google redirect URL: %w", err)
		}
	}
	return nil
}

func runServe(ctx context.Context, cfg serveConfig) error {
	logger := logging.Setup(logging.Options{Debug: cfg.Debug, Format: cfg.LogFormat})

	// Setup graceful shutdown
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	if cfg.Transport != TransportStdio && cfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", logging.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	oauthConfig, refresher, err := newGoogleOAuth(cfg, logger)
	if err != nil {
		return err
	}

	persister, closePersister, err := newSessionPersister(cfg.Session)
	if err != nil {
		return err
	}
	defer closePersister()

	store := credentials.NewStore(refresher,
		credentials.WithRefreshMargin(cfg.RefreshMargin),
		credentials.WithPersister(persister),
		credentials.WithLogger(logger),
		credentials.WithMetrics(metrics),
	)
	store.StartCleanup(ctx, credentials.DefaultCleanupInterval)

	svc := contactsync.New(store,
		contactsync.GoogleBackends(sheets.Config{Timeout: cfg.RemoteTimeout, Logger: logger, Metrics: metrics}),
		contactsync.WithLogger(logger),
		contactsync.WithMetrics(metrics),
	)

	serverContext := server.NewServerContext(ctx, svc, store, cfg.Yolo)
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()
	if provider.Enabled() {
		serverContext.SetMetrics(metrics)
		serverContext.SetAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging))
	}

	mcpSrv := mcpserver.NewMCPServer("coachcontacts", version,
		mcpserver.WithToolCapabilities(true),
	)

	readOnly := !cfg.Yolo
	if readOnly {
		logger.Info("MCP tools are READ-ONLY (use --yolo to enable write operations)")
	} else {
		logger.Info("MCP write tools enabled (--yolo flag is set)")
	}
	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	switch cfg.Transport {
	case TransportStdio:
		return runStdioServer(mcpSrv)
	default:
		return runStreamableHTTPServer(ctx, mcpSrv, serverContext, oauthConfig, cfg, metrics, logger)
	}
}

// newGoogleOAuth builds the OAuth client used for code exchange and refresh.
// Without client credentials sessions can still be resolved but never
// refreshed or created.
func newGoogleOAuth(cfg serveConfig, logger *slog.Logger) (*oauth2.Config, credentials.Refresher, error) {
	oauthConfig, err := google.NewOAuth2Config(google.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	if errors.Is(err, google.ErrMissingClientCredentials) {
		logger.Warn("Google OAuth client is not configured: /oauth/exchange is disabled and tokens are not refreshed",
			slog.String("hint", "set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET"))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Google OAuth config: %w", err)
	}
	return oauthConfig, &credentials.OAuthRefresher{Config: oauthConfig}, nil
}

// newSessionPersister opens the configured session storage. The returned
// function releases it.
func newSessionPersister(cfg SessionStorageConfig) (credentials.Persister, func(), error) {
	noop := func() {}

	key, err := credentials.KeyFromBase64(cfg.EncryptionKey)
	if err != nil {
		return nil, noop, fmt.Errorf("invalid session encryption key: %w", err)
	}
	codec, err := credentials.NewCodec(key)
	if err != nil {
		return nil, noop, err
	}

	switch credentials.StorageType(cfg.Type) {
	case credentials.StorageTypeFile:
		p, err := credentials.NewFilePersister(cfg.FilePath, codec)
		if err != nil {
			return nil, noop, err
		}
		if !codec.Encrypted() {
			slog.Warn("Sessions are stored unencrypted, set SESSION_ENCRYPTION_KEY", slog.String("path", p.Path()))
		}
		return p, noop, nil
	case credentials.StorageTypeValkey:
		p, err := credentials.NewValkeyPersister(credentials.ValkeyConfig{
			Addr:       cfg.Valkey.URL,
			Password:   cfg.Valkey.Password,
			DB:         cfg.Valkey.DB,
			KeyPrefix:  cfg.Valkey.KeyPrefix,
			TLSEnabled: cfg.Valkey.TLSEnabled,
		}, codec)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case credentials.StorageTypeMemory, "":
		return credentials.MemoryPersister{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported session storage type: %s", cfg.Type)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := contacts_tools.RegisterContactTools(mcpSrv, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register contact tools: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, oauthConfig *oauth2.Config, cfg serveConfig, metrics *instrumentation.Metrics, logger *slog.Logger) error {
	healthChecker := server.NewHealthChecker(sc)

	httpServer := server.NewHTTPServer(server.Config{
		Service:         sc.Contacts(),
		Sessions:        sc.Sessions(),
		OAuth:           oauthConfig,
		ExchangeTimeout: cfg.RemoteTimeout,
		AllowedOrigins:  server.ParseOrigins(cfg.AllowedOrigins),
		Health:          healthChecker,
		Metrics:         metrics,
		Logger:          logger,
	}, mcpSrv)

	logger.Info("Contact service starting",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("mcp_endpoint", "/mcp"),
		slog.String("session_storage", cfg.Session.Type),
		slog.Bool("oauth_exchange", oauthConfig != nil),
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
		healthChecker.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		logger.Info("HTTP server stopped normally")
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}
