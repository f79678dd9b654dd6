package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	people "google.golang.org/api/people/v1"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/instrumentation"
)

const (
	// DefaultTimeout bounds every single Google API attempt.
	DefaultTimeout = 15 * time.Second
	// DefaultRetryWait is the initial backoff before the one retry.
	DefaultRetryWait = 500 * time.Millisecond
)

// Backend is everything the contact service needs from Google for one coach.
type Backend interface {
	Drive
	Table(spreadsheetID string) contacts.Table
	ListConnections(ctx context.Context) ([]contacts.Patch, error)
}

// Config configures a Client.
type Config struct {
	// HTTPClient must already authorize requests, see google.HTTPClient.
	HTTPClient *http.Client
	// Endpoint replaces the Google API base URL for all services.
	Endpoint  string
	Timeout   time.Duration
	RetryWait time.Duration
	Logger    *slog.Logger
	Metrics   *instrumentation.Metrics
}

// Client talks to the Sheets, Drive and People APIs on behalf of one coach.
type Client struct {
	sheets *sheets.Service
	drive  *drive.Service
	people *people.Service

	timeout   time.Duration
	retryWait time.Duration
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
}

var _ Backend = (*Client)(nil)

// NewClient creates the API services over cfg.HTTPClient.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.HTTPClient == nil {
		return nil, fmt.Errorf("sheets: an authorized HTTP client is required")
	}

	opts := []option.ClientOption{option.WithHTTPClient(cfg.HTTPClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	peopleService, err := people.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create People service: %w", err)
	}

	c := &Client{
		sheets:    sheetsService,
		drive:     driveService,
		people:    peopleService,
		timeout:   cfg.Timeout,
		retryWait: cfg.RetryWait,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retryWait <= 0 {
		c.retryWait = DefaultRetryWait
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Table returns the contact table of spreadsheetID.
func (c *Client) Table(spreadsheetID string) contacts.Table {
	return &Table{client: c, spreadsheetID: spreadsheetID}
}
