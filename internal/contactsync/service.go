// Package contactsync runs contact operations for an authenticated session.
//
// A Service resolves the caller's session to a Google credential, binds the
// coach to a tagged spreadsheet through a sheets.Locator and executes the
// operation with a contacts.Repository over that sheet. It is shared by the
// HTTP endpoints and the MCP tools.
package contactsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/credentials"
	"github.com/teemow/coachcontacts/internal/google"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/logging"
	"github.com/teemow/coachcontacts/internal/sheets"
)

// CredentialSource resolves and drops session credentials.
// *credentials.Store satisfies it.
type CredentialSource interface {
	Resolve(ctx context.Context, sessionID string) (credentials.Credential, error)
	Evict(ctx context.Context, sessionID string)
}

// BackendFactory opens the Google backend of one resolved credential.
type BackendFactory func(ctx context.Context, cred credentials.Credential) (sheets.Backend, error)

// GoogleBackends returns a BackendFactory that talks to the real Google APIs.
// cfg.HTTPClient is replaced by a client authorized with the credential.
func GoogleBackends(cfg sheets.Config) BackendFactory {
	return func(ctx context.Context, cred credentials.Credential) (sheets.Backend, error) {
		c := cfg
		c.HTTPClient = google.HTTPClient(ctx, cred.Token())
		return sheets.NewClient(ctx, c)
	}
}

// Scope identifies who is calling and for which coach.
type Scope struct {
	SessionID string
	CoachID   string
}

// Service runs contact operations on behalf of a session. It resolves the
// session's credential, binds the coach to a spreadsheet and executes the
// operation through a contacts.Repository.
type Service struct {
	creds    CredentialSource
	backends BackendFactory
	locator  *sheets.Locator

	repoOpts []contacts.Option
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLocator shares a Locator between services.
func WithLocator(l *sheets.Locator) Option {
	return func(s *Service) {
		if l != nil {
			s.locator = l
		}
	}
}

// WithRepositoryOptions passes options to every Repository the service builds.
func WithRepositoryOptions(opts ...contacts.Option) Option {
	return func(s *Service) { s.repoOpts = append(s.repoOpts, opts...) }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service.
func New(creds CredentialSource, backends BackendFactory, opts ...Option) *Service {
	s := &Service{
		creds:    creds,
		backends: backends,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locator == nil {
		s.locator = sheets.NewLocator(sheets.WithLocatorLogger(s.logger), sheets.WithLocatorMetrics(s.metrics))
	}
	return s
}

// Locator returns the locator holding the coach to spreadsheet bindings.
func (s *Service) Locator() *sheets.Locator {
	return s.locator
}

// binding is what an operation works with once the coach's sheet is known.
type binding struct {
	repo          *contacts.Repository
	backend       sheets.Backend
	spreadsheetID string
}

// run resolves the session, binds the coach's sheet and calls fn. When the
// bound spreadsheet turns out to be gone, the binding is dropped and fn runs
// once more against a freshly located sheet. An auth failure evicts the session.
func (s *Service) run(ctx context.Context, op string, sc Scope, sheetName string, fn func(ctx context.Context, b binding) error) (spreadsheetID string, err error) {
	coachID := strings.TrimSpace(sc.CoachID)
	if coachID == "" {
		return "", contacts.ValidationError("coach id is required")
	}

	ctx, span := instrumentation.StartSpan(ctx, "contacts."+op, instrumentation.Tenant(coachID))
	defer func() { instrumentation.EndSpan(span, err) }()

	logger := logging.WithOperation(logging.WithTenant(s.logger, coachID), op)

	cred, err := s.creds.Resolve(ctx, sc.SessionID)
	if err != nil {
		return "", err
	}

	defer func() {
		if errors.Is(err, credentials.ErrAuthRequired) {
			s.creds.Evict(context.WithoutCancel(ctx), sc.SessionID)
			logger.Warn("Google rejected the session credential, session evicted",
				logging.SessionHash(sc.SessionID), logging.Err(err))
		}
	}()

	backend, err := s.backends(ctx, cred)
	if err != nil {
		return "", fmt.Errorf("failed to open Google backend: %w", err)
	}

	for attempt := 0; ; attempt++ {
		spreadsheetID, err = s.locator.FindOrCreate(ctx, backend, coachID, sheetName)
		if err != nil {
			return "", err
		}

		repo := contacts.NewRepository(backend.Table(spreadsheetID), s.repositoryOptions(logger)...)
		err = fn(ctx, binding{repo: repo, backend: backend, spreadsheetID: spreadsheetID})
		if attempt == 0 && errors.Is(err, sheets.ErrSpreadsheetNotFound) {
			logger.Warn("Bound contact sheet is gone, locating it again",
				logging.Spreadsheet(spreadsheetID), logging.Err(err))
			s.locator.Forget(coachID)
			continue
		}
		return spreadsheetID, err
	}
}

func (s *Service) repositoryOptions(logger *slog.Logger) []contacts.Option {
	opts := []contacts.Option{contacts.WithLogger(logger), contacts.WithMetrics(s.metrics)}
	return append(opts, s.repoOpts...)
}

// List returns all contacts of the coach along with the spreadsheet id.
func (s *Service) List(ctx context.Context, sc Scope) (contacts.ListResult, string, error) {
	var res contacts.ListResult
	id, err := s.run(ctx, instrumentation.OperationList, sc, "", func(ctx context.Context, b binding) error {
		var err error
		res, err = b.repo.ListAll(ctx)
		return err
	})
	return res, id, err
}

// Get returns one contact.
func (s *Service) Get(ctx context.Context, sc Scope, contactID string) (contacts.Contact, error) {
	var c contacts.Contact
	_, err := s.run(ctx, instrumentation.OperationGet, sc, "", func(ctx context.Context, b binding) error {
		var err error
		c, err = b.repo.Get(ctx, contactID)
		return err
	})
	return c, err
}

// Add creates a contact.
func (s *Service) Add(ctx context.Context, sc Scope, p contacts.Patch) (contacts.Contact, error) {
	var c contacts.Contact
	_, err := s.run(ctx, instrumentation.OperationCreate, sc, "", func(ctx context.Context, b binding) error {
		var err error
		c, err = b.repo.Add(ctx, p)
		return err
	})
	return c, err
}

// Update applies p to an existing contact.
func (s *Service) Update(ctx context.Context, sc Scope, contactID string, p contacts.Patch) (contacts.Contact, error) {
	var c contacts.Contact
	_, err := s.run(ctx, instrumentation.OperationUpdate, sc, "", func(ctx context.Context, b binding) error {
		var err error
		c, err = b.repo.Update(ctx, contactID, p)
		return err
	})
	return c, err
}

// Delete removes a contact. Deleting an unknown id succeeds.
func (s *Service) Delete(ctx context.Context, sc Scope, contactID string) error {
	_, err := s.run(ctx, instrumentation.OperationDelete, sc, "", func(ctx context.Context, b binding) error {
		return b.repo.Delete(ctx, contactID)
	})
	return err
}

// Sync upserts incoming records into the coach's sheet.
func (s *Service) Sync(ctx context.Context, sc Scope, incoming []contacts.Patch) (contacts.SyncResult, error) {
	var res contacts.SyncResult
	_, err := s.run(ctx, instrumentation.OperationSync, sc, "", func(ctx context.Context, b binding) error {
		var err error
		res, err = b.repo.SyncFromExternal(ctx, incoming)
		return err
	})
	return res, err
}

// Import copies the coach's Google Contacts into the sheet with source Import.
func (s *Service) Import(ctx context.Context, sc Scope) (contacts.SyncResult, error) {
	var res contacts.SyncResult
	_, err := s.run(ctx, instrumentation.OperationImport, sc, "", func(ctx context.Context, b binding) error {
		people, err := b.backend.ListConnections(ctx)
		if err != nil {
			return fmt.Errorf("failed to list Google Contacts: %w", err)
		}
		res, err = b.repo.SyncFromExternal(ctx, people)
		return err
	})
	return res, err
}
