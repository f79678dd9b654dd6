package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/logging"
)

// DefaultSheetName is the title given to a new spreadsheet when the caller has no preference.
func DefaultSheetName(tenantID string) string {
	return fmt.Sprintf("Contacts - Coach %s", tenantID)
}

// Locator binds each tenant to exactly one contact spreadsheet.
//
// Spreadsheets are found by their Drive tag, never by name. Bindings are cached
// for the life of the process; the lock is never held across a remote call.
type Locator struct {
	mu       sync.RWMutex
	bindings map[string]string

	group   singleflight.Group
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithLocatorLogger sets the logger.
func WithLocatorLogger(l *slog.Logger) LocatorOption {
	return func(loc *Locator) {
		if l != nil {
			loc.logger = l
		}
	}
}

// WithLocatorMetrics records binding outcomes.
func WithLocatorMetrics(m *instrumentation.Metrics) LocatorOption {
	return func(loc *Locator) { loc.metrics = m }
}

// NewLocator returns an empty Locator.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{
		bindings: make(map[string]string),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lookup returns the cached binding of tenantID.
func (l *Locator) Lookup(tenantID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.bindings[tenantID]
	return id, ok
}

// Forget drops the cached binding of tenantID.
func (l *Locator) Forget(tenantID string) {
	l.mu.Lock()
	delete(l.bindings, tenantID)
	l.mu.Unlock()
}

func (l *Locator) bind(tenantID, spreadsheetID string) {
	l.mu.Lock()
	l.bindings[tenantID] = spreadsheetID
	l.mu.Unlock()
}

// FindOrCreate returns the spreadsheet bound to tenantID, creating and tagging
// one named desiredName if none exists. desiredName is ignored for existing sheets.
func (l *Locator) FindOrCreate(ctx context.Context, d Drive, tenantID, desiredName string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", contacts.ValidationError("coach id is required")
	}
	if id, ok := l.Lookup(tenantID); ok {
		l.metrics.RecordSheetBinding(ctx, instrumentation.BindingCached)
		return id, nil
	}

	ch := l.group.DoChan(tenantID, func() (any, error) {
		return l.locate(context.WithoutCancel(ctx), d, tenantID, desiredName)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", contacts.RemoteUnavailable(ctx.Err(), "locating contact sheet")
	}
}

func (l *Locator) locate(ctx context.Context, d Drive, tenantID, desiredName string) (string, error) {
	logger := logging.WithTenant(l.logger, tenantID)

	found, err := d.FindTagged(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to search for contact sheet: %w", err)
	}
	if len(found) > 0 {
		winner := oldest(found)
		if len(found) > 1 {
			logger.Warn("Multiple contact sheets carry the same tag, using the oldest",
				logging.Spreadsheet(winner.ID), slog.Int("count", len(found)))
		}
		l.bind(tenantID, winner.ID)
		l.metrics.RecordSheetBinding(ctx, instrumentation.BindingFound)
		return winner.ID, nil
	}

	title := strings.TrimSpace(desiredName)
	if title == "" {
		title = DefaultSheetName(tenantID)
	}
	created, err := d.CreateSheet(ctx, title)
	if err != nil {
		return "", fmt.Errorf("failed to create contact sheet: %w", err)
	}
	if err := l.tag(ctx, d, created, tenantID); err != nil {
		logger.Warn("Created contact sheet could not be tagged and is orphaned",
			logging.Spreadsheet(created), logging.Err(err))
		return "", fmt.Errorf("failed to tag contact sheet %s: %w", created, err)
	}
	logger.Info("Created contact sheet", logging.Spreadsheet(created))

	// Another process may have created one at the same time.
	bound := created
	found, err = d.FindTagged(ctx, tenantID)
	if err != nil {
		logger.Warn("Re-check after create failed, keeping the new sheet", logging.Err(err))
	} else if len(found) > 0 {
		bound = oldest(found).ID
		if bound != created {
			logger.Warn("Duplicate contact sheet created concurrently, binding the oldest",
				logging.Spreadsheet(bound), slog.String("duplicate_id", created))
		}
	}

	l.bind(tenantID, bound)
	l.metrics.RecordSheetBinding(ctx, instrumentation.BindingCreated)
	return bound, nil
}

// tag tags a freshly created sheet, trying once more on failure. An untagged
// sheet is invisible to FindTagged, so every later call would create another.
func (l *Locator) tag(ctx context.Context, d Drive, spreadsheetID, tenantID string) error {
	err := d.Tag(ctx, spreadsheetID, tenantID)
	if err == nil || ctx.Err() != nil {
		return err
	}
	l.logger.Debug("Tagging contact sheet failed, retrying",
		logging.Tenant(tenantID), logging.Spreadsheet(spreadsheetID), logging.Err(err))
	return d.Tag(ctx, spreadsheetID, tenantID)
}

// oldest returns the earliest created file, breaking ties by id.
func oldest(files []SheetFile) SheetFile {
	sorted := append([]SheetFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedTime.Equal(sorted[j].CreatedTime) {
			return sorted[i].CreatedTime.Before(sorted[j].CreatedTime)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}
