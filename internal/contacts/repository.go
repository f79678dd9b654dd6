package contacts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/logging"
)

// maxShortIDAttempts bounds regeneration of colliding short ids before
// falling back to a full uuid.
const maxShortIDAttempts = 5

// ListResult is the outcome of ListAll.
type ListResult struct {
	Contacts []Contact
	// Skipped counts rows that carry data but no id.
	Skipped int
}

// SyncResult counts what SyncFromExternal did with each incoming record.
type SyncResult struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Invalid   int `json:"invalid"`
}

// Repository implements contact operations over one coach's Table.
//
// Every operation starts from a fresh read; row numbers never outlive the call.
// Add is not idempotent: retrying a failed Add can create a duplicate.
type Repository struct {
	table   Table
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator replaces the short uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Repository) { r.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records operation outcomes.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// NewRepository returns a Repository backed by table.
func NewRepository(table Table, opts ...Option) *Repository {
	r := &Repository{
		table:  table,
		now:    time.Now,
		newID:  shortID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// record is a contact together with the row it was read from.
// row is 0 for contacts appended during the current call.
type record struct {
	Contact
	row int
}

func (r *Repository) read(ctx context.Context) ([]*record, int, error) {
	rows, err := r.table.ReadRows(ctx)
	if err != nil {
		return nil, 0, err
	}

	records := make([]*record, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		if blank(row.Cells) {
			continue
		}
		c, badTimes := FromRow(row.Cells)
		if c.ID == "" {
			skipped++
			r.logger.Warn("Skipping contact row without id", slog.Int("row", row.Number))
			continue
		}
		if badTimes > 0 {
			r.logger.Debug("Unparseable timestamp in contact row",
				logging.ContactID(c.ID), slog.Int("row", row.Number))
		}
		records = append(records, &record{Contact: c, row: row.Number})
	}
	return records, skipped, nil
}

func find(records []*record, id string) *record {
	for _, rec := range records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (r *Repository) observe(ctx context.Context, op string, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	r.metrics.RecordContactOperation(ctx, op, status)
}

// ListAll returns every contact in sheet order.
func (r *Repository) ListAll(ctx context.Context) (res ListResult, err error) {
	defer func() { r.observe(ctx, instrumentation.OperationList, err) }()

	records, skipped, err := r.read(ctx)
	if err != nil {
		return ListResult{}, err
	}
	if skipped > 0 {
		r.logger.Warn("Contact rows without id were skipped", slog.Int("skipped", skipped))
		r.metrics.RecordSkippedRows(ctx, skipped)
	}

	res = ListResult{Contacts: make([]Contact, 0, len(records)), Skipped: skipped}
	for _, rec := range records {
		res.Contacts = append(res.Contacts, rec.Contact)
	}
	return res, nil
}

// Get returns the contact with id.
func (r *Repository) Get(ctx context.Context, id string) (Contact, error) {
	records, _, err := r.read(ctx)
	if err != nil {
		return Contact{}, err
	}
	rec := find(records, id)
	if rec == nil {
		return Contact{}, NotFound("contact %s not found", id)
	}
	return rec.Contact, nil
}

// Add creates a contact. Name is required; everything else is optional.
func (r *Repository) Add(ctx context.Context, p Patch) (c Contact, err error) {
	defer func() { r.observe(ctx, instrumentation.OperationCreate, err) }()

	if err := p.validate(); err != nil {
		return Contact{}, err
	}
	if p.Name == nil {
		return Contact{}, ValidationError("name is required")
	}

	records, _, err := r.read(ctx)
	if err != nil {
		return Contact{}, err
	}
	return r.add(ctx, p, newMatcher(records))
}

// add appends a validated patch and registers the result with m.
func (r *Repository) add(ctx context.Context, p Patch, m *matcher) (Contact, error) {
	now := r.now().UTC()
	c := Contact{
		ID:        r.uniqueID(m),
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
		Source:    SourceDashboard,
	}
	p.apply(&c)
	if c.Source == "" {
		c.Source = SourceDashboard
	}

	if err := r.table.AppendRow(ctx, ToRow(c)); err != nil {
		return Contact{}, err
	}
	m.add(&record{Contact: c})

	r.logger.Info("Added contact", logging.ContactID(c.ID))
	return c, nil
}

func (r *Repository) uniqueID(m *matcher) string {
	for range maxShortIDAttempts {
		if id := r.newID(); id != "" && !m.has(id) {
			return id
		}
	}
	return uuid.NewString()
}

// Update applies the set fields of p to the contact with id.
func (r *Repository) Update(ctx context.Context, id string, p Patch) (c Contact, err error) {
	defer func() { r.observe(ctx, instrumentation.OperationUpdate, err) }()

	if err := p.validate(); err != nil {
		return Contact{}, err
	}

	records, _, err := r.read(ctx)
	if err != nil {
		return Contact{}, err
	}
	rec := find(records, id)
	if rec == nil {
		return Contact{}, NotFound("contact %s not found", id)
	}
	return r.update(ctx, rec, p)
}

// update writes p over rec. If the row moved since it was read, it re-reads
// once and retries at the new position.
func (r *Repository) update(ctx context.Context, rec *record, p Patch) (Contact, error) {
	next := rec.Contact
	p.apply(&next)
	next.ID = rec.ID
	next.CreatedAt = rec.CreatedAt
	next.UpdatedAt = r.now().UTC()
	if next.UpdatedAt.Before(rec.UpdatedAt) {
		next.UpdatedAt = rec.UpdatedAt
	}
	cells := ToRow(next)

	for attempt := 0; ; attempt++ {
		row := rec.row
		if row == 0 || attempt > 0 {
			records, _, err := r.read(ctx)
			if err != nil {
				return Contact{}, err
			}
			cur := find(records, rec.ID)
			if cur == nil {
				return Contact{}, Conflict("contact %s was deleted concurrently", rec.ID)
			}
			row = cur.row
		}

		err := r.table.UpdateRow(ctx, row, rec.ID, cells)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrRowMoved) {
			return Contact{}, err
		}
		if attempt > 0 {
			return Contact{}, Conflict("contact %s moved while it was being updated", rec.ID)
		}
		r.logger.Debug("Contact row moved, re-reading", logging.ContactID(rec.ID))
	}

	rec.Contact = next
	r.logger.Info("Updated contact", logging.ContactID(next.ID))
	return next, nil
}

// Delete removes the contact with id. Deleting an absent contact succeeds.
func (r *Repository) Delete(ctx context.Context, id string) (err error) {
	defer func() { r.observe(ctx, instrumentation.OperationDelete, err) }()

	for attempt := 0; attempt < 2; attempt++ {
		records, _, err := r.read(ctx)
		if err != nil {
			return err
		}
		rec := find(records, id)
		if rec == nil {
			return nil
		}

		err = r.table.DeleteRow(ctx, rec.row, id)
		if err == nil {
			r.logger.Info("Deleted contact", logging.ContactID(id))
			return nil
		}
		if !errors.Is(err, ErrRowMoved) {
			return err
		}
		r.logger.Debug("Contact row moved, re-reading", logging.ContactID(id))
	}
	return Conflict("contact %s moved while it was being deleted", id)
}

// SyncFromExternal upserts incoming records. Each record is matched by id,
// then by email. It never deletes. On a remote failure the counts so far are
// returned along with the error.
func (r *Repository) SyncFromExternal(ctx context.Context, incoming []Patch) (res SyncResult, err error) {
	defer func() {
		r.observe(ctx, instrumentation.OperationSync, err)
		r.metrics.RecordSyncResult(ctx, res.Added, res.Updated, res.Unchanged, res.Invalid)
	}()

	records, _, err := r.read(ctx)
	if err != nil {
		return res, err
	}
	m := newMatcher(records)

	for i, p := range incoming {
		if err := p.validate(); err != nil {
			res.Invalid++
			r.logger.Debug("Skipping invalid sync record", slog.Int("index", i), logging.Err(err))
			continue
		}

		rec, found := m.find(p)
		if !found {
			if p.Name == nil {
				res.Invalid++
				r.logger.Debug("Skipping sync record without name", slog.Int("index", i))
				continue
			}
			if _, err := r.add(ctx, p, m); err != nil {
				return res, err
			}
			res.Added++
			continue
		}

		if !p.differs(rec.Contact) {
			res.Unchanged++
			continue
		}
		oldEmail := rec.Email
		if _, err := r.update(ctx, rec, p); err != nil {
			return res, err
		}
		m.reindex(rec, oldEmail)
		res.Updated++
	}

	r.logger.Info("Synced contacts",
		slog.Int("added", res.Added),
		slog.Int("updated", res.Updated),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("invalid", res.Invalid))
	return res, nil
}
