package sheetsfake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/sheets"
)

// Drive is an in-memory sheets.Drive. Every created spreadsheet gets an empty
// Table with a header row.
type Drive struct {
	mu      sync.Mutex
	files   []sheets.SheetFile
	tags    map[string]string
	tables  map[string]*Table
	nextID  int
	created time.Time

	// FindErr, CreateErr and TagErr are returned by the next matching call, then cleared.
	FindErr   error
	CreateErr error
	TagErr    error
	// TagFailures keeps TagErr for that many Tag calls instead of one.
	TagFailures int

	Finds, Creates, Tags int
}

var _ sheets.Drive = (*Drive)(nil)

// NewDrive returns an empty Drive.
func NewDrive() *Drive {
	return &Drive{
		tags:    make(map[string]string),
		tables:  make(map[string]*Table),
		created: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FindTagged implements sheets.Drive.
func (d *Drive) FindTagged(ctx context.Context, tenantID string) ([]sheets.SheetFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Finds++
	if err := takeErr(&d.FindErr); err != nil {
		return nil, err
	}

	var out []sheets.SheetFile
	for _, f := range d.files {
		if d.tags[f.ID] == tenantID {
			out = append(out, f)
		}
	}
	return out, nil
}

// CreateSheet implements sheets.Drive.
func (d *Drive) CreateSheet(ctx context.Context, title string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Creates++
	if err := takeErr(&d.CreateErr); err != nil {
		return "", err
	}
	return d.create(title), nil
}

func (d *Drive) create(title string) string {
	d.nextID++
	id := fmt.Sprintf("sheet-%d", d.nextID)
	d.created = d.created.Add(time.Minute)
	d.files = append(d.files, sheets.SheetFile{ID: id, Name: title, CreatedTime: d.created})
	d.tables[id] = NewTable()
	return id
}

// Tag implements sheets.Drive.
func (d *Drive) Tag(ctx context.Context, spreadsheetID, tenantID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Tags++
	if d.TagErr != nil && d.TagFailures > 1 {
		d.TagFailures--
		return d.TagErr
	}
	d.TagFailures = 0
	if err := takeErr(&d.TagErr); err != nil {
		return err
	}
	if _, ok := d.tables[spreadsheetID]; !ok {
		return contacts.NotFound("file %s not found", spreadsheetID)
	}
	d.tags[spreadsheetID] = tenantID
	return nil
}

// AddTagged creates a spreadsheet already tagged with tenantID and returns its id.
func (d *Drive) AddTagged(title, tenantID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.create(title)
	d.tags[id] = tenantID
	return id
}

// Remove deletes a spreadsheet, as if it was trashed by the user.
func (d *Drive) Remove(spreadsheetID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tags, spreadsheetID)
	delete(d.tables, spreadsheetID)
	for i, f := range d.files {
		if f.ID == spreadsheetID {
			d.files = append(d.files[:i], d.files[i+1:]...)
			break
		}
	}
}

// Files returns all spreadsheets, oldest first.
func (d *Drive) Files() []sheets.SheetFile {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]sheets.SheetFile(nil), d.files...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTime.Before(out[j].CreatedTime) })
	return out
}

// TableOf returns the table of spreadsheetID, or nil.
func (d *Drive) TableOf(spreadsheetID string) *Table {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tables[spreadsheetID]
}

// Backend is an in-memory sheets.Backend.
type Backend struct {
	*Drive

	// Connections is what ListConnections returns.
	Connections []contacts.Patch
	// ConnectionsErr is returned by the next ListConnections call, then cleared.
	ConnectionsErr error
}

var _ sheets.Backend = (*Backend)(nil)

// NewBackend returns a Backend over a fresh Drive.
func NewBackend() *Backend {
	return &Backend{Drive: NewDrive()}
}

// Table implements sheets.Backend. A removed spreadsheet yields a table
// whose every call fails with NotFound.
func (b *Backend) Table(spreadsheetID string) contacts.Table {
	if t := b.TableOf(spreadsheetID); t != nil {
		return t
	}
	return missingTable{id: spreadsheetID}
}

// ListConnections implements sheets.Backend.
func (b *Backend) ListConnections(ctx context.Context) ([]contacts.Patch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := takeErr(&b.ConnectionsErr); err != nil {
		return nil, err
	}
	return append([]contacts.Patch(nil), b.Connections...), nil
}

type missingTable struct{ id string }

func (m missingTable) err() error {
	return &contacts.Error{Kind: contacts.KindNotFound, Message: "no spreadsheet " + m.id, Err: sheets.ErrSpreadsheetNotFound}
}

func (m missingTable) ReadRows(context.Context) ([]contacts.Row, error) { return nil, m.err() }

func (m missingTable) AppendRow(context.Context, []string) error { return m.err() }

func (m missingTable) UpdateRow(context.Context, int, string, []string) error { return m.err() }

func (m missingTable) DeleteRow(context.Context, int, string) error { return m.err() }
