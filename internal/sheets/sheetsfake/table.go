// Package sheetsfake provides in-memory stand-ins for the Google backed
// contact table and Drive, for tests.
package sheetsfake

import (
	"context"
	"strings"
	"sync"

	"github.com/teemow/coachcontacts/internal/contacts"
)

// Table is an in-memory contacts.Table. The header occupies row 1.
type Table struct {
	mu   sync.Mutex
	rows [][]string

	// Errors returned by the next matching call, then cleared.
	ReadErr   error
	AppendErr error
	UpdateErr error
	DeleteErr error

	// BeforeWrite runs before UpdateRow and DeleteRow verify their row,
	// outside the lock, so tests can shift rows underneath a write.
	BeforeWrite func(t *Table)

	Reads, Appends, Updates, Deletes int
}

var _ contacts.Table = (*Table)(nil)

// NewTable returns a table holding seed below the header.
func NewTable(seed ...contacts.Contact) *Table {
	t := &Table{rows: [][]string{append([]string(nil), contacts.Header...)}}
	for _, c := range seed {
		t.rows = append(t.rows, contacts.ToRow(c))
	}
	return t
}

func takeErr(err *error) error {
	e := *err
	*err = nil
	return e
}

// ReadRows implements contacts.Table.
func (t *Table) ReadRows(ctx context.Context) ([]contacts.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Reads++
	if err := takeErr(&t.ReadErr); err != nil {
		return nil, err
	}

	rows := make([]contacts.Row, 0, len(t.rows))
	for i, cells := range t.rows[1:] {
		rows = append(rows, contacts.Row{Number: i + 2, Cells: append([]string(nil), cells...)})
	}
	return rows, nil
}

// AppendRow implements contacts.Table.
func (t *Table) AppendRow(ctx context.Context, cells []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Appends++
	if err := takeErr(&t.AppendErr); err != nil {
		return err
	}
	t.rows = append(t.rows, append([]string(nil), cells...))
	return nil
}

// UpdateRow implements contacts.Table.
func (t *Table) UpdateRow(ctx context.Context, number int, id string, cells []string) error {
	t.beforeWrite()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Updates++
	if err := takeErr(&t.UpdateErr); err != nil {
		return err
	}
	if !t.holds(number, id) {
		return contacts.ErrRowMoved
	}
	t.rows[number-1] = append([]string(nil), cells...)
	return nil
}

// DeleteRow implements contacts.Table.
func (t *Table) DeleteRow(ctx context.Context, number int, id string) error {
	t.beforeWrite()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Deletes++
	if err := takeErr(&t.DeleteErr); err != nil {
		return err
	}
	if !t.holds(number, id) {
		return contacts.ErrRowMoved
	}
	t.rows = append(t.rows[:number-1], t.rows[number:]...)
	return nil
}

func (t *Table) beforeWrite() {
	t.mu.Lock()
	hook := t.BeforeWrite
	t.mu.Unlock()
	if hook != nil {
		hook(t)
	}
}

func (t *Table) holds(number int, id string) bool {
	if number < 2 || number > len(t.rows) {
		return false
	}
	row := t.rows[number-1]
	return len(row) > 0 && strings.TrimSpace(row[0]) == id
}

// InsertRaw inserts cells as a data row at index (0 is directly below the header).
// An index past the end appends.
func (t *Table) InsertRaw(index int, cells ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := index + 1
	if pos > len(t.rows) {
		pos = len(t.rows)
	}
	t.rows = append(t.rows[:pos], append([][]string{append([]string(nil), cells...)}, t.rows[pos:]...)...)
}

// RemoveID deletes every data row whose id is id.
func (t *Table) RemoveID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.rows[:1]
	for _, row := range t.rows[1:] {
		if len(row) == 0 || row[0] != id {
			kept = append(kept, row)
		}
	}
	t.rows = kept
}

// Rows returns a copy of the data rows.
func (t *Table) Rows() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]string, 0, len(t.rows)-1)
	for _, row := range t.rows[1:] {
		out = append(out, append([]string(nil), row...))
	}
	return out
}
