package contacts

import (
	"context"
	"strings"
	"time"
)

// Header is the first row of every contact sheet, columns A through K.
var Header = []string{
	"ID", "Name", "Email", "Phone", "Organization", "Role",
	"Notes", "Tags", "Created", "Updated", "Source",
}

// ColumnCount is the number of columns a contact row spans.
const ColumnCount = 11

const (
	colID = iota
	colName
	colEmail
	colPhone
	colOrganization
	colRole
	colNotes
	colTags
	colCreated
	colUpdated
	colSource
)

// TimeLayout is how timestamps are written to the sheet.
const TimeLayout = time.RFC3339Nano

// legacyTimeLayouts are accepted when reading rows written by older tooling.
var legacyTimeLayouts = []string{
	TimeLayout,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Row is one data row as stored in the table. Number is the 1-based sheet row.
type Row struct {
	Number int
	Cells  []string
}

// Table is the row-level storage behind a Repository.
//
// Row numbers are only valid until the next write by anyone; UpdateRow and
// DeleteRow must verify that column A of the addressed row still equals id
// and return ErrRowMoved otherwise.
type Table interface {
	// ReadRows returns all data rows below the header.
	ReadRows(ctx context.Context) ([]Row, error)
	AppendRow(ctx context.Context, cells []string) error
	UpdateRow(ctx context.Context, number int, id string, cells []string) error
	DeleteRow(ctx context.Context, number int, id string) error
}

// ToRow renders c as sheet cells.
func ToRow(c Contact) []string {
	cells := make([]string, ColumnCount)
	cells[colID] = c.ID
	cells[colName] = c.Name
	cells[colEmail] = c.Email
	cells[colPhone] = c.Phone
	cells[colOrganization] = c.Organization
	cells[colRole] = c.Role
	cells[colNotes] = c.Notes
	cells[colTags] = JoinTags(c.Tags)
	cells[colCreated] = formatTime(c.CreatedAt)
	cells[colUpdated] = formatTime(c.UpdatedAt)
	cells[colSource] = string(c.Source)
	return cells
}

// FromRow parses sheet cells. Missing trailing cells read as empty.
// badTimes counts timestamp cells that could not be parsed and were zeroed.
func FromRow(cells []string) (c Contact, badTimes int) {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	c = Contact{
		ID:           cell(colID),
		Name:         cell(colName),
		Email:        cell(colEmail),
		Phone:        cell(colPhone),
		Organization: cell(colOrganization),
		Role:         cell(colRole),
		Notes:        cell(colNotes),
		Tags:         SplitTags(cell(colTags)),
		Source:       SourceDashboard,
	}
	if src, ok := ParseSource(cell(colSource)); ok {
		c.Source = src
	} else if raw := cell(colSource); raw != "" {
		c.Source = Source(raw)
	}

	var ok bool
	if c.CreatedAt, ok = parseTime(cell(colCreated)); !ok {
		badTimes++
	}
	if c.UpdatedAt, ok = parseTime(cell(colUpdated)); !ok {
		badTimes++
	}
	return c, badTimes
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// parseTime returns ok=false only for a non-empty cell that matches no layout.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
