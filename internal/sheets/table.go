package sheets

import (
	"context"
	"fmt"
	"strings"

	sheets "google.golang.org/api/sheets/v4"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/instrumentation"
)

const (
	// TabName is the worksheet holding contacts.
	TabName = "Contacts"

	valueInputRaw  = "RAW"
	insertRows     = "INSERT_ROWS"
	dimensionRows  = "ROWS"
	lastColumn     = "K"
	contactsRange  = TabName + "!A:" + lastColumn
	headerRange    = TabName + "!A1:" + lastColumn + "1"
	spreadsheetURL = "https://docs.google.com/spreadsheets/d/"
)

// URL returns the browser link of a spreadsheet.
func URL(spreadsheetID string) string {
	return spreadsheetURL + spreadsheetID
}

func rowRange(number int) string {
	return fmt.Sprintf("%s!A%d:%s%d", TabName, number, lastColumn, number)
}

func idCell(number int) string {
	return fmt.Sprintf("%s!A%d", TabName, number)
}

// Table implements contacts.Table over the Contacts tab of one spreadsheet.
type Table struct {
	client        *Client
	spreadsheetID string
}

var _ contacts.Table = (*Table)(nil)

// ReadRows returns every row below the header. Row numbers are 1-based sheet rows.
func (t *Table) ReadRows(ctx context.Context) ([]contacts.Row, error) {
	ctx, span := instrumentation.StartSpan(ctx, "sheets.read_rows", instrumentation.Spreadsheet(t.spreadsheetID))
	defer span.End()

	vr, err := call(ctx, t.client, instrumentation.ServiceSheets, instrumentation.OperationList, true,
		func(ctx context.Context) (*sheets.ValueRange, error) {
			return t.client.sheets.Spreadsheets.Values.Get(t.spreadsheetID, contactsRange).
				MajorDimension(dimensionRows).
				Context(ctx).
				Do()
		})
	if err != nil {
		return nil, err
	}

	if len(vr.Values) <= 1 {
		return nil, nil
	}
	rows := make([]contacts.Row, 0, len(vr.Values)-1)
	for i, values := range vr.Values[1:] {
		rows = append(rows, contacts.Row{Number: i + 2, Cells: cellStrings(values)})
	}
	return rows, nil
}

// AppendRow adds cells after the last row of the table.
func (t *Table) AppendRow(ctx context.Context, cells []string) error {
	_, err := call(ctx, t.client, instrumentation.ServiceSheets, instrumentation.OperationCreate, false,
		func(ctx context.Context) (*sheets.AppendValuesResponse, error) {
			return t.client.sheets.Spreadsheets.Values.Append(t.spreadsheetID, contactsRange, valueRange(cells)).
				ValueInputOption(valueInputRaw).
				InsertDataOption(insertRows).
				Context(ctx).
				Do()
		})
	return err
}

// UpdateRow overwrites row number after checking it still holds id.
func (t *Table) UpdateRow(ctx context.Context, number int, id string, cells []string) error {
	if err := t.verify(ctx, number, id); err != nil {
		return err
	}
	_, err := call(ctx, t.client, instrumentation.ServiceSheets, instrumentation.OperationUpdate, true,
		func(ctx context.Context) (*sheets.UpdateValuesResponse, error) {
			return t.client.sheets.Spreadsheets.Values.Update(t.spreadsheetID, rowRange(number), valueRange(cells)).
				ValueInputOption(valueInputRaw).
				Context(ctx).
				Do()
		})
	return err
}

// DeleteRow removes row number after checking it still holds id.
// Rows below it shift up.
func (t *Table) DeleteRow(ctx context.Context, number int, id string) error {
	if err := t.verify(ctx, number, id); err != nil {
		return err
	}
	sheetID, err := t.sheetID(ctx)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       dimensionRows,
					StartIndex:      int64(number - 1),
					EndIndex:        int64(number),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err = call(ctx, t.client, instrumentation.ServiceSheets, instrumentation.OperationDelete, false,
		func(ctx context.Context) (*sheets.BatchUpdateSpreadsheetResponse, error) {
			return t.client.sheets.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do()
		})
	return err
}

func (t *Table) verify(ctx context.Context, number int, id string) error {
	if number < 2 {
		return contacts.ErrRowMoved
	}
	vr, err := call(ctx, t.client, instrumentation.ServiceSheets, instrumentation.OperationGet, true,
		func(ctx context.Context) (*sheets.ValueRange, error) {
			return t.client.sheets.Spreadsheets.Values.Get(t.spreadsheetID, idCell(number)).Context(ctx).Do()
		})
	if err != nil {
		return err
	}

	var got string
	if len(vr.Values) > 0 && len(vr.Values[0]) > 0 {
		got = strings.TrimSpace(fmt.Sprint(vr.Values[0][0]))
	}
	if got != id {
		return contacts.ErrRowMoved
	}
	return nil
}

// sheetID looks up the numeric id of the Contacts tab.
func (t *Table) sheetID(ctx context.Context) (int64, error) {
	ss, err := call(ctx, t.client, instrumentation.ServiceSheets, instrumentation.OperationGet, true,
		func(ctx context.Context) (*sheets.Spreadsheet, error) {
			return t.client.sheets.Spreadsheets.Get(t.spreadsheetID).
				Fields("sheets.properties(sheetId,title)").
				Context(ctx).
				Do()
		})
	if err != nil {
		return 0, err
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == TabName {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, spreadsheetNotFound("spreadsheet %s has no %s tab", t.spreadsheetID, TabName)
}

func valueRange(cells []string) *sheets.ValueRange {
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return &sheets.ValueRange{MajorDimension: dimensionRows, Values: [][]interface{}{row}}
}

func cellStrings(values []interface{}) []string {
	cells := make([]string, len(values))
	for i, v := range values {
		if v != nil {
			cells[i] = fmt.Sprint(v)
		}
	}
	return cells
}
