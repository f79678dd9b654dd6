package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/logging"
)

const (
	// TenantProperty is the Drive appProperties key binding a spreadsheet to a coach.
	TenantProperty = "coachContactsTenant"

	spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
	tabRowCount         = 1000
)

// SheetFile is a tagged spreadsheet as seen by Drive.
type SheetFile struct {
	ID          string
	Name        string
	CreatedTime time.Time
}

// Drive finds, creates and tags contact spreadsheets.
type Drive interface {
	// FindTagged returns the non-trashed spreadsheets tagged with tenantID.
	FindTagged(ctx context.Context, tenantID string) ([]SheetFile, error)
	// CreateSheet creates a spreadsheet with a formatted Contacts tab and returns its id.
	CreateSheet(ctx context.Context, title string) (string, error)
	// Tag binds spreadsheetID to tenantID.
	Tag(ctx context.Context, spreadsheetID, tenantID string) error
}

var _ Drive = (*Client)(nil)

// tagQuery builds the Drive search for spreadsheets tagged with tenantID.
func tagQuery(tenantID string) string {
	return fmt.Sprintf("appProperties has { key='%s' and value='%s' } and mimeType='%s' and trashed=false",
		TenantProperty, escapeQuery(tenantID), spreadsheetMimeType)
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// FindTagged implements Drive.
func (c *Client) FindTagged(ctx context.Context, tenantID string) ([]SheetFile, error) {
	var files []SheetFile
	pageToken := ""
	for {
		list, err := call(ctx, c, instrumentation.ServiceDrive, instrumentation.OperationSearch, true,
			func(ctx context.Context) (*drive.FileList, error) {
				req := c.drive.Files.List().
					Q(tagQuery(tenantID)).
					Spaces("drive").
					OrderBy("createdTime").
					Fields("nextPageToken, files(id, name, createdTime)").
					Context(ctx)
				if pageToken != "" {
					req = req.PageToken(pageToken)
				}
				return req.Do()
			})
		if err != nil {
			return nil, err
		}

		for _, f := range list.Files {
			created, err := time.Parse(time.RFC3339, f.CreatedTime)
			if err != nil {
				c.logger.Debug("Unparseable createdTime on tagged spreadsheet",
					logging.Spreadsheet(f.Id), slog.String("created_time", f.CreatedTime))
			}
			files = append(files, SheetFile{ID: f.Id, Name: f.Name, CreatedTime: created})
		}

		if list.NextPageToken == "" {
			return files, nil
		}
		pageToken = list.NextPageToken
	}
}

// CreateSheet implements Drive. The new spreadsheet has one Contacts tab with
// a bold white-on-blue header row.
func (c *Client) CreateSheet(ctx context.Context, title string) (string, error) {
	spec := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
		Sheets: []*sheets.Sheet{{
			Properties: &sheets.SheetProperties{
				Title: TabName,
				GridProperties: &sheets.GridProperties{
					RowCount:       tabRowCount,
					ColumnCount:    contacts.ColumnCount,
					FrozenRowCount: 1,
				},
			},
		}},
	}
	created, err := call(ctx, c, instrumentation.ServiceSheets, instrumentation.OperationCreate, false,
		func(ctx context.Context) (*sheets.Spreadsheet, error) {
			return c.sheets.Spreadsheets.Create(spec).Context(ctx).Do()
		})
	if err != nil {
		return "", err
	}

	var sheetID int64
	if len(created.Sheets) > 0 && created.Sheets[0].Properties != nil {
		sheetID = created.Sheets[0].Properties.SheetId
	}

	_, err = call(ctx, c, instrumentation.ServiceSheets, instrumentation.OperationUpdate, true,
		func(ctx context.Context) (*sheets.UpdateValuesResponse, error) {
			return c.sheets.Spreadsheets.Values.Update(created.SpreadsheetId, headerRange, valueRange(contacts.Header)).
				ValueInputOption(valueInputRaw).
				Context(ctx).
				Do()
		})
	if err != nil {
		return "", fmt.Errorf("failed to write header of %s: %w", created.SpreadsheetId, err)
	}

	format := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   contacts.ColumnCount,
					ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: &sheets.Color{Red: 0.2, Green: 0.5, Blue: 0.9},
						TextFormat: &sheets.TextFormat{
							Bold:            true,
							ForegroundColor: &sheets.Color{Red: 1, Green: 1, Blue: 1},
						},
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat)",
			},
		}},
	}
	_, err = call(ctx, c, instrumentation.ServiceSheets, instrumentation.OperationFormat, true,
		func(ctx context.Context) (*sheets.BatchUpdateSpreadsheetResponse, error) {
			return c.sheets.Spreadsheets.BatchUpdate(created.SpreadsheetId, format).Context(ctx).Do()
		})
	if err != nil {
		// The sheet is usable without formatting.
		c.logger.Warn("Failed to format contact sheet header",
			logging.Spreadsheet(created.SpreadsheetId), logging.Err(err))
	}

	return created.SpreadsheetId, nil
}

// Tag implements Drive.
func (c *Client) Tag(ctx context.Context, spreadsheetID, tenantID string) error {
	_, err := call(ctx, c, instrumentation.ServiceDrive, instrumentation.OperationTag, true,
		func(ctx context.Context) (*drive.File, error) {
			return c.drive.Files.Update(spreadsheetID, &drive.File{
				AppProperties: map[string]string{TenantProperty: tenantID},
			}).Fields("id").Context(ctx).Do()
		})
	return err
}
