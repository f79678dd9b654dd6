package contactsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/sheets"
)

// ExampleContacts are written by Init when seeding is requested.
var ExampleContacts = []contacts.Patch{
	{
		Name:         contacts.String("John Smith"),
		Email:        contacts.String("john.smith@example.com"),
		Phone:        contacts.String("(555) 123-4567"),
		Organization: contacts.String("Team Eagles"),
		Role:         contacts.String("Parent"),
		Notes:        contacts.String("Parent of Tommy Smith"),
	},
	{
		Name:         contacts.String("Sarah Johnson"),
		Email:        contacts.String("sarah.j@example.com"),
		Phone:        contacts.String("(555) 987-6543"),
		Organization: contacts.String("Team Eagles"),
		Role:         contacts.String("Student"),
		Notes:        contacts.String("Pitcher, #12"),
	},
}

// InitOptions controls Init.
type InitOptions struct {
	// SheetName is the title used if a new spreadsheet has to be created.
	SheetName string
	// SeedExamples upserts ExampleContacts, so repeating Init adds nothing new.
	SeedExamples bool
}

// InitResult describes the coach's spreadsheet after Init.
type InitResult struct {
	SpreadsheetID string               `json:"spreadsheetId"`
	SheetURL      string               `json:"sheetUrl"`
	Seeded        *contacts.SyncResult `json:"seeded,omitempty"`
}

// Init makes sure the coach has a tagged contact spreadsheet. Unlike the other
// operations it never trusts the cached binding, so a sheet deleted since the
// last call is noticed and replaced.
func (s *Service) Init(ctx context.Context, sc Scope, opts InitOptions) (InitResult, error) {
	s.locator.Forget(strings.TrimSpace(sc.CoachID))

	var res InitResult
	id, err := s.run(ctx, instrumentation.OperationCreate, sc, strings.TrimSpace(opts.SheetName), func(ctx context.Context, b binding) error {
		if !opts.SeedExamples {
			return nil
		}
		seeded, err := b.repo.SyncFromExternal(ctx, ExampleContacts)
		if err != nil {
			return fmt.Errorf("failed to seed example contacts: %w", err)
		}
		res.Seeded = &seeded
		return nil
	})
	if err != nil {
		return InitResult{}, err
	}
	res.SpreadsheetID = id
	res.SheetURL = sheets.URL(id)
	return res, nil
}

// ContactsSheetName builds the title of an organization's contact sheet.
// Empty parts fall back to "Organization" and "Coach".
func ContactsSheetName(organization, coach string) string {
	organization = strings.TrimSpace(organization)
	if organization == "" {
		organization = "Organization"
	}
	coach = strings.TrimSpace(coach)
	if coach == "" {
		coach = "Coach"
	}
	return fmt.Sprintf("%s %s Contacts", organization, coach)
}
