package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/contactsync"
)

// Session id headers, in lookup order.
const (
	HeaderSessionID  = "session-id"
	HeaderXSessionID = "X-Session-ID"
)

const (
	coachIDParam   = "coachId"
	contactIDParam = "id"
)

func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderSessionID)); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(HeaderXSessionID))
}

// scope builds the caller's scope from the session header and the coach id in
// the path.
func scope(r *http.Request) contactsync.Scope {
	return contactsync.Scope{SessionID: sessionID(r), CoachID: chi.URLParam(r, coachIDParam)}
}

// decodeJSON reads a JSON body of at most MaxBodyBytes into v. An empty body
// leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return contacts.ValidationError("request body exceeds %d bytes", MaxBodyBytes)
		}
		return contacts.ValidationError("malformed JSON body: %v", err)
	}
	return nil
}

// contactBody accepts a bare contact or one wrapped in "contact_data".
type contactBody struct {
	ContactData *contacts.Patch `json:"contact_data"`
	contacts.Patch
}

func (b contactBody) patch() contacts.Patch {
	if b.ContactData != nil {
		return *b.ContactData
	}
	return b.Patch
}

// updateBody accepts bare field updates or ones wrapped in "updates".
type updateBody struct {
	Updates *contacts.Patch `json:"updates"`
	contacts.Patch
}

func (b updateBody) patch() contacts.Patch {
	if b.Updates != nil {
		return *b.Updates
	}
	return b.Patch
}

type syncBody struct {
	Contacts          []contacts.Patch `json:"contacts"`
	DashboardContacts []contacts.Patch `json:"dashboard_contacts"`
}

func (b syncBody) records() []contacts.Patch {
	if b.Contacts != nil {
		return b.Contacts
	}
	return b.DashboardContacts
}

type initBody struct {
	SheetName          string `json:"sheetName"`
	SheetNameLegacy    string `json:"sheet_name"`
	SeedExamples       bool   `json:"seedExamples"`
	SeedExamplesLegacy bool   `json:"seed_examples"`
}

func (b initBody) options() contactsync.InitOptions {
	name := b.SheetName
	if name == "" {
		name = b.SheetNameLegacy
	}
	return contactsync.InitOptions{SheetName: name, SeedExamples: b.SeedExamples || b.SeedExamplesLegacy}
}

func nonNil(cs []contacts.Contact) []contacts.Contact {
	if cs == nil {
		return []contacts.Contact{}
	}
	return cs
}
