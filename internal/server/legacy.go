package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/contactsync"
	"github.com/teemow/coachcontacts/internal/sheets"
)

// legacyBody is the request shape of the flat /sheets-contacts/* routes,
// which carry the coach id in the body.
type legacyBody struct {
	CoachID     string          `json:"coach_id"`
	ContactID   string          `json:"contact_id"`
	ContactData *contacts.Patch `json:"contact_data"`
	Updates     *contacts.Patch `json:"updates"`
	syncBody
	initBody
}

func (h *handler) decodeLegacy(w http.ResponseWriter, r *http.Request) (legacyBody, contactsync.Scope, bool) {
	var body legacyBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return body, contactsync.Scope{}, false
	}
	return body, contactsync.Scope{SessionID: sessionID(r), CoachID: body.CoachID}, true
}

func (h *handler) requireContactID(w http.ResponseWriter, r *http.Request, id string) bool {
	if strings.TrimSpace(id) == "" {
		h.writeError(w, r, contacts.ValidationError("contact_id is required"))
		return false
	}
	return true
}

func (h *handler) legacyList(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.decodeLegacy(w, r)
	if !ok {
		return
	}
	res, spreadsheetID, err := h.svc.List(r.Context(), sc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"contacts":       nonNil(res.Contacts),
		"total":          len(res.Contacts),
		"spreadsheet_id": spreadsheetID,
	})
}

func (h *handler) legacyAdd(w http.ResponseWriter, r *http.Request) {
	body, sc, ok := h.decodeLegacy(w, r)
	if !ok {
		return
	}
	var p contacts.Patch
	if body.ContactData != nil {
		p = *body.ContactData
	}
	c, err := h.svc.Add(r.Context(), sc, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"contact": c,
		"message": fmt.Sprintf("Contact '%s' added successfully", c.Name),
	})
}

func (h *handler) legacyUpdate(w http.ResponseWriter, r *http.Request) {
	body, sc, ok := h.decodeLegacy(w, r)
	if !ok || !h.requireContactID(w, r, body.ContactID) {
		return
	}
	var p contacts.Patch
	if body.Updates != nil {
		p = *body.Updates
	}
	c, err := h.svc.Update(r.Context(), sc, body.ContactID, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"contact": c,
		"message": "Contact updated successfully",
	})
}

func (h *handler) legacyDelete(w http.ResponseWriter, r *http.Request) {
	body, sc, ok := h.decodeLegacy(w, r)
	if !ok || !h.requireContactID(w, r, body.ContactID) {
		return
	}
	if err := h.svc.Delete(r.Context(), sc, body.ContactID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Contact deleted successfully",
	})
}

func (h *handler) legacyInit(w http.ResponseWriter, r *http.Request) {
	body, sc, ok := h.decodeLegacy(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Init(r.Context(), sc, body.options())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"spreadsheet_id": res.SpreadsheetID,
		"sheet_url":      res.SheetURL,
		"message":        "Google Sheets contact database initialized successfully",
	})
}

func (h *handler) legacySync(w http.ResponseWriter, r *http.Request) {
	body, sc, ok := h.decodeLegacy(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Sync(r.Context(), sc, body.records())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, _, err := h.svc.List(r.Context(), sc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"contacts":   nonNil(res.Contacts),
		"sync_stats": stats,
		"message":    fmt.Sprintf("Synced %d new, %d updated contacts", stats.Added, stats.Updated),
	})
}

type createSheetBody struct {
	CoachID          string `json:"coachId"`
	OrganizationName string `json:"organizationName"`
	CoachName        string `json:"coachName"`
}

// createContactsSheet serves the dashboard's onboarding call. The coach's
// tagged sheet is reused when it already exists.
func (h *handler) createContactsSheet(w http.ResponseWriter, r *http.Request) {
	var body createSheetBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.CoachID) == "" {
		h.writeError(w, r, contacts.ValidationError("coachId is required"))
		return
	}

	name := contactsync.ContactsSheetName(body.OrganizationName, body.CoachName)
	sc := contactsync.Scope{SessionID: sessionID(r), CoachID: body.CoachID}
	res, err := h.svc.Init(r.Context(), sc, contactsync.InitOptions{SheetName: name})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sheetId":   res.SpreadsheetID,
		"sheetUrl":  sheets.URL(res.SpreadsheetID) + "/edit",
		"sheetName": name,
	})
}
