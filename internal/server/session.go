package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/credentials"
	"github.com/teemow/coachcontacts/internal/logging"
)

// SessionStore keeps session credentials. *credentials.Store satisfies it.
type SessionStore interface {
	Put(ctx context.Context, sessionID string, cred credentials.Credential) error
	Evict(ctx context.Context, sessionID string)
}

type exchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
	CoachID     string `json:"coachId"`
	CoachEmail  string `json:"coachEmail"`
}

// ExchangeResponse is returned by POST /oauth/exchange. Tokens stay on the server.
type ExchangeResponse struct {
	SessionID string    `json:"sessionId"`
	Expiry    time.Time `json:"expiry"`
}

// exchange trades an authorization code for tokens and opens a session.
func (h *handler) exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		h.writeError(w, r, contacts.ValidationError("code is required"))
		return
	}

	cfg := *h.oauth
	if req.RedirectURI != "" {
		cfg.RedirectURL = req.RedirectURI
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		if ctx.Err() != nil {
			h.writeError(w, r, contacts.RemoteUnavailable(ctx.Err(), "Google token endpoint did not answer"))
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: authorization code exchange failed: %v", credentials.ErrAuthRequired, err))
		return
	}

	cred := credentials.FromToken(tok)
	cred.CoachID = strings.TrimSpace(req.CoachID)
	cred.Email = strings.TrimSpace(req.CoachEmail)

	id := credentials.NewSessionID()
	if err := h.sessions.Put(r.Context(), id, cred); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to store session: %w", err))
		return
	}

	h.logger.Info("Opened session",
		logging.SessionHash(id), logging.Tenant(cred.CoachID), logging.UserHash(cred.Email), logging.Domain(cred.Email))
	writeJSON(w, http.StatusOK, ExchangeResponse{SessionID: id, Expiry: cred.Expiry})
}

// logout evicts the caller's session. Unknown sessions are ignored.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		h.writeError(w, r, contacts.ValidationError("%s header is required", HeaderSessionID))
		return
	}
	h.sessions.Evict(r.Context(), id)
	h.logger.Info("Closed session", logging.SessionHash(id))
	w.WriteHeader(http.StatusNoContent)
}
