package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/credentials"
)

// ErrSpreadsheetNotFound is wrapped by the NotFound errors returned when the
// spreadsheet or its Contacts tab no longer exists.
var ErrSpreadsheetNotFound = errors.New("spreadsheet not found")

func spreadsheetNotFound(format string, args ...any) error {
	return &contacts.Error{
		Kind:    contacts.KindNotFound,
		Message: fmt.Sprintf(format, args...),
		Err:     ErrSpreadsheetNotFound,
	}
}

// classify maps a Google API failure onto the contacts error kinds or
// credentials.ErrAuthRequired. transient reports whether one retry is worthwhile.
func classify(err error) (mapped error, transient bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, credentials.ErrAuthRequired) || contacts.KindOf(err) != "" {
		return err, false
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", credentials.ErrAuthRequired, err), false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", credentials.ErrAuthRequired, err), false
		case apiErr.Code == http.StatusForbidden && rateLimited(apiErr):
			return contacts.RemoteUnavailable(err, "google rate limit"), true
		case apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", credentials.ErrAuthRequired, err), false
		case apiErr.Code == http.StatusNotFound:
			return spreadsheetNotFound("google returned 404: %s", apiErr.Message), false
		case apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range"):
			// The Contacts tab was deleted or renamed.
			return spreadsheetNotFound("%s", apiErr.Message), false
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
			return contacts.RemoteUnavailable(err, "google returned %d", apiErr.Code), true
		default:
			return contacts.RemoteUnavailable(err, "google returned %d", apiErr.Code), false
		}
	}

	if errors.Is(err, context.Canceled) {
		return contacts.RemoteUnavailable(err, "request canceled"), false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return contacts.RemoteUnavailable(err, "google did not answer in time"), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return contacts.RemoteUnavailable(err, "google unreachable"), true
	}
	return contacts.RemoteUnavailable(err, "google request failed"), false
}

func rateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

// rejected reports whether Google refused a request before acting on it,
// which makes even a non-idempotent call safe to repeat.
func rejected(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusTooManyRequests || (apiErr.Code == http.StatusForbidden && rateLimited(apiErr))
}
