package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/credentials"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantAuth      bool
		wantKind      contacts.Kind
		wantTransient bool
		wantTimeout   bool
	}{
		{name: "unauthorized", err: &googleapi.Error{Code: 401}, wantAuth: true},
		{name: "forbidden", err: &googleapi.Error{Code: 403}, wantAuth: true},
		{
			name:          "forbidden rate limit",
			err:           &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}},
			wantKind:      contacts.KindRemoteUnavailable,
			wantTransient: true,
		},
		{name: "not found", err: &googleapi.Error{Code: 404, Message: "Requested entity was not found."}, wantKind: contacts.KindNotFound},
		{name: "too many requests", err: &googleapi.Error{Code: 429}, wantKind: contacts.KindRemoteUnavailable, wantTransient: true},
		{name: "server error", err: &googleapi.Error{Code: 503}, wantKind: contacts.KindRemoteUnavailable, wantTransient: true},
		{name: "missing tab", err: &googleapi.Error{Code: 400, Message: "Unable to parse range: Contacts!A:K"}, wantKind: contacts.KindNotFound},
		{name: "bad request", err: &googleapi.Error{Code: 400}, wantKind: contacts.KindRemoteUnavailable},
		{name: "wrapped api error", err: fmt.Errorf("values.get: %w", &googleapi.Error{Code: 502}), wantKind: contacts.KindRemoteUnavailable, wantTransient: true},
		{name: "token endpoint rejection", err: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, wantAuth: true},
		{
			name:          "deadline",
			err:           fmt.Errorf("Get: %w", context.DeadlineExceeded),
			wantKind:      contacts.KindRemoteUnavailable,
			wantTransient: true,
			wantTimeout:   true,
		},
		{name: "canceled", err: context.Canceled, wantKind: contacts.KindRemoteUnavailable},
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, wantKind: contacts.KindRemoteUnavailable, wantTransient: true},
		{name: "already classified", err: contacts.NotFound("gone"), wantKind: contacts.KindNotFound},
		{name: "unknown", err: errors.New("boom"), wantKind: contacts.KindRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped, transient := classify(tt.err)

			assert.Equal(t, tt.wantTransient, transient)
			assert.Equal(t, tt.wantAuth, errors.Is(mapped, credentials.ErrAuthRequired))
			assert.Equal(t, tt.wantKind, contacts.KindOf(mapped))

			if tt.wantKind == contacts.KindNotFound && tt.err != nil && contacts.KindOf(tt.err) == "" {
				assert.ErrorIs(t, mapped, ErrSpreadsheetNotFound)
			}

			var ce *contacts.Error
			if errors.As(mapped, &ce) {
				assert.Equal(t, tt.wantTimeout, ce.Timeout())
			}
		})
	}
}

func TestRejected(t *testing.T) {
	assert.True(t, rejected(&googleapi.Error{Code: 429}))
	assert.True(t, rejected(&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}))
	assert.False(t, rejected(&googleapi.Error{Code: 503}))
	assert.False(t, rejected(context.DeadlineExceeded))
}
