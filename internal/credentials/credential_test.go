package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestFromToken_Scopes(t *testing.T) {
	tok := (&oauth2.Token{AccessToken: "a", RefreshToken: "r"}).WithExtra(map[string]any{
		"scope": "openid https://www.googleapis.com/auth/spreadsheets",
	})

	cred := FromToken(tok)
	assert.Equal(t, []string{"openid", "https://www.googleapis.com/auth/spreadsheets"}, cred.Scopes)
	assert.Equal(t, "r", cred.Token().RefreshToken)
}

func TestCredential_NeedsRefresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	margin := 5 * time.Minute

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"no expiry", time.Time{}, false},
		{"far future", now.Add(time.Hour), false},
		{"exactly at margin", now.Add(margin), true},
		{"inside margin", now.Add(time.Minute), true},
		{"expired", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Credential{Expiry: tt.expiry}.needsRefresh(now, margin))
		})
	}
}

func TestOAuthRefresher(t *testing.T) {
	var gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotRefresh = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		if gotRefresh == "revoked" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	r := &OAuthRefresher{Config: &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}}

	// Still valid by its own expiry, but the refresher must hit the endpoint anyway.
	tok, err := r.Refresh(context.Background(), Credential{
		AccessToken:  "stale",
		RefreshToken: "rt-1",
		Expiry:       time.Now().Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "rt-1", gotRefresh)

	_, err = r.Refresh(context.Background(), Credential{RefreshToken: "revoked"})
	require.Error(t, err)
	assert.True(t, IsInvalidGrant(err))

	_, err = r.Refresh(context.Background(), Credential{AccessToken: "a"})
	assert.Error(t, err)
	assert.False(t, IsInvalidGrant(errors.New("invalid_grant")))
}
