package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Refresher exchanges a credential's refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, cred Credential) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, cred Credential) (*oauth2.Token, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, cred Credential) (*oauth2.Token, error) {
	return f(ctx, cred)
}

// OAuthRefresher refreshes against the provider's token endpoint.
type OAuthRefresher struct {
	Config *oauth2.Config
	// HTTPClient overrides the client used to reach the token endpoint.
	HTTPClient *http.Client
}

// Refresh implements Refresher.
func (r *OAuthRefresher) Refresh(ctx context.Context, cred Credential) (*oauth2.Token, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}

	// Without an access token the source always goes to the endpoint,
	// even when the current token is still technically valid.
	tok, err := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return tok, nil
}

// IsInvalidGrant reports whether err is the provider rejecting the refresh token.
func IsInvalidGrant(err error) bool {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return false
	}
	return rerr.ErrorCode == "invalid_grant"
}
