package google

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// OAuthConfig holds the OAuth client registration used for token refresh and code exchange.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scopes defaults to DefaultOAuthScopes when empty.
	Scopes []string
}

// ErrMissingClientCredentials is returned when the client id or secret is not configured.
var ErrMissingClientCredentials = errors.New("google OAuth client id and secret are required")

// NewOAuth2Config builds an oauth2.Config against Google's endpoint.
func NewOAuth2Config(cfg OAuthConfig) (*oauth2.Config, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, ErrMissingClientCredentials
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     googleoauth.Endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       append([]string(nil), scopes...),
	}, nil
}

// HTTPClient returns a client that authorizes every request with token.
// The token is never refreshed here; callers resolve it through the credential store.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func HTTPClient(ctx context.Context, token *oauth2.Token) *http.Client {
	base := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	}
	if hc, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && hc != nil && hc.Transport != nil {
		if t, ok := hc.Transport.(*http.Transport); ok {
			base = t
		}
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   base,
		},
	}
}
