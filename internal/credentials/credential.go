package credentials

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrAuthRequired is returned when a session cannot produce a usable credential.
// The caller must send the user through the OAuth flow again.
var ErrAuthRequired = errors.New("authentication required")

// Credential is the OAuth material bound to one session id.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	CoachID      string    `json:"coach_id,omitempty"`
	Email        string    `json:"email,omitempty"`
}

// Token converts the credential into an oauth2 token for API clients.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// FromToken builds a credential from a freshly issued token.
func FromToken(tok *oauth2.Token) Credential {
	c := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		c.Scopes = splitScopes(scope)
	}
	return c
}

// refreshed merges a refreshed token into the previous credential.
// Providers usually omit the refresh token on refresh; the old one is kept.
func (c Credential) refreshed(tok *oauth2.Token) Credential {
	next := FromToken(tok)
	if next.RefreshToken == "" {
		next.RefreshToken = c.RefreshToken
	}
	if len(next.Scopes) == 0 {
		next.Scopes = c.Scopes
	}
	next.CoachID = c.CoachID
	next.Email = c.Email
	return next
}

// needsRefresh reports whether the credential expires within margin of now.
// A zero expiry never needs refresh.
func (c Credential) needsRefresh(now time.Time, margin time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Add(margin).Before(c.Expiry)
}

// expired reports whether the credential is past its expiry.
func (c Credential) expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

func splitScopes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
}
