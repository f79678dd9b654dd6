// Package credentials resolves opaque session ids to Google OAuth credentials.
//
// A Store refreshes credentials shortly before they expire, collapses
// concurrent refreshes of the same session into one call and evicts sessions
// whose refresh fails. Sessions can optionally be persisted to a file or to
// Valkey, sealed with AES-256-GCM when an encryption key is configured.
package credentials
