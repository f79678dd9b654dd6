// Package google builds the OAuth client configuration and authorized HTTP
// clients used to reach the Sheets, Drive and People APIs.
//
// Tokens are owned by the credential store; this package never persists or
// refreshes them.
package google
