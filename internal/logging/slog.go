package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation   = "operation"
	KeyService     = "service"
	KeyTenant      = "coach_id"
	KeySessionHash = "session_hash"
	KeyUserHash    = "user_hash"
	KeyContactID   = "contact_id"
	KeySpreadsheet = "spreadsheet_id"
	KeyDuration    = "duration"
	KeyStatus      = "status"
	KeyError       = "error"
	KeyTool        = "tool"
)

// Status values for consistent logging.
// Duplicated from the instrumentation package, which imports this one.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTenant returns a logger scoped to a coach.
func WithTenant(logger *slog.Logger, tenantID string) *slog.Logger {
	return logger.With(slog.String(KeyTenant, tenantID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Service returns a slog attribute for the Google service name.
func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

// Tenant returns a slog attribute for the coach id.
func Tenant(tenantID string) slog.Attr {
	return slog.String(KeyTenant, tenantID)
}

// ContactID returns a slog attribute for a contact id.
func ContactID(id string) slog.Attr {
	return slog.String(KeyContactID, id)
}

// Spreadsheet returns a slog attribute for a spreadsheet id.
func Spreadsheet(id string) slog.Attr {
	return slog.String(KeySpreadsheet, id)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// A nil error yields an empty group, which slog omits from output.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// hashIdentifier returns a short, stable digest of an identifier.
func hashIdentifier(prefix, value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

// AnonymizeEmail returns a hashed representation of an email for logging purposes.
func AnonymizeEmail(email string) string {
	return hashIdentifier("user:", strings.ToLower(strings.TrimSpace(email)))
}

// AnonymizeSession returns a hashed representation of a session id.
// Session ids are bearer secrets and must never reach the logs verbatim.
func AnonymizeSession(sessionID string) string {
	return hashIdentifier("session:", sessionID)
}

// UserHash returns a slog attribute with the anonymized user email.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// SessionHash returns a slog attribute with the anonymized session id.
func SessionHash(sessionID string) slog.Attr {
	return slog.String(KeySessionHash, AnonymizeSession(sessionID))
}

// SanitizeToken returns a masked version of a token for logging.
// Only the length is reported; no prefix of the token is exposed.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain extracts the domain part from an email address.
func ExtractDomain(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// Domain returns a slog attribute for the email domain (lower cardinality than full email).
func Domain(email string) slog.Attr {
	return slog.String("user_domain", ExtractDomain(email))
}
