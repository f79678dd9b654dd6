package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/contactsync"
	"github.com/teemow/coachcontacts/internal/credentials"
)

// Argument names shared by every contact tool.
const (
	ArgSessionID = "session_id"
	ArgCoachID   = "coach_id"
)

// ScopeFromArgs reads session_id and coach_id. Both are required.
func ScopeFromArgs(args map[string]interface{}) (contactsync.Scope, error) {
	sessionID := StringArg(args, ArgSessionID)
	if sessionID == "" {
		return contactsync.Scope{}, contacts.ValidationError("%s is required", ArgSessionID)
	}
	coachID := StringArg(args, ArgCoachID)
	if coachID == "" {
		return contactsync.Scope{}, contacts.ValidationError("%s is required", ArgCoachID)
	}
	return contactsync.Scope{SessionID: sessionID, CoachID: coachID}, nil
}

// StringArg returns the trimmed string argument, or "" when absent.
func StringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

// BoolArg returns the boolean argument, or def when absent.
func BoolArg(args map[string]interface{}, name string, def bool) bool {
	if b, ok := args[name].(bool); ok {
		return b
	}
	return def
}

// DecodeArg converts the decoded JSON value of an argument into v. A missing
// argument is a validation error.
func DecodeArg(args map[string]interface{}, name string, v any) error {
	raw, ok := args[name]
	if !ok || raw == nil {
		return contacts.ValidationError("%s is required", name)
	}
	// Clients sometimes send objects as JSON strings.
	if s, isString := raw.(string); isString {
		if err := json.Unmarshal([]byte(s), v); err != nil {
			return contacts.ValidationError("%s is not valid JSON: %v", name, err)
		}
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return contacts.ValidationError("%s could not be encoded: %v", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return contacts.ValidationError("%s has an invalid shape: %v", name, err)
	}
	return nil
}

// ErrorMessage renders err as "Kind: message", without the wrapped Google
// details.
func ErrorMessage(err error) string {
	if errors.Is(err, credentials.ErrAuthRequired) {
		return "AuthRequired: Google authorization required, sign in again"
	}
	var ce *contacts.Error
	if errors.As(err, &ce) {
		return fmt.Sprintf("%s: %s", ce.Kind, ce.Message)
	}
	return fmt.Sprintf("Internal: %v", err)
}

// ErrorResult returns a tool error result for err.
func ErrorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(ErrorMessage(err))
}

// JSONResult returns v as indented JSON text.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
