package google

// DefaultOAuthScopes are the scopes a session needs for every contacts operation.
//
//   - spreadsheets: read and write the contacts sheet
//   - drive.file: search and tag sheets created by this app
//   - contacts.readonly: import from Google Contacts
//   - userinfo.email: attribute the session to a coach
var DefaultOAuthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/contacts.readonly",
}

// ScopeContactsReadOnly is required only for the People import.
const ScopeContactsReadOnly = "https://www.googleapis.com/auth/contacts.readonly"

// HasScope reports whether granted contains scope. An empty grant list is
// treated as unknown and accepted.
func HasScope(granted []string, scope string) bool {
	if len(granted) == 0 {
		return true
	}
	for _, s := range granted {
		if s == scope {
			return true
		}
	}
	return false
}
