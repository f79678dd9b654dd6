package instrumentation

import "strings"

// ExtractUserDomain reduces an email to its domain for use as a metric or log label.
//
//	ExtractUserDomain("coach@club.example")  // "club.example"
//	ExtractUserDomain("invalid")             // "unknown"
func ExtractUserDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "unknown"
	}
	return domain
}

// Operation names used as the "operation" label on Google API and contact metrics.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationDelete   = "delete"
	OperationSync     = "sync"
	OperationImport   = "import"
	OperationFormat   = "format"
	OperationTag      = "tag"
	OperationSearch   = "search"
	OperationRefresh  = "refresh"
	OperationExchange = "exchange"
)
