// Package contacts_tools provides MCP tools for a coach's contact sheet.
//
// sheets_contacts_list and sheets_contacts_get are always available. The tools
// that write to the sheet (add, update, delete, sync, import and init) are
// only registered when the server runs with --yolo.
//
// Every tool takes session_id, the session opened through /oauth/exchange,
// and coach_id. Failures are returned as tool errors of the form
// "Kind: message", for example "AuthRequired: ...".
package contacts_tools
