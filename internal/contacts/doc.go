// Package contacts holds the contact model and the Repository that reads and
// writes it through a row-oriented Table.
//
// Rows are never identified by position. Every Repository operation re-reads
// the table, finds the target by id and hands the row number to the Table
// together with the id it expects there. A Table reports ErrRowMoved when the
// row no longer matches; Update turns that into a Conflict and Delete re-reads
// once before giving up.
//
// Errors carry a Kind (ValidationError, NotFound, Conflict, RemoteUnavailable)
// that the HTTP and MCP layers map onto status codes:
//
//	c, err := repo.Add(ctx, contacts.Patch{Name: contacts.String("John Doe")})
//	if contacts.IsKind(err, contacts.KindValidation) {
//		// reject the request
//	}
package contacts
