// Package sheets stores coach contacts in Google Sheets.
//
// A Client wraps the Sheets, Drive and People APIs for one authorized coach.
// Its Table type implements contacts.Table over the "Contacts" tab (columns
// A through K). Row writes first re-read column A of the target row and
// report contacts.ErrRowMoved when it no longer holds the expected id.
//
// Every API call runs under its own timeout and is retried once on transient
// failures (429, 5xx, timeouts, network errors). Appends, row deletions and
// spreadsheet creation are retried only when Google rejected the first attempt
// with a rate limit. Failures are mapped to contacts error kinds or to
// credentials.ErrAuthRequired.
//
// The Locator binds a coach to a spreadsheet through the Drive appProperties
// tag TenantProperty:
//
//	loc := sheets.NewLocator()
//	id, err := loc.FindOrCreate(ctx, client, coachID, "")
//	repo := contacts.NewRepository(client.Table(id))
package sheets
