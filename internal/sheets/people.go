package sheets

import (
	"context"

	people "google.golang.org/api/people/v1"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/instrumentation"
)

const (
	connectionsPageSize = 1000
	personFields        = "names,emailAddresses,phoneNumbers,organizations,biographies"
)

// ListConnections reads the coach's Google Contacts as sync records with
// Source set to Import. People without a name or an email are left out since
// a later import could not match them again.
func (c *Client) ListConnections(ctx context.Context) ([]contacts.Patch, error) {
	var out []contacts.Patch
	pageToken := ""
	for {
		resp, err := call(ctx, c, instrumentation.ServicePeople, instrumentation.OperationImport, true,
			func(ctx context.Context) (*people.ListConnectionsResponse, error) {
				req := c.people.People.Connections.List("people/me").
					PageSize(connectionsPageSize).
					PersonFields(personFields).
					Context(ctx)
				if pageToken != "" {
					req = req.PageToken(pageToken)
				}
				return req.Do()
			})
		if err != nil {
			return nil, err
		}

		for _, person := range resp.Connections {
			if p, ok := personPatch(person); ok {
				out = append(out, p)
			}
		}

		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

func personPatch(person *people.Person) (contacts.Patch, bool) {
	if person == nil {
		return contacts.Patch{}, false
	}

	var name string
	if len(person.Names) > 0 {
		name = person.Names[0].DisplayName
	}

	email := ""
	for _, e := range person.EmailAddresses {
		if e.Value == "" {
			continue
		}
		if email == "" {
			email = e.Value
		}
		if e.Metadata != nil && e.Metadata.Primary {
			email = e.Value
			break
		}
	}
	if name == "" || email == "" {
		return contacts.Patch{}, false
	}

	p := contacts.Patch{
		Name:   contacts.String(name),
		Email:  contacts.String(email),
		Source: contacts.SourcePtr(contacts.SourceImport),
	}

	for _, ph := range person.PhoneNumbers {
		if ph.Value == "" {
			continue
		}
		if p.Phone == nil {
			p.Phone = contacts.String(ph.Value)
		}
		if ph.Metadata != nil && ph.Metadata.Primary {
			p.Phone = contacts.String(ph.Value)
			break
		}
	}

	if len(person.Organizations) > 0 {
		org := person.Organizations[0]
		if org.Name != "" {
			p.Organization = contacts.String(org.Name)
		}
		if org.Title != "" {
			p.Role = contacts.String(org.Title)
		}
	}

	if len(person.Biographies) > 0 && person.Biographies[0].Value != "" {
		p.Notes = contacts.String(person.Biographies[0].Value)
	}
	return p, true
}
