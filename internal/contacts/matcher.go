package contacts

import "strings"

// matcher indexes records by id and by normalised email.
type matcher struct {
	byID    map[string]*record
	byEmail map[string]*record
}

func newMatcher(existing []*record) *matcher {
	m := &matcher{
		byID:    make(map[string]*record, len(existing)),
		byEmail: make(map[string]*record, len(existing)),
	}
	for _, rec := range existing {
		m.add(rec)
	}
	return m
}

// find prefers an id match and falls back to email.
func (m *matcher) find(p Patch) (*record, bool) {
	if p.ID != nil {
		if rec, ok := m.byID[strings.TrimSpace(*p.ID)]; ok {
			return rec, true
		}
	}
	if p.Email != nil {
		if email := normalizeEmail(*p.Email); email != "" {
			rec, ok := m.byEmail[email]
			return rec, ok
		}
	}
	return nil, false
}

// add registers a record. The first record seen for an email keeps it.
func (m *matcher) add(rec *record) {
	if rec.ID != "" {
		m.byID[rec.ID] = rec
	}
	if email := normalizeEmail(rec.Email); email != "" {
		if _, taken := m.byEmail[email]; !taken {
			m.byEmail[email] = rec
		}
	}
}

// reindex updates the email index after rec's email changed from old.
func (m *matcher) reindex(rec *record, old string) {
	if prev := normalizeEmail(old); prev != "" && m.byEmail[prev] == rec {
		delete(m.byEmail, prev)
	}
	m.add(rec)
}

func (m *matcher) has(id string) bool {
	_, ok := m.byID[id]
	return ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
