package contacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Source records where a contact came from.
type Source string

const (
	SourceDashboard Source = "Dashboard"
	SourceManual    Source = "Manual"
	SourceImport    Source = "Import"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceDashboard, SourceManual, SourceImport:
		return true
	}
	return false
}

// ParseSource matches s case-insensitively against the known sources.
func ParseSource(s string) (Source, bool) {
	for _, src := range []Source{SourceDashboard, SourceManual, SourceImport} {
		if strings.EqualFold(strings.TrimSpace(s), string(src)) {
			return src, true
		}
	}
	return "", false
}

// Contact is one row of a coach's contact sheet.
type Contact struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Organization string    `json:"organization"`
	Role         string    `json:"role"`
	Notes        string    `json:"notes"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Source       Source    `json:"source"`
}

// Patch carries optional field values. A nil field is left untouched.
// ID is only used to match records during sync; it is never written.
type Patch struct {
	ID           *string  `json:"id,omitempty"`
	Name         *string  `json:"name,omitempty"`
	Email        *string  `json:"email,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
	Organization *string  `json:"organization,omitempty"`
	Role         *string  `json:"role,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
	Tags         *TagList `json:"tags,omitempty"`
	Source       *Source  `json:"source,omitempty"`
}

// TagList decodes from either a JSON array or a comma-separated string.
type TagList []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TagList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = TagList{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = SplitTags(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("tags must be a string or an array of strings: %w", err)
	}
	*t = normalizeTags(list)
	return nil
}

// SplitTags parses a comma-separated tag cell.
func SplitTags(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return []string{}
	}
	return normalizeTags(strings.Split(cell, ","))
}

// JoinTags renders tags as a single cell.
func JoinTags(tags []string) string {
	return strings.Join(normalizeTags(tags), ",")
}

// normalizeTags trims tags and drops empty ones. A tag holding a comma is
// split, since the sheet cell cannot tell it apart from two tags.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		for _, part := range strings.Split(tag, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

// Tags returns a pointer to a TagList, for building patches.
func Tags(tags ...string) *TagList {
	t := TagList(normalizeTags(tags))
	return &t
}

// SourcePtr returns a pointer to s, for building patches.
func SourcePtr(s Source) *Source { return &s }

// PatchFrom builds a patch that sets every field of c, including its id.
func PatchFrom(c Contact) Patch {
	p := Patch{
		Name:         String(c.Name),
		Email:        String(c.Email),
		Phone:        String(c.Phone),
		Organization: String(c.Organization),
		Role:         String(c.Role),
		Notes:        String(c.Notes),
		Tags:         Tags(c.Tags...),
	}
	if c.ID != "" {
		p.ID = String(c.ID)
	}
	if c.Source != "" {
		p.Source = SourcePtr(c.Source)
	}
	return p
}

// validate checks the fields a patch sets and normalises them to the form
// FromRow reads back: strings trimmed, tags split on commas.
func (p *Patch) validate() error {
	for _, f := range []**string{&p.ID, &p.Name, &p.Email, &p.Phone, &p.Organization, &p.Role, &p.Notes} {
		if *f != nil {
			*f = String(strings.TrimSpace(**f))
		}
	}
	if p.Name != nil && *p.Name == "" {
		return newError(KindValidation, nil, "name cannot be blank")
	}
	if p.Tags != nil {
		p.Tags = Tags(*p.Tags...)
	}
	if p.Source != nil && !p.Source.Valid() {
		src, ok := ParseSource(string(*p.Source))
		if !ok {
			return newError(KindValidation, nil, "unknown source %q", string(*p.Source))
		}
		p.Source = &src
	}
	return nil
}

// apply copies the set fields onto c.
func (p Patch) apply(c *Contact) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Name, p.Name)
	set(&c.Email, p.Email)
	set(&c.Phone, p.Phone)
	set(&c.Organization, p.Organization)
	set(&c.Role, p.Role)
	set(&c.Notes, p.Notes)
	if p.Tags != nil {
		c.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.Source != nil {
		c.Source = *p.Source
	}
}

// differs reports whether applying p would change any field of c.
func (p Patch) differs(c Contact) bool {
	neq := func(v *string, cur string) bool { return v != nil && *v != cur }
	if neq(p.Name, c.Name) || neq(p.Email, c.Email) || neq(p.Phone, c.Phone) ||
		neq(p.Organization, c.Organization) || neq(p.Role, c.Role) || neq(p.Notes, c.Notes) {
		return true
	}
	if p.Tags != nil && JoinTags(*p.Tags) != JoinTags(c.Tags) {
		return true
	}
	return p.Source != nil && *p.Source != c.Source
}
