package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// ErrNoVersion is returned when a record carries no optimistic-concurrency
// version; such records are never written.
var ErrNoVersion = errors.New("organization has no version")

// Page is one page of the organization listing.
type Page struct {
	Count *int       `json:"count"`
	Items []ListItem `json:"items"`
}

// ListItem is the summary of an organization returned by the listing.
type ListItem struct {
	UUID     string            `json:"uuid"`
	Name     map[string]string `json:"name"`
	Workflow *Workflow         `json:"workflow"`
}

// Workflow carries the record's approval state.
type Workflow struct {
	Step string `json:"step"`
}

// LocalizedName returns the name in locale, falling back to the first
// non-empty locale in sorted order.
func (i ListItem) LocalizedName(locale string) string {
	if name := strings.TrimSpace(i.Name[locale]); name != "" {
		return name
	}
	locales := make([]string, 0, len(i.Name))
	for key := range i.Name {
		locales = append(locales, key)
	}
	sort.Strings(locales)
	for _, key := range locales {
		if name := strings.TrimSpace(i.Name[key]); name != "" {
			return name
		}
	}
	return ""
}

// WorkflowStep returns the workflow step, or "" when absent.
func (i ListItem) WorkflowStep() string {
	if i.Workflow == nil {
		return ""
	}
	return i.Workflow.Step
}

// Organization is the subset of a full record that identifier write-back
// needs. Identifiers are kept as raw JSON so unknown identifier shapes are
// sent back unchanged.
type Organization struct {
	UUID        string            `json:"uuid"`
	Version     json.RawMessage   `json:"version"`
	Identifiers []json.RawMessage `json:"identifiers"`
}

// HasVersion reports whether version is present and not null or empty.
func HasVersion(version json.RawMessage) bool {
	trimmed := bytes.TrimSpace(version)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		return false
	}
	return true
}

// IdentifierType names an identifier scheme.
type IdentifierType struct {
	URI  string            `json:"uri"`
	Term map[string]string `json:"term,omitempty"`
}

// ClassifiedIdentifier is an identifier entry in the registry's model.
type ClassifiedIdentifier struct {
	TypeDiscriminator string          `json:"typeDiscriminator,omitempty"`
	ID                string          `json:"id"`
	Type              *IdentifierType `json:"type,omitempty"`
}

// NewIdentifier builds the identifier entry that records id under typeURI.
func NewIdentifier(id, typeURI, discriminator string, terms map[string]string) (json.RawMessage, error) {
	entry := ClassifiedIdentifier{
		TypeDiscriminator: discriminator,
		ID:                id,
		Type:              &IdentifierType{URI: typeURI, Term: terms},
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// HasIdentifier reports whether identifiers already contain id under typeURI.
// Entries that do not decode as identifiers are ignored.
func HasIdentifier(identifiers []json.RawMessage, id, typeURI string) bool {
	id = strings.TrimSpace(id)
	for _, raw := range identifiers {
		var entry ClassifiedIdentifier
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.Type == nil || entry.Type.URI != typeURI {
			continue
		}
		if strings.TrimSpace(entry.ID) == id {
			return true
		}
	}
	return false
}

type updateRequest struct {
	Version     json.RawMessage   `json:"version"`
	Identifiers []json.RawMessage `json:"identifiers"`
}

type mergeItem struct {
	UUID       string `json:"uuid"`
	SystemName string `json:"systemName"`
}

type mergeRequest struct {
	Items []mergeItem `json:"items"`
}
