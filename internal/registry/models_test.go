package registry_test

import (
	"encoding/json"
	"testing"

	"rorsync/internal/registry"
)

const rorType = "/dk/atira/pure/ueoexternalorganisation/ueoexternalorganisationsources/ror"

func TestHasIdentifier(t *testing.T) {
	identifiers := []json.RawMessage{
		json.RawMessage(`{"typeDiscriminator":"ClassifiedId","id":"https://ror.org/01","type":{"uri":"` + rorType + `"}}`),
		json.RawMessage(`{"typeDiscriminator":"ClassifiedId","id":"https://ror.org/02","type":{"uri":"/other/scheme"}}`),
		json.RawMessage(`"not an object"`),
	}
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "same id and type", id: "https://ror.org/01", want: true},
		{name: "same id other type", id: "https://ror.org/02", want: false},
		{name: "unknown id", id: "https://ror.org/03", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := registry.HasIdentifier(identifiers, tt.id, rorType); got != tt.want {
				t.Fatalf("HasIdentifier(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNewIdentifierShape(t *testing.T) {
	raw, err := registry.NewIdentifier("https://ror.org/01", rorType, "ClassifiedId", map[string]string{"en_GB": "ROR ID", "da_DK": "ROR ID"})
	if err != nil {
		t.Fatalf("NewIdentifier returned error: %v", err)
	}
	var decoded struct {
		TypeDiscriminator string `json:"typeDiscriminator"`
		ID                string `json:"id"`
		Type              struct {
			URI  string            `json:"uri"`
			Term map[string]string `json:"term"`
		} `json:"type"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode identifier: %v", err)
	}
	if decoded.TypeDiscriminator != "ClassifiedId" || decoded.ID != "https://ror.org/01" || decoded.Type.URI != rorType {
		t.Fatalf("unexpected identifier: %s", raw)
	}
	if decoded.Type.Term["da_DK"] != "ROR ID" {
		t.Fatalf("missing term: %s", raw)
	}
	if !registry.HasIdentifier([]json.RawMessage{raw}, "https://ror.org/01", rorType) {
		t.Fatal("new identifier should satisfy HasIdentifier")
	}
}
