package omit

import (
	"encoding/json"
	"testing"
)

type patch struct {
	Name  Omit[string] `json:"name"`
	Count Omit[int]    `json:"count"`
}

func TestUnmarshal(t *testing.T) {
	var p patch
	if err := json.Unmarshal([]byte(`{"name":""}`), &p); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !p.Name.OK || p.Name.Value != "" {
		t.Fatalf("expected explicit empty name, got %+v", p.Name)
	}
	if p.Count.OK {
		t.Fatalf("expected count to be omitted, got %+v", p.Count)
	}
	if got := p.Count.Or(7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestPut(t *testing.T) {
	fields := map[string]any{}
	New("Chess").Put(fields, "name")
	Omit[string]{}.Put(fields, "description")

	if len(fields) != 1 || fields["name"] != "Chess" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
