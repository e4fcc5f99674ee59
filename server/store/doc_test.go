package store

import (
	"testing"
	"time"
)

func TestMerge(t *testing.T) {
	doc := map[string]any{
		"title":           "Open night",
		"registeredUsers": map[string]any{"u1": "a@b.c"},
	}

	tests := []struct {
		name   string
		fields map[string]any
		check  func(t *testing.T, out map[string]any)
	}{
		{
			name:   "top level",
			fields: map[string]any{"venue": "Hall"},
			check: func(t *testing.T, out map[string]any) {
				if out["venue"] != "Hall" || out["title"] != "Open night" {
					t.Fatalf("unexpected doc %v", out)
				}
			},
		},
		{
			name:   "nested insert",
			fields: map[string]any{FieldPath("registeredUsers", "u2"): "x@y.z"},
			check: func(t *testing.T, out map[string]any) {
				users := out["registeredUsers"].(map[string]any)
				if len(users) != 2 || users["u2"] != "x@y.z" {
					t.Fatalf("unexpected users %v", users)
				}
			},
		},
		{
			name:   "nested delete",
			fields: map[string]any{FieldPath("registeredUsers", "u1"): nil},
			check: func(t *testing.T, out map[string]any) {
				if users := out["registeredUsers"].(map[string]any); len(users) != 0 {
					t.Fatalf("expected no users, got %v", users)
				}
			},
		},
		{
			name:   "delete below missing parent",
			fields: map[string]any{FieldPath("tags", "a"): nil},
			check: func(t *testing.T, out map[string]any) {
				if _, ok := out["tags"]; ok {
					t.Fatalf("expected tags to stay missing, got %v", out["tags"])
				}
			},
		},
		{
			name:   "segment with separator",
			fields: map[string]any{FieldPath("registeredUsers", "a/b"): "c"},
			check: func(t *testing.T, out map[string]any) {
				if users := out["registeredUsers"].(map[string]any); users["a/b"] != "c" {
					t.Fatalf("unexpected users %v", users)
				}
			},
		},
		{
			name:   "server timestamp",
			fields: map[string]any{"updatedAt": ServerTimestamp},
			check: func(t *testing.T, out map[string]any) {
				if out["updatedAt"] != int64(42) {
					t.Fatalf("expected resolved timestamp, got %v", out["updatedAt"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Merge(doc, tt.fields, 42)
			if err != nil {
				t.Fatalf("merge: %v", err)
			}
			tt.check(t, out)
		})
	}

	if users := doc["registeredUsers"].(map[string]any); len(users) != 1 {
		t.Fatalf("expected merge to leave the input untouched, got %v", users)
	}
}

func TestMergeInvalidField(t *testing.T) {
	if _, err := Merge(nil, map[string]any{"a//b": 1}, 0); err == nil {
		t.Fatal("expected empty segment error")
	}
}

func TestToDoc(t *testing.T) {
	if _, err := ToDoc(nil); err == nil {
		t.Fatal("expected error for nil")
	}
	if _, err := ToDoc([]string{"a"}); err == nil {
		t.Fatal("expected error for non object")
	}

	doc, err := ToDoc(struct {
		Name string `json:"name"`
	}{Name: "Chess"})
	if err != nil {
		t.Fatalf("to doc: %v", err)
	}
	if doc["name"] != "Chess" {
		t.Fatalf("unexpected doc %v", doc)
	}
}

func TestFilterMatch(t *testing.T) {
	doc := map[string]any{"clubId": "c1", "open": true, "count": float64(2)}

	tests := []struct {
		filter Filter
		want   bool
	}{
		{Filter{}, true},
		{Eq("clubId", "c1"), true},
		{Eq("clubId", "c2"), false},
		{Eq("open", true), true},
		{Eq("count", 2), true},
		{Eq("count", "2"), false},
		{Eq("missing", "x"), false},
	}
	for _, tt := range tests {
		if got := tt.filter.Match(doc); got != tt.want {
			t.Fatalf("%+v: expected %t, got %t", tt.filter, tt.want, got)
		}
	}
}

func TestClockMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1000)
	c := &Clock{now: func() time.Time { return fixed }}

	if got := c.Now(); got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
	if got := c.Now(); got != 1001 {
		t.Fatalf("expected 1001, got %d", got)
	}
}

func TestPathValidate(t *testing.T) {
	if err := NewPath("clubs", "c1").Validate(); err != nil {
		t.Fatalf("expected valid path, got %v", err)
	}
	for _, p := range []Path{NewPath("", "c1"), NewPath("clubs", ""), NewPath("clubs", "a/b")} {
		if err := p.Validate(); err == nil {
			t.Fatalf("expected %q to be invalid", p)
		}
	}
}

func TestIntOK(t *testing.T) {
	doc := map[string]any{
		"int":    3,
		"float":  float64(4),
		"frac":   2.5,
		"string": "3",
		"nil":    nil,
	}
	tests := []struct {
		field  string
		want   int
		wantOK bool
	}{
		{field: "int", want: 3, wantOK: true},
		{field: "float", want: 4, wantOK: true},
		{field: "frac", want: 2, wantOK: false},
		{field: "string", want: 0, wantOK: false},
		{field: "nil", want: 0, wantOK: false},
		{field: "missing", want: 0, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := IntOK(doc, tt.field)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("expected (%d, %t), got (%d, %t)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}
