package xquery

import (
	"net/url"
	"testing"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 0},
		{query: "limit=20", want: 20},
		{query: "limit=500", want: 100},
		{query: "limit=-3", want: 0},
		{query: "limit=ten", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			query, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("failed to parse query: %v", err)
			}
			if got := ParseLimit(query, "limit", 100); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
