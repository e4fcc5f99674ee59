package xtime

import (
	"testing"
	"time"
)

func TestDurationUnmarshalText(t *testing.T) {
	tests := []struct {
		text    string
		want    Duration
		wantErr bool
	}{
		{text: "15m", want: Duration(15 * time.Minute)},
		{text: "300", want: Duration(5 * time.Minute)},
		{text: "", want: 0},
		{text: "-1m", want: Duration(-time.Minute)},
		{text: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d := Duration(time.Hour)
			err := d.UnmarshalText([]byte(tt.text))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, d)
			}
		})
	}
}
