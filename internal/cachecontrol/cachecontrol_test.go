package cachecontrol

import (
	"testing"
	"time"
)

func TestParseDirectives(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   map[string]string
	}{
		{
			name:   "simple tokens",
			values: []string{"no-store, no-cache"},
			want:   map[string]string{"no-store": "", "no-cache": ""},
		},
		{
			name:   "argument directive",
			values: []string{"max-age=60"},
			want:   map[string]string{"max-age": "60"},
		},
		{
			name:   "mixed case directive name",
			values: []string{"Must-Revalidate"},
			want:   map[string]string{"must-revalidate": ""},
		},
		{
			name:   "quoted argument",
			values: []string{`private="Set-Cookie"`},
			want:   map[string]string{"private": "Set-Cookie"},
		},
		{
			name:   "multiple header lines merge",
			values: []string{"no-cache", "max-age=30"},
			want:   map[string]string{"no-cache": "", "max-age": "30"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Parse(tt.values)
			for name, wantVal := range tt.want {
				got, ok := d.Get(name)
				if !ok {
					t.Fatalf("directive %q not found", name)
				}
				if got != wantVal {
					t.Fatalf("directive %q = %q, want %q", name, got, wantVal)
				}
			}
		})
	}
}

func TestMaxAge(t *testing.T) {
	d := Parse([]string{"max-age=120"})
	got, ok := d.MaxAge()
	if !ok || got != 120*time.Second {
		t.Fatalf("MaxAge() = %v, %v", got, ok)
	}
}

func TestMaxAgeAbsent(t *testing.T) {
	d := Parse([]string{"no-cache"})
	if _, ok := d.MaxAge(); ok {
		t.Fatal("MaxAge() reported present when absent")
	}
}

func TestMaxAgeMalformed(t *testing.T) {
	d := Parse([]string{"max-age=notanumber"})
	if _, ok := d.MaxAge(); ok {
		t.Fatal("MaxAge() reported present for a malformed value")
	}
}

func TestHas(t *testing.T) {
	d := Parse([]string{"no-store"})
	if !d.Has("no-store") {
		t.Fatal("Has(no-store) = false")
	}
	if d.Has("no-cache") {
		t.Fatal("Has(no-cache) = true")
	}
}
