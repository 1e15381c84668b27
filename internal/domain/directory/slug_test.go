package directory

import (
	"context"
	"errors"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane-doe"},
		{"  Zoë   O'Brien ", "zoe-o-brien"},
		{"José Álvarez-Núñez", "jose-alvarez-nunez"},
		{"Room #101", "room-101"},
		{"ＦＵＬＬ width", "full-width"},
		{"李雷", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUniqueSlug_AppendsDisambiguator(t *testing.T) {
	taken := map[string]bool{"jane-doe": true, "jane-doe-1": true}
	exists := func(_ context.Context, s string) (bool, error) { return taken[s], nil }

	got, err := uniqueSlug(context.Background(), "jane-doe", exists)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "jane-doe-2" {
		t.Errorf("expected jane-doe-2, got %q", got)
	}
}

func TestUniqueSlug_EmptyBase(t *testing.T) {
	exists := func(context.Context, string) (bool, error) { return false, nil }
	got, _ := uniqueSlug(context.Background(), "", exists)
	if got != "item" {
		t.Errorf("expected fallback slug, got %q", got)
	}
}

func TestUniqueSlug_LookupError(t *testing.T) {
	boom := errors.New("db down")
	exists := func(context.Context, string) (bool, error) { return false, boom }
	if _, err := uniqueSlug(context.Background(), "x", exists); !errors.Is(err, boom) {
		t.Errorf("expected wrapped lookup error, got %v", err)
	}
}
