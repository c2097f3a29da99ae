package symbol

import (
	"errors"
	"testing"
)

func TestNormalize_Valid(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"AAPL", "AAPL"},
		{"aapl", "AAPL"},
		{"  nflx ", "NFLX"},
		{"BRK.B", "BRK.B"},
		{"brk.b", "BRK.B"},
		{"A", "A"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.raw)
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t"} {
		_, err := Normalize(raw)
		if !errors.Is(err, ErrEmpty) {
			t.Errorf("Normalize(%q): expected ErrEmpty, got %v", raw, err)
		}
	}
}

func TestNormalize_InvalidFormat(t *testing.T) {
	tests := []string{
		"123",
		"AAPL!",
		"TOOLONGSYMBOL",
		".AAPL",
		"AA PL",
		"aapl-usd",
	}
	for _, raw := range tests {
		_, err := Normalize(raw)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Normalize(%q): expected ErrInvalid, got %v", raw, err)
		}
	}
}
