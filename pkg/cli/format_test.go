package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestDotPad(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{"normal case", "Mode", 12, "Mode " + strings.Repeat(".", 7)},
		{"name equals width minus one", "abcde", 6, "abcde"},
		{"name longer than width", "Partner System", 5, "Partner System"},
		{"empty string", "", 4, " ..."},
		{"zero width", "x", 0, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DotPad(tt.input, tt.width)
			if got != tt.expected {
				t.Errorf("DotPad(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.expected)
			}
		})
	}
}

func TestField(t *testing.T) {
	var buf bytes.Buffer
	Field(&buf, "Aggregate State", "up")
	want := "Aggregate State .... up\n"
	if buf.String() != want {
		t.Errorf("Field() = %q, want %q", buf.String(), want)
	}
}

func TestStatus(t *testing.T) {
	SetColor(true)
	defer SetColor(false)

	tests := []struct {
		state  string
		prefix string
	}{
		{"up", "\033[32m"},
		{"partial", "\033[33m"},
		{"down", "\033[31m"},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got := Status(tt.state)
			if !strings.HasPrefix(got, tt.prefix) || !strings.HasSuffix(got, "\033[0m") {
				t.Errorf("Status(%q) = %q", tt.state, got)
			}
		})
	}
}

func TestColorDisabled(t *testing.T) {
	SetColor(false)
	for _, fn := range []func(string) string{Green, Yellow, Red, Bold, Status} {
		if got := fn("up"); got != "up" {
			t.Errorf("got %q with color disabled", got)
		}
	}
}

func TestOrDash(t *testing.T) {
	if OrDash("") != "-" || OrDash("lag1") != "lag1" {
		t.Error("OrDash mismatch")
	}
}
