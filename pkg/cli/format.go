// Package cli provides shared formatting helpers for the lacpd console and
// lagctl.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

// SetColor turns ANSI coloring on or off. The SSH exec path renders plain
// text.
func SetColor(on bool) { colorEnabled = on }

func ansi(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Green wraps s in ANSI green.
func Green(s string) string { return ansi("32", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return ansi("33", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return ansi("31", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return ansi("1", s) }

// Status colors an oper or aggregate state: up green, partial yellow,
// anything else red.
func Status(s string) string {
	switch s {
	case "up":
		return Green(s)
	case "partial":
		return Yellow(s)
	default:
		return Red(s)
	}
}

// OrDash returns s, or "-" when s is empty.
func OrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// DotPad pads name with dots to the given width.
// Example: DotPad("Mode", 12) → "Mode ......."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}

// FieldWidth is the label column of Field.
const FieldWidth = 20

// Field writes one "label ..... value" detail line.
func Field(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "%s %v\n", DotPad(label, FieldWidth), value)
}
