package cli

import (
	"bytes"
	"testing"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "LAG", "MODE", "STATE")
	tbl.Row("lag1", "active", "up")
	tbl.Row("lag10", "static", "down")
	tbl.Flush()

	want := "LAG    MODE    STATE\n" +
		"---    ----    -----\n" +
		"lag1   active  up\n" +
		"lag10  static  down\n"
	if buf.String() != want {
		t.Errorf("table output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTable_EmptyWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	NewTableTo(&buf, "A", "B").Flush()
	if buf.Len() != 0 {
		t.Errorf("empty table wrote %q", buf.String())
	}
}

func TestTable_Prefix(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "PORT").WithPrefix("  ")
	tbl.Row("Ethernet0")
	tbl.Flush()

	want := "  PORT\n  ----\n  Ethernet0\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
