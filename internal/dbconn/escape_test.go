package dbconn

import (
	"testing"
	"time"
)

func TestEscape_Positional(t *testing.T) {
	got, err := Escape("SELECT * FROM t WHERE id=%s AND name=%s", []interface{}{42, "o'brien"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT * FROM t WHERE id=42 AND name='o\\'brien'"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscape_Named(t *testing.T) {
	got, err := Escape("SELECT * FROM t WHERE id=%(id)s", nil, map[string]interface{}{"id": 7})
	if err != nil {
		t.Fatal(err)
	}
	if got != "SELECT * FROM t WHERE id=7" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestEscape_MixedStylesRejected(t *testing.T) {
	_, err := Escape("SELECT %s WHERE %(x)s", []interface{}{1}, map[string]interface{}{"x": 2})
	if err == nil {
		t.Fatal("expected a FormatException for mixed positional/named styles")
	}
}

func TestEscape_TooFewPositionalArgs(t *testing.T) {
	_, err := Escape("SELECT * FROM t WHERE id=%s AND name=%s", []interface{}{1}, nil)
	if err == nil {
		t.Fatal("expected a FormatException for too few positional arguments")
	}
}

func TestEscape_TooManyPositionalArgs(t *testing.T) {
	_, err := Escape("SELECT * FROM t WHERE id=%s", []interface{}{1, 2}, nil)
	if err == nil {
		t.Fatal("expected a FormatException for too many positional arguments")
	}
}

func TestEscape_MissingNamedArg(t *testing.T) {
	_, err := Escape("SELECT * FROM t WHERE id=%(id)s", nil, map[string]interface{}{"other": 1})
	if err == nil {
		t.Fatal("expected a FormatException for a missing named argument")
	}
}

func TestEscapeLiteral_Nil(t *testing.T) {
	got, err := escapeLiteral(nil)
	if err != nil || got != "NULL" {
		t.Fatalf("got %q, %v; want NULL", got, err)
	}
}

func TestEscapeLiteral_Bool(t *testing.T) {
	got, _ := escapeLiteral(true)
	if got != "1" {
		t.Fatalf("expected true to render as 1, got %q", got)
	}
}

func TestEscapeLiteral_Bytes(t *testing.T) {
	got, _ := escapeLiteral([]byte{0xde, 0xad, 0xbe, 0xef})
	if got != "x'deadbeef'" {
		t.Fatalf("unexpected byte literal: %q", got)
	}
}

func TestEscapeLiteral_Time(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, _ := escapeLiteral(ts)
	if got != "'2026-01-02 03:04:05'" {
		t.Fatalf("unexpected time literal: %q", got)
	}
}

func TestEscapeLiteral_Slice(t *testing.T) {
	got, err := escapeLiteral([]interface{}{1, "a"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "1, 'a'" {
		t.Fatalf("unexpected slice literal: %q", got)
	}
}

func TestQuoteString_EscapesSpecialChars(t *testing.T) {
	got := quoteString("a'b\\c\nd")
	want := `'a\'b\\c\nd'`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
