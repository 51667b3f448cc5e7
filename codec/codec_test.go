package codec

import (
	"testing"

	"github.com/jangala-dev/opdi-go/protoerr"
)

func TestSplitJoinRoundTrip(t *testing.T) {
	cases := [][]string{
		{"gDS", "D1"},
		{"sDL", "D1", "1"},
		{""},
		{"a", "", "b"},
		{"has:colon", "plain"},
	}
	for _, parts := range cases {
		joined, err := Join(parts, 0)
		if err != nil {
			t.Fatalf("Join(%v): %v", parts, err)
		}
		got, err := Split(joined, 0, false)
		if err != nil {
			t.Fatalf("Split(%q): %v", joined, err)
		}
		if len(got) != len(parts) {
			t.Fatalf("Split(%q) = %v, want %v", joined, got, parts)
		}
		for i := range parts {
			if got[i] != parts[i] {
				t.Fatalf("part %d: got %q want %q (joined=%q)", i, got[i], parts[i], joined)
			}
		}
	}
}

func TestSplitEscapedSeparator(t *testing.T) {
	got, err := Split("a::b:c", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a:b", "c"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSplitEmptyPart(t *testing.T) {
	got, err := Split("gDS: :1", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1] != "" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitMaxParts(t *testing.T) {
	_, err := Split("a:b:c:d", 3, false)
	if protoerr.Of(err) != protoerr.MalformedMessage {
		t.Fatalf("expected MalformedMessage, got %v", err)
	}
}

func TestJoinMaxLength(t *testing.T) {
	_, err := Join([]string{"0123456789"}, 4)
	if protoerr.Of(err) != protoerr.MalformedMessage {
		t.Fatalf("expected MalformedMessage, got %v", err)
	}
}

func TestJoinRejectsTerminator(t *testing.T) {
	_, err := Join([]string{"a\nb"}, 0)
	if protoerr.Of(err) != protoerr.TerminatorInPayload {
		t.Fatalf("expected TerminatorInPayload, got %v", err)
	}
}

func TestFixedWidthNumeric(t *testing.T) {
	v, err := ParseUint8("255")
	if err != nil || v != 255 {
		t.Fatalf("ParseUint8: %v %v", v, err)
	}
	if _, err := ParseUint8("256"); protoerr.Of(err) != protoerr.InvalidPayload {
		t.Fatalf("expected overflow to be rejected")
	}
	if _, err := ParseUint16("abc"); protoerr.Of(err) != protoerr.InvalidPayload {
		t.Fatalf("expected non-digit to be rejected")
	}
	if FormatUint(42) != "42" {
		t.Fatal("FormatUint mismatch")
	}
}
