package persist

import (
	"strings"
	"testing"

	"github.com/jangala-dev/opdi-go/port"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := Store{
		"D1": Fields{FieldMode: "3", FieldLine: "1"},
		"A1": Fields{FieldMode: "0", FieldResolution: "2", FieldReference: "1", FieldValue: "512"},
	}
	var buf strings.Builder
	if err := Save(&buf, store); err != nil {
		t.Fatal(err)
	}

	got, err := Load(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	if got["D1"][FieldLine] != "1" || got["A1"][FieldValue] != "512" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadIgnoresBlankAndCommentLines(t *testing.T) {
	input := "# comment\n\nD1.Mode=3\n"
	got, err := Load(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if got["D1"][FieldMode] != "3" {
		t.Fatalf("expected D1.Mode=3, got %+v", got)
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	if _, err := Load(strings.NewReader("not-a-valid-record")); err == nil {
		t.Fatal("expected an error for a malformed record")
	}
}

func TestFieldsForAndApplyDigital(t *testing.T) {
	p := port.NewDigitalPort(port.NewBase("D1", "D1", port.Bidi), port.InputFloating, port.Low)
	fields := FieldsFor(p)
	if fields[FieldMode] != "0" || fields[FieldLine] != "0" {
		t.Fatalf("unexpected fields: %+v", fields)
	}

	fresh := port.NewDigitalPort(port.NewBase("D1", "D1", port.Bidi), port.InputFloating, port.Low)
	if err := Apply(fresh, Fields{FieldMode: "3", FieldLine: "1"}); err != nil {
		t.Fatal(err)
	}
	if fresh.Mode() != port.OutputMode || fresh.State() != port.High {
		t.Fatalf("expected applied fields to take effect, got mode=%v line=%v", fresh.Mode(), fresh.State())
	}
}

func TestApplyIgnoresUnknownFields(t *testing.T) {
	p := port.NewSelectPort(port.NewBase("S1", "S1", port.Bidi), []string{"a", "b"}, 0)
	if err := Apply(p, Fields{"NotARealField": "x", FieldPosition: "1"}); err != nil {
		t.Fatal(err)
	}
	if p.State() != 1 {
		t.Fatalf("expected position 1, got %d", p.State())
	}
}
