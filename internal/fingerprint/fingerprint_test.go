package fingerprint

import (
	"strings"
	"testing"
)

func TestSumIsDeterministic(t *testing.T) {
	a := Sum([]byte("arrest report v1"))
	b := Sum([]byte("arrest report v1"))
	if !a.Equal(b) {
		t.Fatal("same content produced different digests")
	}
	if a.Equal(Sum([]byte("arrest report v2"))) {
		t.Fatal("different content produced equal digests")
	}
	if len(a) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(a))
	}
}

func TestSumReaderMatchesSum(t *testing.T) {
	content := "a reasonably long body streamed in chunks"
	got, err := SumReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("sum reader: %v", err)
	}
	if !got.Equal(Sum([]byte(content))) {
		t.Fatal("streamed digest differs from in-memory digest")
	}
}

func TestParse(t *testing.T) {
	d := Sum([]byte("x"))

	parsed, err := Parse("  " + strings.ToUpper(d.String()) + "  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(d) {
		t.Fatalf("parsed = %s, want %s", parsed, d)
	}

	if _, err := Parse("abc123"); err == nil {
		t.Fatal("short input accepted")
	}
	if _, err := Parse(strings.Repeat("z", 64)); err == nil {
		t.Fatal("non-hex input accepted")
	}
}

func TestZeroValue(t *testing.T) {
	var d Digest
	if !d.IsZero() {
		t.Fatal("zero digest not reported zero")
	}
	if d.Equal(Sum([]byte("x"))) {
		t.Fatal("zero digest equals a real one")
	}
}
