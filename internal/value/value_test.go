package value

import "testing"

func TestNumericParsesFloats(t *testing.T) {
	v, ok := Numeric("10.911")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if !v.IsNumeric() {
		t.Fatal("expected numeric value")
	}
	if v.Number != 10.911 {
		t.Fatalf("got %v, want 10.911", v.Number)
	}
}

func TestNumericRejectsGarbage(t *testing.T) {
	if _, ok := Numeric("not-a-number"); ok {
		t.Fatal("expected parse to fail")
	}
}

func TestTextValue(t *testing.T) {
	v := Text("hello")
	if v.IsNumeric() {
		t.Fatal("expected textual value")
	}
	if v.String() != "hello" {
		t.Fatalf("got %q", v.String())
	}
}

func TestMapClone(t *testing.T) {
	m := Map{"a": Text("1")}
	c := m.Clone()
	c["a"] = Text("2")
	if m["a"].Text != "1" {
		t.Fatal("clone mutated original map")
	}
}
