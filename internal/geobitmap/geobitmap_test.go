package geobitmap

import "testing"

func TestSetAndContains(t *testing.T) {
	b := New()
	if b.Contains(1) {
		t.Fatal("expected empty bitmap to not contain 1")
	}
	b.Set(1)
	if !b.Contains(1) {
		t.Fatal("expected bitmap to contain 1 after Set")
	}
	if b.Contains(2) {
		t.Fatal("expected bitmap to not contain unset key 2")
	}
	if b.Len() != 1 {
		t.Fatalf("got len %d, want 1", b.Len())
	}
}

func TestSetIsIdempotent(t *testing.T) {
	b := New()
	b.Set(5)
	b.Set(5)
	if b.Len() != 1 {
		t.Fatalf("got len %d, want 1", b.Len())
	}
}
