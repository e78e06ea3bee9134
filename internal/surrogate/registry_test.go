package surrogate

import "testing"

func TestForAssignsSequentialKeysStartingAtOne(t *testing.T) {
	r := NewRegistry()

	key, existing := r.For("a")
	if existing {
		t.Fatal("expected first id to be new")
	}
	if key != 1 {
		t.Fatalf("got key %d, want 1", key)
	}

	key, existing = r.For("b")
	if existing {
		t.Fatal("expected second id to be new")
	}
	if key != 2 {
		t.Fatalf("got key %d, want 2", key)
	}
}

func TestForReusesKeyForKnownID(t *testing.T) {
	r := NewRegistry()

	first, _ := r.For("a")
	second, existing := r.For("a")

	if !existing {
		t.Fatal("expected second lookup to report existing")
	}
	if first != second {
		t.Fatalf("got %d and %d, want matching keys", first, second)
	}
}
