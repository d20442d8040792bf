package ids

import "testing"

func TestNewIsValidAndOrdered(t *testing.T) {
	a := New()
	b := New()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected id lengths: %q %q", a, b)
	}
	if !Valid(a) || !Valid(b) {
		t.Fatalf("generated ids must validate: %q %q", a, b)
	}
	if a == b {
		t.Fatal("ids must be unique")
	}
	if b < a {
		t.Fatalf("monotonic entropy should keep ids sorted: %q then %q", a, b)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "nope", "0000000000000000000000000", "Ω123"} {
		if Valid(s) {
			t.Fatalf("Valid(%q) should be false", s)
		}
	}
}
