package token

import (
	"strings"
	"testing"
)

func TestRandomToken(t *testing.T) {
	i := NewIssuer()

	tok, err := i.RandomToken(32)
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	if len(tok) != 64 {
		t.Fatalf("hex length = %d, want 64", len(tok))
	}
	again, err := i.RandomToken(32)
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	if tok == again {
		t.Fatal("two tokens collided")
	}
}

func TestRandomOTP(t *testing.T) {
	i := NewIssuer()

	for _, digits := range []int{4, 6, 8} {
		// Enough draws to hit low values that need zero padding.
		for n := 0; n < 200; n++ {
			code, err := i.RandomOTP(digits)
			if err != nil {
				t.Fatalf("RandomOTP(%d): %v", digits, err)
			}
			if len(code) != digits {
				t.Fatalf("RandomOTP(%d) = %q, wrong length", digits, code)
			}
			if strings.Trim(code, "0123456789") != "" {
				t.Fatalf("RandomOTP(%d) = %q, non-digit output", digits, code)
			}
		}
	}
}

func TestFingerprint(t *testing.T) {
	i := NewIssuer()

	a := i.Fingerprint("secret-one")
	if a != i.Fingerprint("secret-one") {
		t.Fatal("fingerprint is not deterministic")
	}
	if a == i.Fingerprint("secret-two") {
		t.Fatal("distinct inputs fingerprinted identically")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64", len(a))
	}
	if a == "secret-one" {
		t.Fatal("fingerprint must not echo the input")
	}
}
