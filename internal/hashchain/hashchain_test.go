package hashchain_test

import (
	"testing"

	"github.com/inaltera/inaltera/internal/hashchain"
)

func TestGenesis_shape(t *testing.T) {
	if len(hashchain.Genesis) != hashchain.HashLen {
		t.Fatalf("genesis length: got %d, want %d", len(hashchain.Genesis), hashchain.HashLen)
	}
	for _, c := range hashchain.Genesis {
		if c != '0' {
			t.Fatalf("genesis must be all zeros, found %q", c)
		}
	}
}

func TestCompute_deterministic(t *testing.T) {
	a := hashchain.Compute([]byte("issuance|F-1|Acme|100.00"), hashchain.Genesis)
	b := hashchain.Compute([]byte("issuance|F-1|Acme|100.00"), hashchain.Genesis)
	if a != b {
		t.Errorf("same inputs produced different hashes: %q vs %q", a, b)
	}
	if !hashchain.IsWellFormed(a) {
		t.Errorf("computed hash is not well-formed: %q", a)
	}
}

func TestCompute_orderSensitive(t *testing.T) {
	h1 := hashchain.Compute([]byte("ab"), "cd")
	h2 := hashchain.Compute([]byte("cd"), "ab")
	if h1 == h2 {
		t.Error("payload/prev concatenation order must matter")
	}
}

func TestCompute_prevHashChangesDigest(t *testing.T) {
	payload := []byte("issuance|F-2|Acme|50.00")
	h1 := hashchain.Compute(payload, hashchain.Genesis)
	h2 := hashchain.Compute(payload, h1)
	if h1 == h2 {
		t.Error("different prev hashes must produce different digests")
	}
}

// Pinned vector: SHA-256("hello" ++ 64 zeros). Guards against accidental
// changes to the concatenation scheme, which would silently break
// verifiability of all future entries.
func TestCompute_goldenVector(t *testing.T) {
	const want = "d6f8552a664d1416c1ff2116354691faeb303a6bff1aa45e49dc89cd46b1158b"
	got := hashchain.Compute([]byte("hello"), hashchain.Genesis)
	if got != want {
		t.Errorf("golden vector mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestIsWellFormed(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{hashchain.Genesis, true},
		{hashchain.Compute([]byte("x"), hashchain.Genesis), true},
		{"deadbeef", false},
		{"", false},
		{hashchain.Genesis[:63] + "G", false},
		{hashchain.Genesis[:63] + "A", false}, // uppercase hex is rejected
	}
	for _, c := range cases {
		if got := hashchain.IsWellFormed(c.in); got != c.want {
			t.Errorf("IsWellFormed(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
