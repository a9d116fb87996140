package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal, looks non-random", n)
	}
}

func TestNewCode_PrefixAndEntropy(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		c, err := NewCode("KEY-")
		if err != nil {
			t.Fatalf("NewCode: %v", err)
		}
		if !strings.HasPrefix(c, "KEY-") {
			t.Fatalf("missing prefix: %q", c)
		}
		raw, err := base58.Decode(strings.TrimPrefix(c, "KEY-"))
		if err != nil {
			t.Fatalf("body is not base58: %q: %v", c, err)
		}
		if len(raw) > CodeEntropyBytes {
			t.Fatalf("decoded %d bytes, want <= %d", len(raw), CodeEntropyBytes)
		}
		if _, dup := seen[c]; dup {
			t.Fatalf("duplicate code %q", c)
		}
		seen[c] = struct{}{}
	}
}

func TestFingerprint_StableAndShort(t *testing.T) {
	t.Parallel()

	a := Fingerprint("KEY-abc")
	if a != Fingerprint("KEY-abc") {
		t.Fatalf("fingerprint not deterministic")
	}
	if a == Fingerprint("KEY-abd") {
		t.Fatalf("fingerprint collision on different input")
	}
	if len(a) != 12 || strings.Contains(a, "abc") {
		t.Fatalf("unexpected fingerprint %q", a)
	}
}
