package util

import (
	"strings"
	"testing"
)

func TestNewIDUsesPrefixVerbatim(t *testing.T) {
	id := NewID("qb_")
	if !strings.HasPrefix(id, "qb_") {
		t.Fatalf("id = %q, want qb_ prefix", id)
	}
	if strings.Contains(id, "__") {
		t.Fatalf("id = %q, prefix must not be double-joined", id)
	}
	if len(id) != len("qb_")+32 {
		t.Fatalf("id = %q, want 16 random bytes hex-encoded after the prefix", id)
	}
}

func TestNewIDWithoutPrefix(t *testing.T) {
	id := NewID("")
	if len(id) != 32 {
		t.Fatalf("id = %q, want bare 32-char hex string", id)
	}
}

func TestSubQueryID(t *testing.T) {
	if got := SubQueryID("qb_abc", 2); got != "qb_abc-q2" {
		t.Fatalf("SubQueryID = %q", got)
	}
}
