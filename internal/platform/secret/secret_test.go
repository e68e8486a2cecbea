package secret

import (
	"encoding/base64"
	"testing"
)

func TestNewFormat(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}
	if len(s) != 43 {
		t.Fatalf("expected 43-character secret, got %d", len(s))
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	if len(decoded) != 32 {
		t.Fatalf("expected 32 decoded bytes, got %d", len(decoded))
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 256 {
		s, err := New()
		if err != nil {
			t.Fatalf("new secret: %v", err)
		}
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate secret %s", s)
		}
		seen[s] = struct{}{}
	}
}
