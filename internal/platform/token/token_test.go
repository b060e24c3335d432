package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerate_Format(t *testing.T) {
	g := NewGenerator(0)
	tok, _, err := g.Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(tok, Prefix) {
		t.Errorf("expected %q prefix, got %q", Prefix, tok)
	}
	if len(tok) != len(Prefix)+tokenRandomBytes*2 {
		t.Errorf("unexpected token length %d", len(tok))
	}
}

func TestGenerate_Unique(t *testing.T) {
	g := NewGenerator(time.Hour)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, _, err := g.Generate()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = true
	}
}

func TestGenerate_Expiry(t *testing.T) {
	g := NewGenerator(48 * time.Hour)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	_, exp, err := g.Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fixed.Add(48 * time.Hour); !exp.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, exp)
	}
}

func TestGenerate_DefaultTTL(t *testing.T) {
	g := NewGenerator(-1)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	_, exp, _ := g.Generate()
	if want := fixed.Add(DefaultTTL); !exp.Equal(want) {
		t.Errorf("expected default 7-day expiry %v, got %v", want, exp)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestGenerate_EntropyFailure(t *testing.T) {
	g := NewGenerator(time.Hour)
	g.rand = failingReader{}
	if _, _, err := g.Generate(); err == nil {
		t.Fatal("expected error when entropy source fails")
	}
}
