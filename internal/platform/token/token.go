// Package token issues opaque invitation tokens with explicit expiry.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Prefix makes invitation tokens recognizable in logs and support tickets
// without revealing anything about their contents.
const Prefix = "fam_"

// DefaultTTL is the invitation validity window.
const DefaultTTL = 7 * 24 * time.Hour

// tokenRandomBytes is the number of random bytes per token. 32 bytes gives
// 256 bits of entropy, well past the unguessability requirement.
const tokenRandomBytes = 32

// Generator produces invitation tokens. The zero value is not usable; use
// NewGenerator.
type Generator struct {
	ttl  time.Duration
	now  func() time.Time
	rand io.Reader
}

// NewGenerator creates a Generator with the given invitation TTL. A
// non-positive ttl falls back to DefaultTTL.
func NewGenerator(ttl time.Duration) *Generator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Generator{ttl: ttl, now: time.Now, rand: rand.Reader}
}

// Generate returns a new unique token and its expiry. Generation is pure:
// no state is kept between calls. An entropy source failure is returned as
// an error; callers must treat it as fatal rather than proceed with a
// guessable token.
func (g *Generator) Generate() (string, time.Time, error) {
	b := make([]byte, tokenRandomBytes)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", time.Time{}, fmt.Errorf("read token entropy: %w", err)
	}
	return Prefix + hex.EncodeToString(b), g.now().UTC().Add(g.ttl), nil
}
