package hipaa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// BlindIndexer derives deterministic lookup values for sealed fields.
// Equal inputs (after normalization) give equal indexes; the key keeps the
// index from being reversed with a dictionary of common values.
type BlindIndexer struct {
	key []byte
}

// NewBlindIndexer requires a 32-byte key distinct from the encryption key.
func NewBlindIndexer(key []byte) (*BlindIndexer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("blind index key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &BlindIndexer{key: k}, nil
}

// Email indexes an email address, case-insensitively.
func (b *BlindIndexer) Email(v string) string {
	return b.sum(strings.ToLower(strings.TrimSpace(v)))
}

// Phone indexes a phone number by its digits only.
func (b *BlindIndexer) Phone(v string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, v)
	return b.sum(digits)
}

// Value indexes an opaque identifier, trimmed but case-sensitive.
func (b *BlindIndexer) Value(v string) string {
	return b.sum(strings.TrimSpace(v))
}

// Optional indexes v with fn, returning nil for a nil input.
func (b *BlindIndexer) Optional(v *string, fn func(string) string) *string {
	if v == nil {
		return nil
	}
	idx := fn(*v)
	return &idx
}

func (b *BlindIndexer) sum(v string) string {
	mac := hmac.New(sha256.New, b.key)
	mac.Write([]byte(v))
	return hex.EncodeToString(mac.Sum(nil))
}
