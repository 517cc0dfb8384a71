package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// ErrMalformedToken is returned when a token is not valid base64 or is too
// short to contain a nonce and an authentication tag.
var ErrMalformedToken = errors.New("phi decrypt: malformed token")

// PHIEncryptor performs AES-256-GCM encryption for individual field values.
// Tokens are base64(nonce ‖ tag ‖ ciphertext). It holds no mutable state and
// is safe for concurrent use.
type PHIEncryptor struct {
	aead cipher.AEAD
}

// NewPHIEncryptor creates an encryptor from a 32-byte key.
func NewPHIEncryptor(key []byte) (*PHIEncryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &PHIEncryptor{aead: aead}, nil
}

// DecodeKey accepts a key as 64 hex characters or as standard base64 and
// returns the raw bytes. The decoded key must be exactly 32 bytes.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("key is empty")
	}
	if len(s) == KeySize*2 {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key is neither hex nor base64: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must decode to %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *PHIEncryptor) Encrypt(plaintext string) (string, error) {
	raw, err := e.EncryptBytes([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decrypt opens a token produced by Encrypt.
func (e *PHIEncryptor) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrMalformedToken
	}
	plaintext, err := e.DecryptBytes(raw)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptBytes returns nonce ‖ tag ‖ ciphertext.
func (e *PHIEncryptor) EncryptBytes(data []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	// Seal appends ciphertext ‖ tag; the stored layout puts the tag first.
	sealed := e.aead.Seal(nil, nonce, data, nil)
	ctLen := len(sealed) - TagSize

	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed[ctLen:]...)
	out = append(out, sealed[:ctLen]...)
	return out, nil
}

// DecryptBytes reverses EncryptBytes and verifies the tag.
func (e *PHIEncryptor) DecryptBytes(data []byte) ([]byte, error) {
	if len(data) < NonceSize+TagSize {
		return nil, ErrMalformedToken
	}
	nonce := data[:NonceSize]
	tag := data[NonceSize : NonceSize+TagSize]
	ct := data[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("phi decrypt: %w", err)
	}
	return plaintext, nil
}
