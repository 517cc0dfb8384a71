package hipaa

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func generateTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func newTestEncryptor(t *testing.T) *PHIEncryptor {
	t.Helper()
	enc, err := NewPHIEncryptor(generateTestKey(t))
	if err != nil {
		t.Fatalf("create encryptor: %v", err)
	}
	return enc
}

func TestNewPHIEncryptor(t *testing.T) {
	t.Run("valid 32-byte key", func(t *testing.T) {
		enc, err := NewPHIEncryptor(generateTestKey(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if enc == nil {
			t.Fatal("expected non-nil encryptor")
		}
	})

	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewPHIEncryptor(make([]byte, n)); err == nil {
			t.Errorf("expected error for %d-byte key", n)
		}
	}
}

func TestDecodeKey(t *testing.T) {
	raw := generateTestKey(t)

	t.Run("hex", func(t *testing.T) {
		got, err := DecodeKey(hex.EncodeToString(raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Error("decoded hex key differs")
		}
	})

	t.Run("base64", func(t *testing.T) {
		got, err := DecodeKey(base64.StdEncoding.EncodeToString(raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Error("decoded base64 key differs")
		}
	})

	t.Run("short", func(t *testing.T) {
		if _, err := DecodeKey(base64.StdEncoding.EncodeToString(raw[:16])); err == nil {
			t.Fatal("expected error for 16-byte key")
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := DecodeKey("  "); err == nil {
			t.Fatal("expected error for empty key")
		}
	})
}

func TestEncryptDecrypt(t *testing.T) {
	enc := newTestEncryptor(t)

	cases := []string{
		"",
		"Jane Doe",
		"jane.doe@example.com",
		"+1 (555) 010-2233",
		"Zoë Ångström 安娜 🩺",
		"Follow-up after elevated blood pressure reading at intake.",
	}

	for _, plaintext := range cases {
		t.Run(plaintext, func(t *testing.T) {
			token, err := enc.Encrypt(plaintext)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}
			if plaintext != "" && token == plaintext {
				t.Fatal("token should differ from plaintext")
			}

			decrypted, err := enc.Decrypt(token)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			if decrypted != plaintext {
				t.Errorf("roundtrip failed: got %q, want %q", decrypted, plaintext)
			}
		})
	}
}

func TestTokenLayout(t *testing.T) {
	enc := newTestEncryptor(t)

	plaintext := "MRN-00012345"
	token, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not base64: %v", err)
	}
	if len(raw) != NonceSize+TagSize+len(plaintext) {
		t.Fatalf("raw length = %d, want %d", len(raw), NonceSize+TagSize+len(plaintext))
	}

	// Rebuild the ciphertext ‖ tag form GCM expects and open it directly.
	nonce := raw[:NonceSize]
	tag := raw[NonceSize : NonceSize+TagSize]
	ct := raw[NonceSize+TagSize:]
	opened, err := enc.aead.Open(nil, nonce, append(append([]byte{}, ct...), tag...), nil)
	if err != nil {
		t.Fatalf("open with nonce|tag|ct layout: %v", err)
	}
	if string(opened) != plaintext {
		t.Errorf("got %q, want %q", opened, plaintext)
	}
}

func TestEncryptProducesDifferentCiphertexts(t *testing.T) {
	enc := newTestEncryptor(t)

	plaintext := "Jane Smith"
	ct1, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt 1: %v", err)
	}
	ct2, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt 2: %v", err)
	}
	if ct1 == ct2 {
		t.Error("encrypting same plaintext twice should produce different tokens")
	}

	d1, _ := enc.Decrypt(ct1)
	d2, _ := enc.Decrypt(ct2)
	if d1 != plaintext || d2 != plaintext {
		t.Error("both tokens should decrypt to the original plaintext")
	}
}

func TestDecryptInvalidInput(t *testing.T) {
	enc := newTestEncryptor(t)

	t.Run("not base64", func(t *testing.T) {
		_, err := enc.Decrypt("not-valid-base64!!!")
		if !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("expected ErrMalformedToken, got %v", err)
		}
	})

	t.Run("too short", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString(make([]byte, NonceSize+TagSize-1))
		_, err := enc.Decrypt(short)
		if !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("expected ErrMalformedToken, got %v", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		token, err := enc.Encrypt("secret")
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		other := newTestEncryptor(t)
		if _, err := other.Decrypt(token); err == nil {
			t.Fatal("expected error when decrypting with wrong key")
		}
	})
}

func TestDecryptDetectsAnyFlippedByte(t *testing.T) {
	enc := newTestEncryptor(t)

	token, err := enc.Encrypt("sensitive")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(token)

	for i := range raw {
		tampered := append([]byte{}, raw...)
		tampered[i] ^= 0x01
		if _, err := enc.Decrypt(base64.StdEncoding.EncodeToString(tampered)); err == nil {
			t.Fatalf("flipping byte %d went undetected", i)
		}
	}
}
