package hipaa

import (
	"github.com/rs/zerolog"
)

// Ciphertext is a sealed field value as stored in the database. Keeping it a
// distinct type means a row struct states which of its columns hold tokens.
type Ciphertext string

// FieldCipher is the codec applied at repository boundaries. Sealing is
// strict; opening degrades to the raw token so one corrupted value cannot
// break a list response.
type FieldCipher struct {
	enc    *PHIEncryptor
	logger zerolog.Logger
}

// NewFieldCipher wraps enc with warning logging on failed opens.
func NewFieldCipher(enc *PHIEncryptor, logger zerolog.Logger) *FieldCipher {
	return &FieldCipher{enc: enc, logger: logger}
}

// Seal encrypts an optional value. nil stays nil.
func (f *FieldCipher) Seal(v *string) (*Ciphertext, error) {
	if v == nil {
		return nil, nil
	}
	token, err := f.enc.Encrypt(*v)
	if err != nil {
		return nil, err
	}
	ct := Ciphertext(token)
	return &ct, nil
}

// SealString encrypts a required value.
func (f *FieldCipher) SealString(v string) (Ciphertext, error) {
	token, err := f.enc.Encrypt(v)
	if err != nil {
		return "", err
	}
	return Ciphertext(token), nil
}

// Open decrypts an optional value. A token that cannot be opened is logged
// and returned unchanged.
func (f *FieldCipher) Open(field string, ct *Ciphertext) *string {
	if ct == nil {
		return nil
	}
	s := f.OpenString(field, *ct)
	return &s
}

// OpenString decrypts a required value with the same fallback as Open.
func (f *FieldCipher) OpenString(field string, ct Ciphertext) string {
	plaintext, err := f.enc.Decrypt(string(ct))
	if err != nil {
		f.logger.Warn().Err(err).Str("field", field).Msg("field decrypt failed, returning raw value")
		return string(ct)
	}
	return plaintext
}
