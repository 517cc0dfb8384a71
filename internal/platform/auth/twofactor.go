package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// BackupCodeCount is the number of backup codes issued at a time.
	BackupCodeCount = 10
	backupCodeLen   = 8
)

// totpOpts accepts the current step and one step either side.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TwoFactorEnrollment is a fresh, not yet enabled TOTP secret.
type TwoFactorEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`
}

// GenerateTwoFactorSecret creates a TOTP secret for account.
func GenerateTwoFactorSecret(issuer, account string) (*TwoFactorEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return &TwoFactorEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// VerifyTwoFactorToken checks code against secret at time now, tolerating
// one step of clock drift in either direction.
func VerifyTwoFactorToken(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now, totpOpts)
	return err == nil && ok
}

// GenerateBackupCodes returns plaintext codes for the user and their hashes
// for storage.
func GenerateBackupCodes(n int) (codes []string, hashes []string, err error) {
	limit := big.NewInt(1)
	for i := 0; i < backupCodeLen; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	codes = make([]string, 0, n)
	hashes = make([]string, 0, n)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		code := fmt.Sprintf("%0*d", backupCodeLen, v)
		codes = append(codes, code)
		hashes = append(hashes, HashBackupCode(code))
	}
	return codes, hashes, nil
}

// HashBackupCode normalizes a code (spaces and dashes removed) and hashes it.
func HashBackupCode(code string) string {
	code = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code))
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerifyBackupCode checks code against the stored hashes and removes the
// matching hash, so each code verifies once.
func VerifyBackupCode(hashes *[]string, code string) bool {
	if hashes == nil || strings.TrimSpace(code) == "" {
		return false
	}
	want := []byte(HashBackupCode(code))
	match := -1
	for i, h := range *hashes {
		if subtle.ConstantTimeCompare([]byte(h), want) == 1 {
			match = i
		}
	}
	if match < 0 {
		return false
	}
	list := *hashes
	*hashes = append(list[:match:match], list[match+1:]...)
	return true
}
