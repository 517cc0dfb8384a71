package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyTwoFactorToken_DriftWindow(t *testing.T) {
	enroll, err := GenerateTwoFactorSecret("ClinicAdmin", "jane@example.com")
	require.NoError(t, err)
	assert.Contains(t, enroll.URL, "otpauth://totp/")

	now := time.Date(2026, 5, 1, 10, 0, 15, 0, time.UTC)
	code, err := totp.GenerateCodeCustom(enroll.Secret, now, totpOpts)
	require.NoError(t, err)

	assert.True(t, VerifyTwoFactorToken(enroll.Secret, code, now))
	assert.True(t, VerifyTwoFactorToken(enroll.Secret, code, now.Add(30*time.Second)), "next step")
	assert.True(t, VerifyTwoFactorToken(enroll.Secret, code, now.Add(-30*time.Second)), "previous step")
	assert.False(t, VerifyTwoFactorToken(enroll.Secret, code, now.Add(90*time.Second)), "outside window")
	assert.False(t, VerifyTwoFactorToken(enroll.Secret, "", now))
	assert.False(t, VerifyTwoFactorToken("", code, now))
}

func TestBackupCodes_SingleUse(t *testing.T) {
	codes, hashes, err := GenerateBackupCodes(BackupCodeCount)
	require.NoError(t, err)
	require.Len(t, codes, BackupCodeCount)
	require.Len(t, hashes, BackupCodeCount)
	for _, c := range codes {
		assert.Len(t, c, 8)
	}

	original := append([]string(nil), hashes...)
	stored := hashes

	assert.True(t, VerifyBackupCode(&stored, codes[3]))
	assert.Len(t, stored, BackupCodeCount-1)
	assert.NotContains(t, stored, HashBackupCode(codes[3]))

	assert.False(t, VerifyBackupCode(&stored, codes[3]), "replay must fail")
	assert.Len(t, stored, BackupCodeCount-1)

	assert.Equal(t, original, hashes, "caller's backing array must not be rewritten")
}

func TestBackupCodes_Normalization(t *testing.T) {
	stored := []string{HashBackupCode("12345678")}
	assert.True(t, VerifyBackupCode(&stored, "1234-5678"))
	assert.Empty(t, stored)
}

func TestBackupCodes_Rejects(t *testing.T) {
	stored := []string{HashBackupCode("12345678")}
	assert.False(t, VerifyBackupCode(&stored, "87654321"))
	assert.False(t, VerifyBackupCode(&stored, ""))
	assert.False(t, VerifyBackupCode(nil, "12345678"))
	assert.Len(t, stored, 1)
}
