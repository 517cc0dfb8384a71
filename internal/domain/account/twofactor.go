package account

import (
	"context"
	"errors"

	"github.com/clinicadmin/clinic/internal/platform/auth"
)

var (
	ErrTwoFactorEnabled    = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorNotSetUp   = errors.New("two-factor setup has not been started")
)

// SetupTwoFactor stores a fresh, not yet enabled secret and returns it with
// its otpauth URL.
func (s *Service) SetupTwoFactor(ctx context.Context, userID string) (*auth.TwoFactorEnrollment, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}
	enr, err := auth.GenerateTwoFactorSecret(s.cfg.TOTPIssuer, u.Email)
	if err != nil {
		return nil, err
	}
	u.TwoFactorSecret = &enr.Secret
	u.BackupCodes = nil
	if err := s.repo.UpdateTwoFactor(ctx, u); err != nil {
		return nil, err
	}
	return enr, nil
}

// EnableTwoFactor confirms the pending secret with a code and returns the
// plaintext backup codes. They are not retrievable afterwards.
func (s *Service) EnableTwoFactor(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}
	if u.TwoFactorSecret == nil {
		return nil, ErrTwoFactorNotSetUp
	}
	if !auth.VerifyTwoFactorToken(*u.TwoFactorSecret, code, s.now()) {
		return nil, ErrInvalidTwoFactor
	}
	codes, hashes, err := auth.GenerateBackupCodes(auth.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	u.TwoFactorEnabled = true
	u.BackupCodes = hashes
	if err := s.repo.UpdateTwoFactor(ctx, u); err != nil {
		return nil, err
	}
	return codes, nil
}

// DisableTwoFactor accepts a TOTP code or an unused backup code.
func (s *Service) DisableTwoFactor(ctx context.Context, userID, code string) error {
	u, err := s.enabledUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.verifySecondFactor(u, code) {
		return ErrInvalidTwoFactor
	}
	u.TwoFactorEnabled = false
	u.TwoFactorSecret = nil
	u.BackupCodes = nil
	return s.repo.UpdateTwoFactor(ctx, u)
}

// RegenerateBackupCodes replaces every backup code. It needs a TOTP code;
// a backup code cannot be used to mint new ones.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.enabledUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !auth.VerifyTwoFactorToken(*u.TwoFactorSecret, code, s.now()) {
		return nil, ErrInvalidTwoFactor
	}
	codes, hashes, err := auth.GenerateBackupCodes(auth.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	u.BackupCodes = hashes
	if err := s.repo.UpdateTwoFactor(ctx, u); err != nil {
		return nil, err
	}
	return codes, nil
}

func (s *Service) enabledUser(ctx context.Context, userID string) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == nil {
		return nil, ErrTwoFactorNotEnabled
	}
	return u, nil
}

func (s *Service) verifySecondFactor(u *User, code string) bool {
	if auth.VerifyTwoFactorToken(*u.TwoFactorSecret, code, s.now()) {
		return true
	}
	return auth.VerifyBackupCode(&u.BackupCodes, code)
}
