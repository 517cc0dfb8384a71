package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hengadev/errsx"

	"github.com/clinicadmin/clinic/internal/platform/auth"
)

// Login failure reasons, carried in LoginError.Err.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountUnverified  = errors.New("account is not verified")
	ErrAccountDeactivated = errors.New("account has been deactivated")
	ErrTwoFactorRequired  = errors.New("two-factor code required")
	ErrInvalidTwoFactor   = errors.New("invalid two-factor code")
	ErrCaptchaRequired    = errors.New("captcha required")
	ErrInvalidCaptcha     = errors.New("invalid captcha")
	ErrUnlockDenied       = errors.New("unlock requires a recent session for this account")
)

// ModeUnlock re-authenticates a locked screen with just the password.
const ModeUnlock = "unlock"

type LoginInput struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Mode             string `json:"mode"`
	Code             string `json:"code"`
	BackupCode       string `json:"backupCode"`
	CaptchaSessionID string `json:"captchaSessionId"`
	CaptchaAnswer    string `json:"captchaAnswer"`

	// Filled from the request, not the body.
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
	SessionToken string `json:"-"`
}

// LoginError is a rejected login. UserID is set once the password matched
// an account or the account was found.
type LoginError struct {
	Err          error
	UserID       string
	Challenge    *auth.CaptchaChallenge
	AttemptsLeft int
}

func (e *LoginError) Error() string { return e.Err.Error() }
func (e *LoginError) Unwrap() error { return e.Err }

type LoginResult struct {
	User      *User
	Token     string
	ExpiresAt time.Time
	Method    LoginMethod
}

// Login runs the password check and then exactly one second step: the
// unlock session check, a TOTP or backup code when two-factor is enabled,
// or the hidden captcha otherwise.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	var errs errsx.Map
	if strings.TrimSpace(in.Email) == "" {
		errs.Set("email", "is required")
	}
	if in.Password == "" {
		errs.Set("password", "is required")
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	u, err := s.repo.GetByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		auth.VerifyPassword("", in.Password)
		return nil, &LoginError{Err: ErrInvalidCredentials}
	}
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(u.PasswordHash, in.Password) {
		return nil, s.fail(ctx, u, in, MethodPassword, &LoginError{Err: ErrInvalidCredentials})
	}
	if !u.Verified {
		return nil, &LoginError{Err: ErrAccountUnverified, UserID: u.ID}
	}
	if !u.Active {
		return nil, &LoginError{Err: ErrAccountDeactivated, UserID: u.ID}
	}

	var method LoginMethod
	switch {
	case in.Mode == ModeUnlock:
		method = MethodUnlock
		claims, err := s.sessions.ParseForUnlock(in.SessionToken, s.cfg.UnlockWindow)
		if err != nil || claims.Subject != u.ID {
			return nil, s.fail(ctx, u, in, method, &LoginError{Err: ErrUnlockDenied})
		}
	case u.TwoFactorEnabled:
		method = MethodTwoFactor
		if lerr := s.checkTwoFactor(u, in); lerr != nil {
			if errors.Is(lerr.Err, ErrTwoFactorRequired) {
				lerr.UserID = u.ID
				return nil, lerr
			}
			return nil, s.fail(ctx, u, in, method, lerr)
		}
	default:
		method = MethodCaptcha
		lerr, err := s.checkCaptcha(ctx, u, in)
		if err != nil {
			return nil, err
		}
		if lerr != nil {
			if errors.Is(lerr.Err, ErrCaptchaRequired) {
				lerr.UserID = u.ID
				return nil, lerr
			}
			return nil, s.fail(ctx, u, in, method, lerr)
		}
		u.CaptchaFailures = 0
	}

	u.AppendLogin(s.event(in, method, true))
	if err := s.repo.RecordLogin(ctx, u); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	token, exp, err := s.sessions.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Token: token, ExpiresAt: exp, Method: method}, nil
}

func (s *Service) checkTwoFactor(u *User, in LoginInput) *LoginError {
	code, backup := strings.TrimSpace(in.Code), strings.TrimSpace(in.BackupCode)
	switch {
	case code == "" && backup == "":
		return &LoginError{Err: ErrTwoFactorRequired}
	case code != "":
		if u.TwoFactorSecret != nil && auth.VerifyTwoFactorToken(*u.TwoFactorSecret, code, s.now()) {
			return nil
		}
	default:
		if auth.VerifyBackupCode(&u.BackupCodes, backup) {
			return nil
		}
	}
	return &LoginError{Err: ErrInvalidTwoFactor}
}

func (s *Service) checkCaptcha(ctx context.Context, u *User, in LoginInput) (*LoginError, error) {
	if in.CaptchaSessionID == "" || strings.TrimSpace(in.CaptchaAnswer) == "" {
		ch, err := s.captcha.Generate(ctx)
		if err != nil {
			return nil, err
		}
		return &LoginError{Err: ErrCaptchaRequired, Challenge: ch}, nil
	}
	res, err := s.captcha.Verify(ctx, in.CaptchaSessionID, in.CaptchaAnswer)
	if err != nil {
		return nil, err
	}
	if res.Success {
		return nil, nil
	}

	u.CaptchaFailures++
	lerr := &LoginError{Err: ErrInvalidCaptcha, AttemptsLeft: res.AttemptsLeft}
	if res.AttemptsLeft == 0 {
		// The session is gone; hand out the next challenge.
		ch, err := s.captcha.Generate(ctx)
		if err != nil {
			return nil, err
		}
		lerr.Challenge = ch
	}
	return lerr, nil
}

// fail records an unsuccessful attempt on u and returns lerr. A history
// write failure is logged and does not change the response.
func (s *Service) fail(ctx context.Context, u *User, in LoginInput, method LoginMethod, lerr *LoginError) error {
	lerr.UserID = u.ID
	u.AppendLogin(s.event(in, method, false))
	if err := s.repo.RecordLogin(ctx, u); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID).Msg("record failed login")
	}
	return lerr
}

func (s *Service) event(in LoginInput, method LoginMethod, success bool) LoginEvent {
	return LoginEvent{
		At:        s.now().UTC(),
		Method:    method,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Success:   success,
	}
}
