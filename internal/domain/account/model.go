package account

import (
	"time"

	"github.com/clinicadmin/clinic/internal/platform/auth"
)

// MaxLoginHistory bounds the per-user login history; older entries are
// evicted first.
const MaxLoginHistory = 50

// User is an account that can sign in. Email and the TOTP secret are held
// in plaintext here and sealed by the repository.
type User struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	DisplayName      string       `json:"displayName"`
	PasswordHash     string       `json:"-"`
	Role             string       `json:"role"`
	OrganizationID   *string      `json:"organizationId,omitempty"`
	Verified         bool         `json:"verified"`
	Active           bool         `json:"active"`
	TwoFactorSecret  *string      `json:"-"`
	TwoFactorEnabled bool         `json:"twoFactorEnabled"`
	BackupCodes      []string     `json:"-"`
	LoginHistory     []LoginEvent `json:"-"`
	CaptchaFailures  int          `json:"-"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

type LoginMethod string

const (
	MethodPassword  LoginMethod = "password"
	MethodTwoFactor LoginMethod = "2fa"
	MethodCaptcha   LoginMethod = "captcha"
	MethodUnlock    LoginMethod = "unlock"
)

// LoginEvent is one login history entry.
type LoginEvent struct {
	At        time.Time   `json:"at"`
	Method    LoginMethod `json:"method"`
	IP        string      `json:"ip"`
	UserAgent string      `json:"userAgent"`
	Success   bool        `json:"success"`
}

// AppendLogin records ev, keeping only the newest MaxLoginHistory entries.
func (u *User) AppendLogin(ev LoginEvent) {
	u.LoginHistory = append(u.LoginHistory, ev)
	if n := len(u.LoginHistory); n > MaxLoginHistory {
		kept := make([]LoginEvent, MaxLoginHistory)
		copy(kept, u.LoginHistory[n-MaxLoginHistory:])
		u.LoginHistory = kept
	}
}

// Principal is the session view of u.
func (u *User) Principal() *auth.Principal {
	return &auth.Principal{
		ID:             u.ID,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		DisplayName:    u.DisplayName,
		Verified:       u.Verified,
		Active:         u.Active,
	}
}

func (u *User) clone() *User {
	out := *u
	if u.OrganizationID != nil {
		org := *u.OrganizationID
		out.OrganizationID = &org
	}
	if u.TwoFactorSecret != nil {
		secret := *u.TwoFactorSecret
		out.TwoFactorSecret = &secret
	}
	out.BackupCodes = append([]string(nil), u.BackupCodes...)
	out.LoginHistory = append([]LoginEvent(nil), u.LoginHistory...)
	return &out
}
