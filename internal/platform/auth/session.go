package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	// ErrSessionInvalid covers malformed tokens and bad signatures.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionExpired is returned for well-signed tokens past exp.
	ErrSessionExpired = errors.New("session expired")
)

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role           string `json:"role"`
	OrganizationID string `json:"org,omitempty"`
}

// SessionConfig configures token issuing and the session cookie.
type SessionConfig struct {
	Secret       []byte
	TTL          time.Duration
	CookieName   string
	SecureCookie bool
	Issuer       string
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	cfg SessionConfig
	now func() time.Time
}

// NewSessions returns a Sessions using the wall clock.
func NewSessions(cfg SessionConfig) *Sessions {
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	return &Sessions{cfg: cfg, now: time.Now}
}

// WithClock overrides time.Now, for tests.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	s.now = now
	return s
}

// Issue signs a token for p and returns it with its expiry.
func (s *Sessions) Issue(p *Principal) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: p.Role,
	}
	if p.OrganizationID != nil {
		claims.OrganizationID = *p.OrganizationID
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, exp, nil
}

// Parse verifies signature and expiry.
func (s *Sessions) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}
	if claims.Subject == "" {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// ParseForUnlock verifies the signature and accepts tokens that expired no
// more than window ago.
func (s *Sessions) ParseForUnlock(token string, window time.Duration) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrSessionInvalid
	}
	if s.now().After(claims.ExpiresAt.Add(window)) {
		return nil, ErrSessionExpired
	}
	return claims, nil
}

func (s *Sessions) keyFunc(t *jwt.Token) (interface{}, error) {
	return s.cfg.Secret, nil
}

// TokenFromRequest reads the bearer header, then the session cookie.
func (s *Sessions) TokenFromRequest(c echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if ck, err := c.Cookie(s.cfg.CookieName); err == nil {
		return ck.Value
	}
	return ""
}

// SetCookie writes the session cookie.
func (s *Sessions) SetCookie(c echo.Context, token string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
