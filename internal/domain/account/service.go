package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/hengadev/errsx"
	"github.com/rs/zerolog"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

var (
	// ErrForbidden is returned when the actor may not act on the target user.
	ErrForbidden = errors.New("not allowed for this user")
	// ErrSelfDeactivation stops users from locking themselves out.
	ErrSelfDeactivation = errors.New("cannot deactivate your own account")
)

// Config holds the login and two-factor settings.
type Config struct {
	TOTPIssuer   string
	UnlockWindow time.Duration
}

type Service struct {
	repo     Repository
	sessions *auth.Sessions
	captcha  *auth.Captcha
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, sessions *auth.Sessions, captcha *auth.Captcha, cfg Config, logger zerolog.Logger) *Service {
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = "ClinicAdmin"
	}
	if cfg.UnlockWindow <= 0 {
		cfg.UnlockWindow = 12 * time.Hour
	}
	return &Service{repo: repo, sessions: sessions, captcha: captcha, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock overrides time.Now, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// LoadPrincipal implements auth.PrincipalLoader.
func (s *Service) LoadPrincipal(ctx context.Context, userID string) (*auth.Principal, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u.Principal(), nil
}

func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

type CreateUserInput struct {
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	DisplayName    string  `json:"displayName"`
	Role           string  `json:"role"`
	OrganizationID *string `json:"organizationId"`
}

// CreateUser adds an account on behalf of actor. SuperAdmins may create any
// role; clinics may only add doctors to their own organization. A nil actor
// is the bootstrap path and may only create a SuperAdmin.
func (s *Service) CreateUser(ctx context.Context, actor *auth.Principal, in CreateUserInput) (*User, error) {
	switch {
	case actor == nil:
		if in.Role != auth.RoleSuperAdmin {
			return nil, ErrForbidden
		}
	case actor.Role == auth.RoleClinic:
		if in.Role != auth.RoleDoctor {
			return nil, ErrForbidden
		}
		in.OrganizationID = actor.OrganizationID
	case actor.Role != auth.RoleSuperAdmin:
		return nil, ErrForbidden
	}

	var errs errsx.Map
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		errs.Set("email", "must be a valid email address")
	}
	if len(in.Password) < auth.MinPasswordLength {
		errs.Set("password", "must be at least 10 characters")
	}
	if strings.TrimSpace(in.DisplayName) == "" {
		errs.Set("displayName", "is required")
	}
	if !auth.IsKnownRole(in.Role) {
		errs.Set("role", "must be one of SuperAdmin, Clinic, Doctor")
	} else if in.Role == auth.RoleSuperAdmin && in.OrganizationID != nil {
		errs.Set("organizationId", "must be empty for SuperAdmin")
	} else if in.Role != auth.RoleSuperAdmin && (in.OrganizationID == nil || *in.OrganizationID == "") {
		errs.Set("organizationId", "is required")
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:          email,
		DisplayName:    strings.TrimSpace(in.DisplayName),
		PasswordHash:   hash,
		Role:           in.Role,
		OrganizationID: in.OrganizationID,
		Verified:       true,
		Active:         true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// scope limits listing and lookups to the actor's organization unless the
// actor is a SuperAdmin.
func scope(actor *auth.Principal) *string {
	if actor.Role == auth.RoleSuperAdmin {
		return nil
	}
	if actor.OrganizationID == nil {
		empty := ""
		return &empty
	}
	return actor.OrganizationID
}

func (s *Service) ListUsers(ctx context.Context, actor *auth.Principal, role string, p pagination.Params) ([]*User, int, error) {
	return s.repo.List(ctx, ListFilter{OrganizationID: scope(actor), Role: role}, p)
}

// GetUser returns ErrNotFound for users outside the actor's organization.
func (s *Service) GetUser(ctx context.Context, actor *auth.Principal, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org := scope(actor); org != nil && (u.OrganizationID == nil || *u.OrganizationID != *org) {
		return nil, ErrNotFound
	}
	return u, nil
}

type StatusInput struct {
	Active   *bool `json:"active"`
	Verified *bool `json:"verified"`
}

// UpdateStatus toggles the active and verified flags. Clinics may only
// change doctors in their organization.
func (s *Service) UpdateStatus(ctx context.Context, actor *auth.Principal, id string, in StatusInput) (*User, error) {
	u, err := s.GetUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleSuperAdmin && u.Role != auth.RoleDoctor {
		return nil, ErrForbidden
	}
	if in.Active != nil {
		if !*in.Active && u.ID == actor.ID {
			return nil, ErrSelfDeactivation
		}
		u.Active = *in.Active
	}
	if in.Verified != nil {
		u.Verified = *in.Verified
	}
	if err := s.repo.UpdateStatus(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoginHistory returns the user's recorded logins, oldest first.
func (s *Service) LoginHistory(ctx context.Context, userID string) ([]LoginEvent, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.LoginHistory == nil {
		return []LoginEvent{}, nil
	}
	return u.LoginHistory, nil
}
