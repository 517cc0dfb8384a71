package account

import (
	"context"
	"errors"

	"github.com/clinicadmin/clinic/pkg/pagination"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	OrganizationID *string
	Role           string
}

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f ListFilter, p pagination.Params) ([]*User, int, error)
	UpdateStatus(ctx context.Context, u *User) error
	// UpdateTwoFactor stores the secret, enabled flag and backup code hashes.
	UpdateTwoFactor(ctx context.Context, u *User) error
	// RecordLogin stores login history, captcha failures and backup codes
	// after a login attempt.
	RecordLogin(ctx context.Context, u *User) error
}
