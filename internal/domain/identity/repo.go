package identity

import (
	"context"
	"errors"

	"github.com/clinicadmin/clinic/pkg/pagination"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrDoctorNotFound  = errors.New("doctor not found")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id string) error
	// List pages in storage order by creation time.
	List(ctx context.Context, f PatientFilter, p pagination.Params) ([]*Patient, int, error)
	// ListAll returns every match, for free-text filtering after decryption.
	ListAll(ctx context.Context, f PatientFilter) ([]*Patient, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id string) (*Doctor, error)
	GetByUserID(ctx context.Context, userID string) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f DoctorFilter, p pagination.Params) ([]*Doctor, int, error)
	ListAll(ctx context.Context, f DoctorFilter) ([]*Doctor, error)
}
