package assessment

import (
	"context"
	"errors"

	"github.com/clinicadmin/clinic/pkg/pagination"
)

var ErrNotFound = errors.New("assessment request not found")

type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	Update(ctx context.Context, r *Request) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter, p pagination.Params) ([]*Request, int, error)
}
