package organization

import (
	"context"
	"errors"

	"github.com/clinicadmin/clinic/pkg/pagination"
)

var (
	ErrNotFound        = errors.New("organization not found")
	ErrRenewalNotFound = errors.New("renewal request not found")
	ErrAlreadyDecided  = errors.New("renewal request already decided")
)

// Repository persists organizations with their history and renewal
// requests. Contract changes and their history row are written together.
type Repository interface {
	Create(ctx context.Context, o *Organization, created *HistoryEntry) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context, p pagination.Params) ([]*Organization, int, error)
	Update(ctx context.Context, o *Organization) error
	// ChangeContract stores o's new window and appends prior.
	ChangeContract(ctx context.Context, o *Organization, prior *HistoryEntry) error
	History(ctx context.Context, orgID string) ([]*HistoryEntry, error)

	CreateRenewal(ctx context.Context, r *RenewalRequest) error
	GetRenewal(ctx context.Context, orgID, id string) (*RenewalRequest, error)
	ListRenewals(ctx context.Context, orgID string) ([]*RenewalRequest, error)
	// DecideRenewal moves r out of Pending, returning ErrAlreadyDecided if
	// another decision got there first. A non-nil o is a contract change
	// applied in the same transaction.
	DecideRenewal(ctx context.Context, r *RenewalRequest, o *Organization, prior *HistoryEntry) error
}
