package organization

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicadmin/clinic/pkg/pagination"
)

// InMemoryRepo is an in-memory Repository for tests and local runs.
type InMemoryRepo struct {
	mu       sync.RWMutex
	orgs     map[string]*Organization
	history  map[string][]*HistoryEntry
	renewals map[string]*RenewalRequest
	now      func() time.Time
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		orgs:     make(map[string]*Organization),
		history:  make(map[string][]*HistoryEntry),
		renewals: make(map[string]*RenewalRequest),
		now:      time.Now,
	}
}

func (r *InMemoryRepo) Create(_ context.Context, o *Organization, created *HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = r.now().UTC()
	o.UpdatedAt = o.CreatedAt
	stored := *o
	r.orgs[o.ID] = &stored
	if created != nil {
		created.OrganizationID = o.ID
		r.appendHistory(created)
	}
	return nil
}

func (r *InMemoryRepo) appendHistory(h *HistoryEntry) {
	h.ID = uuid.NewString()
	h.CreatedAt = r.now().UTC()
	stored := *h
	r.history[h.OrganizationID] = append(r.history[h.OrganizationID], &stored)
}

func (r *InMemoryRepo) GetByID(_ context.Context, id string) (*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *o
	return &out, nil
}

func (r *InMemoryRepo) List(_ context.Context, p pagination.Params) ([]*Organization, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Organization, 0, len(r.orgs))
	for _, o := range r.orgs {
		out := *o
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return pagination.Slice(all, p), len(all), nil
}

func (r *InMemoryRepo) Update(_ context.Context, o *Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orgs[o.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name, cur.Status, cur.ContactEmail = o.Name, o.Status, o.ContactEmail
	cur.UpdatedAt = r.now().UTC()
	o.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *InMemoryRepo) ChangeContract(_ context.Context, o *Organization, prior *HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changeContract(o, prior)
}

func (r *InMemoryRepo) changeContract(o *Organization, prior *HistoryEntry) error {
	cur, ok := r.orgs[o.ID]
	if !ok {
		return ErrNotFound
	}
	cur.ContractStartDate = o.ContractStartDate
	cur.ContractEndDate = o.ContractEndDate
	cur.DurationMonths = o.DurationMonths
	cur.UpdatedAt = r.now().UTC()
	o.UpdatedAt = cur.UpdatedAt
	r.appendHistory(prior)
	return nil
}

func (r *InMemoryRepo) History(_ context.Context, orgID string) ([]*HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*HistoryEntry, 0, len(r.history[orgID]))
	for _, h := range r.history[orgID] {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryRepo) CreateRenewal(_ context.Context, req *RenewalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[req.OrganizationID]; !ok {
		return ErrNotFound
	}
	req.ID = uuid.NewString()
	req.CreatedAt = r.now().UTC()
	stored := *req
	r.renewals[req.ID] = &stored
	return nil
}

func (r *InMemoryRepo) GetRenewal(_ context.Context, orgID, id string) (*RenewalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.renewals[id]
	if !ok || req.OrganizationID != orgID {
		return nil, ErrRenewalNotFound
	}
	out := *req
	return &out, nil
}

func (r *InMemoryRepo) ListRenewals(_ context.Context, orgID string) ([]*RenewalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*RenewalRequest{}
	for _, req := range r.renewals {
		if req.OrganizationID == orgID {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepo) DecideRenewal(_ context.Context, req *RenewalRequest, o *Organization, prior *HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.renewals[req.ID]
	if !ok || cur.OrganizationID != req.OrganizationID {
		return ErrRenewalNotFound
	}
	if cur.Status != RenewalPending {
		return ErrAlreadyDecided
	}
	if o != nil {
		if err := r.changeContract(o, prior); err != nil {
			return err
		}
	}
	cur.Status, cur.DecidedBy, cur.DecidedAt, cur.DecisionNote = req.Status, req.DecidedBy, req.DecidedAt, req.DecisionNote
	return nil
}
