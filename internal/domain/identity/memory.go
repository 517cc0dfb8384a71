package identity

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/clinicadmin/clinic/pkg/pagination"
)

func normEmail(v *string) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*v))
}

func normPhone(v *string) string {
	if v == nil {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, *v)
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func inOrg(org *string, id string) bool {
	return org == nil || *org == id
}

// InMemoryPatientRepo is a PatientRepository for tests and local runs.
type InMemoryPatientRepo struct {
	mu    sync.RWMutex
	store map[string]*Patient
	order []string
}

func NewInMemoryPatientRepo() *InMemoryPatientRepo {
	return &InMemoryPatientRepo{store: make(map[string]*Patient)}
}

func (r *InMemoryPatientRepo) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.store[p.ID] = &cp
	r.order = append(r.order, p.ID)
	return nil
}

func (r *InMemoryPatientRepo) GetByID(_ context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.store[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryPatientRepo) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[p.ID]; !ok {
		return ErrPatientNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	r.store[p.ID] = &cp
	return nil
}

func (r *InMemoryPatientRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[id]; !ok {
		return ErrPatientNotFound
	}
	delete(r.store, id)
	r.order = remove(r.order, id)
	return nil
}

func (r *InMemoryPatientRepo) ListAll(_ context.Context, f PatientFilter) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Patient{}
	for _, id := range r.order {
		p := r.store[id]
		if !inOrg(f.OrganizationID, p.OrganizationID) {
			continue
		}
		if f.Email != "" && normEmail(p.Email) != normEmail(&f.Email) {
			continue
		}
		if f.Phone != "" && normPhone(p.Phone) != normPhone(&f.Phone) {
			continue
		}
		if f.DoctorID != "" && (p.DoctorID == nil || *p.DoctorID != f.DoctorID) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryPatientRepo) List(ctx context.Context, f PatientFilter, p pagination.Params) ([]*Patient, int, error) {
	all, err := r.ListAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return pagination.Slice(all, p), len(all), nil
}

// InMemoryDoctorRepo is a DoctorRepository for tests and local runs.
type InMemoryDoctorRepo struct {
	mu    sync.RWMutex
	store map[string]*Doctor
	order []string
}

func NewInMemoryDoctorRepo() *InMemoryDoctorRepo {
	return &InMemoryDoctorRepo{store: make(map[string]*Doctor)}
}

func (r *InMemoryDoctorRepo) Create(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.ID = uuid.NewString()
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	r.store[d.ID] = &cp
	r.order = append(r.order, d.ID)
	return nil
}

func (r *InMemoryDoctorRepo) GetByID(_ context.Context, id string) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.store[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *InMemoryDoctorRepo) GetByUserID(_ context.Context, userID string) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.store {
		if d.UserID != nil && *d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *InMemoryDoctorRepo) Update(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[d.ID]; !ok {
		return ErrDoctorNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	r.store[d.ID] = &cp
	return nil
}

func (r *InMemoryDoctorRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[id]; !ok {
		return ErrDoctorNotFound
	}
	delete(r.store, id)
	r.order = remove(r.order, id)
	return nil
}

func (r *InMemoryDoctorRepo) ListAll(_ context.Context, f DoctorFilter) ([]*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Doctor{}
	for _, id := range r.order {
		d := r.store[id]
		if !inOrg(f.OrganizationID, d.OrganizationID) {
			continue
		}
		if f.Email != "" && normEmail(d.Email) != normEmail(&f.Email) {
			continue
		}
		if f.Active != nil && d.Active != *f.Active {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryDoctorRepo) List(ctx context.Context, f DoctorFilter, p pagination.Params) ([]*Doctor, int, error) {
	all, err := r.ListAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return pagination.Slice(all, p), len(all), nil
}
