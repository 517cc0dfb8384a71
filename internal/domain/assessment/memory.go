package assessment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicadmin/clinic/pkg/pagination"
)

// InMemoryRepo is a Repository for tests and local runs.
type InMemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*Request
	order []string
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{store: make(map[string]*Request)}
}

func copyRequest(r *Request) *Request {
	cp := *r
	if r.ScheduledAt != nil {
		t := *r.ScheduledAt
		cp.ScheduledAt = &t
	}
	return &cp
}

func (m *InMemoryRepo) Create(_ context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.NewString()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.store[r.ID] = copyRequest(r)
	m.order = append(m.order, r.ID)
	return nil
}

func (m *InMemoryRepo) GetByID(_ context.Context, id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRequest(r), nil
}

func (m *InMemoryRepo) Update(_ context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[r.ID]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	m.store[r.ID] = copyRequest(r)
	return nil
}

func (m *InMemoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *InMemoryRepo) List(_ context.Context, f Filter, p pagination.Params) ([]*Request, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Request{}
	for _, id := range m.order {
		r := m.store[id]
		if f.OrganizationID != nil && *f.OrganizationID != r.OrganizationID {
			continue
		}
		if f.DoctorID != "" && (r.DoctorID == nil || *r.DoctorID != f.DoctorID) {
			continue
		}
		if f.PatientID != "" && r.PatientID != f.PatientID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, copyRequest(r))
	}
	return pagination.Slice(out, p), len(out), nil
}
