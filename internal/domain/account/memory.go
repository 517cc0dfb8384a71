package account

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicadmin/clinic/pkg/pagination"
)

// InMemoryRepo is a Repository backed by a map, for tests and local runs.
type InMemoryRepo struct {
	mu    sync.RWMutex
	users map[string]*User
	now   func() time.Time
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{users: make(map[string]*User), now: time.Now}
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func (r *InMemoryRepo) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if normalizeEmail(existing.Email) == normalizeEmail(u.Email) {
			return ErrEmailTaken
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.now().UTC()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = u.clone()
	return nil
}

func (r *InMemoryRepo) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.clone(), nil
}

func (r *InMemoryRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := normalizeEmail(email)
	for _, u := range r.users {
		if normalizeEmail(u.Email) == want {
			return u.clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepo) List(_ context.Context, f ListFilter, p pagination.Params) ([]*User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*User
	for _, u := range r.users {
		if f.OrganizationID != nil && (u.OrganizationID == nil || *u.OrganizationID != *f.OrganizationID) {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		out = append(out, u.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Email < out[j].Email
	})
	return pagination.Slice(out, p), len(out), nil
}

func (r *InMemoryRepo) update(id string, fn func(cur *User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(cur)
	cur.UpdatedAt = r.now().UTC()
	return nil
}

func (r *InMemoryRepo) UpdateStatus(_ context.Context, u *User) error {
	return r.update(u.ID, func(cur *User) {
		cur.Active, cur.Verified = u.Active, u.Verified
	})
}

func (r *InMemoryRepo) UpdateTwoFactor(_ context.Context, u *User) error {
	src := u.clone()
	return r.update(u.ID, func(cur *User) {
		cur.TwoFactorSecret = src.TwoFactorSecret
		cur.TwoFactorEnabled = src.TwoFactorEnabled
		cur.BackupCodes = src.BackupCodes
	})
}

func (r *InMemoryRepo) RecordLogin(_ context.Context, u *User) error {
	src := u.clone()
	return r.update(u.ID, func(cur *User) {
		cur.LoginHistory = src.LoginHistory
		cur.CaptchaFailures = src.CaptchaFailures
		cur.BackupCodes = src.BackupCodes
	})
}
