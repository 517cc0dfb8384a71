package auditlog

import (
	"context"
	"time"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
)

// StatsWindow is the span counted by Stats.Last24h.
const StatsWindow = 24 * time.Hour

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// scope returns the organization an actor is confined to, nil for
// SuperAdmins. ok is false for accounts that can see nothing.
func scope(actor *auth.Principal) (org *string, ok bool) {
	if actor.Role == auth.RoleSuperAdmin {
		return nil, true
	}
	if actor.OrganizationID == nil || *actor.OrganizationID == "" {
		return nil, false
	}
	return actor.OrganizationID, true
}

func (s *Service) List(ctx context.Context, actor *auth.Principal, q Query) ([]hipaa.AuditEntry, int, error) {
	org, ok := scope(actor)
	if !ok {
		return []hipaa.AuditEntry{}, 0, nil
	}
	q.OrganizationID = org
	return s.store.List(ctx, q)
}

func (s *Service) Get(ctx context.Context, actor *auth.Principal, id string) (*hipaa.AuditEntry, error) {
	org, ok := scope(actor)
	if !ok {
		return nil, ErrNotFound
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if org != nil && (e.OrganizationID == nil || *e.OrganizationID != *org) {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *Service) Stats(ctx context.Context, actor *auth.Principal) (*Stats, error) {
	org, ok := scope(actor)
	if !ok {
		return &Stats{TopActions: []Count{}, TopRecordTypes: []Count{}}, nil
	}
	return s.store.Stats(ctx, org, s.now().Add(-StatsWindow))
}
