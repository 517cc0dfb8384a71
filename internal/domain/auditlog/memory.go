package auditlog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

// MemoryStore keeps the ledger in process for dev and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []hipaa.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordAccess(_ context.Context, e hipaa.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func matchEntry(e *hipaa.AuditEntry, q Query) bool {
	if q.OrganizationID != nil && (e.OrganizationID == nil || *e.OrganizationID != *q.OrganizationID) {
		return false
	}
	if q.Action != "" && !containsFold(e.Action, q.Action) {
		return false
	}
	if q.RecordType != "" && !containsFold(e.TargetType, q.RecordType) {
		return false
	}
	if q.From != nil && e.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && e.CreatedAt.After(*q.To) {
		return false
	}
	if q.Q != "" && !containsFold(e.Action, q.Q) && !containsFold(e.TargetType, q.Q) &&
		!containsFold(e.SourceIP, q.Q) && !containsFold(e.UserAgent, q.Q) {
		return false
	}
	return true
}

func (s *MemoryStore) filter(q Query) []hipaa.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []hipaa.AuditEntry{}
	for i := range s.entries {
		if matchEntry(&s.entries[i], q) {
			out = append(out, s.entries[i])
		}
	}
	return out
}

func less(a, b *hipaa.AuditEntry, field string) bool {
	switch field {
	case "action":
		return a.Action < b.Action
	case "recordType":
		return a.TargetType < b.TargetType
	case "outcome":
		return a.Outcome < b.Outcome
	case "statusCode":
		return a.StatusCode < b.StatusCode
	case "durationMs":
		return a.DurationMs < b.DurationMs
	case "sourceIp":
		return a.SourceIP < b.SourceIP
	case "actorRole":
		return a.ActorRole < b.ActorRole
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func (s *MemoryStore) List(_ context.Context, q Query) ([]hipaa.AuditEntry, int, error) {
	q.normalize()
	out := s.filter(q)
	sort.SliceStable(out, func(i, j int) bool {
		if q.SortOrder == "asc" {
			return less(&out[i], &out[j], q.SortBy)
		}
		return less(&out[j], &out[i], q.SortBy)
	})
	return pagination.Slice(out, q.Page), len(out), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*hipaa.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			e := s.entries[i]
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Stats(_ context.Context, orgID *string, since time.Time) (*Stats, error) {
	entries := s.filter(Query{OrganizationID: orgID})
	actions := map[string]int{}
	types := map[string]int{}
	st := &Stats{Total: len(entries)}
	for i := range entries {
		actions[entries[i].Action]++
		types[entries[i].TargetType]++
		if !entries[i].CreatedAt.Before(since) {
			st.Last24h++
		}
	}
	st.TopActions = top(actions)
	st.TopRecordTypes = top(types)
	return st, nil
}

// top ranks counts descending, ties by key, and keeps the first TopN.
func top(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}
