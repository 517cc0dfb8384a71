package auditlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func entry(id, action, target string, at time.Time, org *string) hipaa.AuditEntry {
	return hipaa.AuditEntry{
		ID:             id,
		Action:         action,
		TargetType:     target,
		OrganizationID: org,
		SourceIP:       "10.0.0.1",
		UserAgent:      "curl/8.0",
		Outcome:        hipaa.OutcomeSuccess,
		StatusCode:     200,
		CreatedAt:      at,
	}
}

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	orgA, orgB := "org-a", "org-b"
	s := NewMemoryStore()
	ctx := context.Background()
	for _, e := range []hipaa.AuditEntry{
		entry("1", "PATIENT_CREATE", "Patient", base.Add(-48*time.Hour), &orgA),
		entry("2", "PATIENT_VIEW", "Patient", base.Add(-2*time.Hour), &orgA),
		entry("3", "LOGIN", "User", base.Add(-time.Hour), nil),
		entry("4", "DOCTOR_LIST", "Doctor", base, &orgB),
	} {
		require.NoError(t, s.RecordAccess(ctx, e))
	}
	return s
}

func ids(entries []hipaa.AuditEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

var firstPage = pagination.Params{Page: 1, Limit: 20}

func TestMemoryStore_DefaultSortNewestFirst(t *testing.T) {
	items, total, err := seeded(t).List(context.Background(), Query{Page: firstPage})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"4", "3", "2", "1"}, ids(items))
}

func TestMemoryStore_Filters(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	from := base.Add(-3 * time.Hour)

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"action substring", Query{Action: "patient"}, []string{"2", "1"}},
		{"record type substring", Query{RecordType: "doc"}, []string{"4"}},
		{"date range", Query{From: &from, To: &base}, []string{"4", "3", "2"}},
		{"free text over user agent", Query{Q: "CURL"}, []string{"4", "3", "2", "1"}},
		{"free text over action", Query{Q: "login"}, []string{"3"}},
		{"organization", Query{OrganizationID: ptr("org-a")}, []string{"2", "1"}},
		{"underscore is literal", Query{Action: "t_v"}, []string{"2"}},
		{"percent is literal", Query{Action: "%"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.q.Page = firstPage
			items, _, err := s.List(ctx, tc.q)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(items))
		})
	}
}

func TestMemoryStore_SortWhitelist(t *testing.T) {
	s := seeded(t)
	items, _, err := s.List(context.Background(), Query{SortBy: "action", SortOrder: "asc", Page: firstPage})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "1", "2"}, ids(items))

	// Unknown fields fall back to createdAt desc.
	items, _, err = s.List(context.Background(), Query{SortBy: "metadata; DROP", Page: firstPage})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2", "1"}, ids(items))
}

func TestMemoryStore_Stats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		for j := 0; j <= i; j++ {
			at := base.Add(-time.Duration(j) * time.Hour * 6)
			require.NoError(t, s.RecordAccess(ctx, entry(fmt.Sprintf("%d-%d", i, j), fmt.Sprintf("ACTION_%02d", i), "Patient", at, nil)))
		}
	}
	st, err := s.Stats(ctx, nil, base.Add(-StatsWindow))
	require.NoError(t, err)
	assert.Equal(t, 78, st.Total)
	require.Len(t, st.TopActions, TopN)
	assert.Equal(t, Count{Key: "ACTION_11", Count: 12}, st.TopActions[0])
	assert.Equal(t, []Count{{Key: "Patient", Count: 78}}, st.TopRecordTypes)
	// Offsets 0,6,12,18 and 24 hours fall inside the window.
	assert.Equal(t, 12+11+10+9+8, st.Last24h)
}

func TestMemoryStore_Get(t *testing.T) {
	s := seeded(t)
	e, err := s.Get(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "LOGIN", e.Action)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func ptr(s string) *string { return &s }
