package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicadmin/clinic/internal/platform/auth"
)

func principal(role string, org *string) *auth.Principal {
	return &auth.Principal{ID: "u-1", Role: role, OrganizationID: org, Verified: true, Active: true}
}

func TestService_ScopesNonSuperAdmins(t *testing.T) {
	svc := NewService(seeded(t))
	ctx := context.Background()

	_, total, err := svc.List(ctx, principal(auth.RoleSuperAdmin, nil), Query{Page: firstPage})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	items, total, err := svc.List(ctx, principal(auth.RoleClinic, ptr("org-a")), Query{Page: firstPage})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"2", "1"}, ids(items))

	// A caller cannot widen the scope through the query.
	_, total, err = svc.List(ctx, principal(auth.RoleDoctor, ptr("org-b")), Query{OrganizationID: ptr("org-a"), Page: firstPage})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = svc.List(ctx, principal(auth.RoleClinic, nil), Query{Page: firstPage})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestService_GetHidesOtherOrganizations(t *testing.T) {
	svc := NewService(seeded(t))
	ctx := context.Background()

	_, err := svc.Get(ctx, principal(auth.RoleClinic, ptr("org-a")), "4")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, principal(auth.RoleClinic, ptr("org-a")), "3")
	assert.ErrorIs(t, err, ErrNotFound)

	e, err := svc.Get(ctx, principal(auth.RoleClinic, ptr("org-a")), "1")
	require.NoError(t, err)
	assert.Equal(t, "PATIENT_CREATE", e.Action)
}

func TestService_StatsWindow(t *testing.T) {
	svc := NewService(seeded(t))
	svc.now = func() time.Time { return base }

	st, err := svc.Stats(context.Background(), principal(auth.RoleClinic, ptr("org-a")))
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Last24h)
	assert.Equal(t, []Count{{Key: "Patient", Count: 2}}, st.TopRecordTypes)

	st, err = svc.Stats(context.Background(), principal(auth.RoleClinic, nil))
	require.NoError(t, err)
	assert.Zero(t, st.Total)
	assert.Empty(t, st.TopActions)
}
