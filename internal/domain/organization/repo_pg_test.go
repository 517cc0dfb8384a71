package organization

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicadmin/clinic/internal/platform/hipaa"
)

func testCipher(t *testing.T) *hipaa.FieldCipher {
	t.Helper()
	key := make([]byte, hipaa.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	enc, err := hipaa.NewPHIEncryptor(key)
	require.NoError(t, err)
	return hipaa.NewFieldCipher(enc, zerolog.Nop())
}

// captured records the argument it was matched against.
type captured struct{ v any }

func (c *captured) Match(v any) bool {
	c.v = v
	return true
}

var orgColumns = []string{"id", "name", "contact_email", "contract_start_date", "contract_end_date",
	"duration_months", "grace_period_days", "status", "created_at", "updated_at"}

func TestRepoPG_CreateSealsContact(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	cipher := testCipher(t)
	repo := NewRepo(mock, cipher)

	contact := &captured{}
	anyArg := pgxmock.AnyArg()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organization").
		WithArgs(anyArg, "Northside", contact, anyArg, anyArg, 12, 7, StatusActive).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery("INSERT INTO contract_history").
		WithArgs(anyArg, anyArg, anyArg, anyArg, 12, 7, string(ChangeCreated), "admin-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	email := "office@northside.example"
	o := &Organization{
		Name:              "Northside",
		ContactEmail:      &email,
		ContractStartDate: now,
		ContractEndDate:   now.AddDate(1, 0, 0),
		DurationMonths:    12,
		GracePeriodDays:   7,
		Status:            StatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), o, snapshot(o, ChangeCreated, "admin-1")))
	require.NoError(t, mock.ExpectationsWereMet())

	stored, ok := contact.v.(*string)
	require.True(t, ok, "contact column should be a *string, got %T", contact.v)
	require.NotNil(t, stored)
	assert.NotEqual(t, email, *stored)
	assert.Equal(t, email, cipher.OpenString("test", hipaa.Ciphertext(*stored)))
	assert.NotEmpty(t, o.ID)
}

func TestRepoPG_GetByIDOpensContact(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	cipher := testCipher(t)
	repo := NewRepo(mock, cipher)

	sealed, err := cipher.SealString("office@northside.example")
	require.NoError(t, err)
	contact := string(sealed)
	now := time.Now()
	mock.ExpectQuery("FROM organization WHERE id").
		WithArgs("org-1").
		WillReturnRows(pgxmock.NewRows(orgColumns).
			AddRow("org-1", "Northside", &contact, now, now.AddDate(1, 0, 0), 12, 7, StatusActive, now, now))

	o, err := repo.GetByID(context.Background(), "org-1")
	require.NoError(t, err)
	require.NotNil(t, o.ContactEmail)
	assert.Equal(t, "office@northside.example", *o.ContactEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepo(mock, testCipher(t))

	mock.ExpectQuery("FROM organization WHERE id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepoPG_DecideRenewalOnlyOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepo(mock, testCipher(t))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE renewal_request SET status").
		WithArgs("org-1", "req-1", string(RenewalRejected), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	by := "admin-1"
	at := time.Now()
	req := &RenewalRequest{ID: "req-1", OrganizationID: "org-1", Status: RenewalRejected, DecidedBy: &by, DecidedAt: &at}
	err = repo.DecideRenewal(context.Background(), req, nil, nil)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_ApproveChangesContractInSameTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepo(mock, testCipher(t))
	now := time.Now()
	anyArg := pgxmock.AnyArg()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE renewal_request SET status").
		WithArgs("org-1", "req-1", string(RenewalApproved), anyArg, anyArg, anyArg).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("UPDATE organization SET contract_start_date").
		WithArgs("org-1", anyArg, anyArg, 18).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO contract_history").
		WithArgs(anyArg, "org-1", anyArg, anyArg, 12, 7, string(ChangeRenewal), "admin-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	o := &Organization{ID: "org-1", ContractStartDate: now, ContractEndDate: now.AddDate(1, 0, 0), DurationMonths: 12, GracePeriodDays: 7}
	prior := snapshot(o, ChangeRenewal, "admin-1")
	o.ContractEndDate = o.ContractEndDate.AddDate(0, 6, 0)
	o.DurationMonths = 18

	by := "admin-1"
	req := &RenewalRequest{ID: "req-1", OrganizationID: "org-1", Status: RenewalApproved, DecidedBy: &by, DecidedAt: &now}
	require.NoError(t, repo.DecideRenewal(context.Background(), req, o, prior))
	require.NoError(t, mock.ExpectationsWereMet())
}
