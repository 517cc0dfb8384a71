package organization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicadmin/clinic/internal/platform/db"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

type repoPG struct {
	q      db.Querier
	cipher *hipaa.FieldCipher
}

// NewRepo returns the Postgres Repository. The contact email is sealed
// with cipher on write and opened on read.
func NewRepo(q db.Querier, cipher *hipaa.FieldCipher) Repository {
	return &repoPG{q: q, cipher: cipher}
}

const orgCols = `id, name, contact_email, contract_start_date, contract_end_date,
	duration_months, grace_period_days, status, created_at, updated_at`

const historyCols = `id, organization_id, contract_start_date, contract_end_date,
	duration_months, grace_period_days, change, changed_by, created_at`

const renewalCols = `id, organization_id, requested_by, requested_months, note, status,
	decided_by, decided_at, decision_note, created_at`

func (r *repoPG) Create(ctx context.Context, o *Organization, created *HistoryEntry) error {
	o.ID = uuid.NewString()
	contact, err := r.cipher.Seal(o.ContactEmail)
	if err != nil {
		return fmt.Errorf("organization create: seal contact: %w", err)
	}

	return db.WithTx(ctx, r.q, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO organization (id, name, contact_email, contract_start_date, contract_end_date,
				duration_months, grace_period_days, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING created_at, updated_at`,
			o.ID, o.Name, (*string)(contact), o.ContractStartDate, o.ContractEndDate,
			o.DurationMonths, o.GracePeriodDays, o.Status,
		).Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("organization create: %w", err)
		}
		if created == nil {
			return nil
		}
		created.OrganizationID = o.ID
		return insertHistory(ctx, tx, created)
	})
}

func insertHistory(ctx context.Context, tx pgx.Tx, h *HistoryEntry) error {
	h.ID = uuid.NewString()
	err := tx.QueryRow(ctx, `
		INSERT INTO contract_history (id, organization_id, contract_start_date, contract_end_date,
			duration_months, grace_period_days, change, changed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		h.ID, h.OrganizationID, h.StartDate, h.EndDate, h.DurationMonths, h.GracePeriodDays,
		string(h.Change), h.ChangedBy,
	).Scan(&h.CreatedAt)
	if err != nil {
		return fmt.Errorf("append contract history: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Organization, error) {
	o, err := r.scanOrg(r.q.QueryRow(ctx, `SELECT `+orgCols+` FROM organization WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("organization get: %w", err)
	}
	return o, nil
}

func (r *repoPG) List(ctx context.Context, p pagination.Params) ([]*Organization, int, error) {
	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM organization`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("organization count: %w", err)
	}

	rows, err := r.q.Query(ctx, `SELECT `+orgCols+` FROM organization ORDER BY name `+p.SQL())
	if err != nil {
		return nil, 0, fmt.Errorf("organization list: %w", err)
	}
	defer rows.Close()

	out := []*Organization{}
	for rows.Next() {
		o, err := r.scanOrg(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("organization scan: %w", err)
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, o *Organization) error {
	contact, err := r.cipher.Seal(o.ContactEmail)
	if err != nil {
		return fmt.Errorf("organization update: seal contact: %w", err)
	}
	err = r.q.QueryRow(ctx, `
		UPDATE organization SET name = $2, status = $3, contact_email = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Name, o.Status, (*string)(contact),
	).Scan(&o.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("organization update: %w", err)
	}
	return nil
}

func (r *repoPG) ChangeContract(ctx context.Context, o *Organization, prior *HistoryEntry) error {
	return db.WithTx(ctx, r.q, func(tx pgx.Tx) error {
		return changeContract(ctx, tx, o, prior)
	})
}

func changeContract(ctx context.Context, tx pgx.Tx, o *Organization, prior *HistoryEntry) error {
	err := tx.QueryRow(ctx, `
		UPDATE organization SET contract_start_date = $2, contract_end_date = $3, duration_months = $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.ContractStartDate, o.ContractEndDate, o.DurationMonths,
	).Scan(&o.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("organization change contract: %w", err)
	}
	return insertHistory(ctx, tx, prior)
}

func (r *repoPG) History(ctx context.Context, orgID string) ([]*HistoryEntry, error) {
	rows, err := r.q.Query(ctx, `SELECT `+historyCols+` FROM contract_history
		WHERE organization_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("contract history: %w", err)
	}
	defer rows.Close()

	out := []*HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		var change string
		if err := rows.Scan(&h.ID, &h.OrganizationID, &h.StartDate, &h.EndDate, &h.DurationMonths,
			&h.GracePeriodDays, &change, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("contract history scan: %w", err)
		}
		h.Change = ContractChange(change)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateRenewal(ctx context.Context, req *RenewalRequest) error {
	req.ID = uuid.NewString()
	err := r.q.QueryRow(ctx, `
		INSERT INTO renewal_request (id, organization_id, requested_by, requested_months, note, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		req.ID, req.OrganizationID, req.RequestedBy, req.RequestedMonths, req.Note, string(req.Status),
	).Scan(&req.CreatedAt)
	if err != nil {
		return fmt.Errorf("renewal request create: %w", err)
	}
	return nil
}

func (r *repoPG) GetRenewal(ctx context.Context, orgID, id string) (*RenewalRequest, error) {
	req, err := scanRenewal(r.q.QueryRow(ctx, `SELECT `+renewalCols+` FROM renewal_request
		WHERE organization_id = $1 AND id = $2`, orgID, id))
	if db.IsNoRows(err) {
		return nil, ErrRenewalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("renewal request get: %w", err)
	}
	return req, nil
}

func (r *repoPG) ListRenewals(ctx context.Context, orgID string) ([]*RenewalRequest, error) {
	rows, err := r.q.Query(ctx, `SELECT `+renewalCols+` FROM renewal_request
		WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("renewal request list: %w", err)
	}
	defer rows.Close()

	out := []*RenewalRequest{}
	for rows.Next() {
		req, err := scanRenewal(rows)
		if err != nil {
			return nil, fmt.Errorf("renewal request scan: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *repoPG) DecideRenewal(ctx context.Context, req *RenewalRequest, o *Organization, prior *HistoryEntry) error {
	return db.WithTx(ctx, r.q, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE renewal_request SET status = $3, decided_by = $4, decided_at = $5, decision_note = $6
			WHERE organization_id = $1 AND id = $2 AND status = 'Pending'`,
			req.OrganizationID, req.ID, string(req.Status), req.DecidedBy, req.DecidedAt, req.DecisionNote,
		)
		if err != nil {
			return fmt.Errorf("renewal request decide: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyDecided
		}
		if o == nil {
			return nil
		}
		return changeContract(ctx, tx, o, prior)
	})
}

func (r *repoPG) scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	var contact *string
	if err := row.Scan(&o.ID, &o.Name, &contact, &o.ContractStartDate, &o.ContractEndDate,
		&o.DurationMonths, &o.GracePeriodDays, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.ContactEmail = r.cipher.Open("organization.contact_email", (*hipaa.Ciphertext)(contact))
	return &o, nil
}

func scanRenewal(row pgx.Row) (*RenewalRequest, error) {
	var req RenewalRequest
	var status string
	var decidedAt *time.Time
	if err := row.Scan(&req.ID, &req.OrganizationID, &req.RequestedBy, &req.RequestedMonths, &req.Note,
		&status, &req.DecidedBy, &decidedAt, &req.DecisionNote, &req.CreatedAt); err != nil {
		return nil, err
	}
	req.Status = RenewalStatus(status)
	req.DecidedAt = decidedAt
	return &req, nil
}
