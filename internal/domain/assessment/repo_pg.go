package assessment

import (
	"context"
	"fmt"

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

// NewRepo returns the Postgres Repository. Patient name, identifier, phone
// and notes are sealed on write.
func NewRepo(q db.Querier, cipher *hipaa.FieldCipher) Repository {
	return &repoPG{q: q, cipher: cipher}
}

const cols = `id, organization_id, patient_id, doctor_id, patient_name, patient_identifier, phone, notes,
	status, scheduled_at, created_by, created_at, updated_at`

type sealed struct {
	name       hipaa.Ciphertext
	identifier *hipaa.Ciphertext
	phone      *hipaa.Ciphertext
	notes      *hipaa.Ciphertext
}

func (r *repoPG) seal(req *Request) (*sealed, error) {
	var s sealed
	var err error
	if s.name, err = r.cipher.SealString(req.PatientName); err != nil {
		return nil, fmt.Errorf("seal patient name: %w", err)
	}
	if s.identifier, err = r.cipher.Seal(req.PatientIdentifier); err != nil {
		return nil, fmt.Errorf("seal patient identifier: %w", err)
	}
	if s.phone, err = r.cipher.Seal(req.Phone); err != nil {
		return nil, fmt.Errorf("seal phone: %w", err)
	}
	if s.notes, err = r.cipher.Seal(req.Notes); err != nil {
		return nil, fmt.Errorf("seal notes: %w", err)
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	req.ID = uuid.NewString()
	s, err := r.seal(req)
	if err != nil {
		return err
	}
	err = r.q.QueryRow(ctx, `
		INSERT INTO assessment_request (id, organization_id, patient_id, doctor_id, patient_name,
			patient_identifier, phone, notes, status, scheduled_at, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		req.ID, req.OrganizationID, req.PatientID, req.DoctorID, string(s.name),
		(*string)(s.identifier), (*string)(s.phone), (*string)(s.notes), string(req.Status), req.ScheduledAt, req.CreatedBy,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("assessment create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Request, error) {
	req, err := r.scan(r.q.QueryRow(ctx, `SELECT `+cols+` FROM assessment_request WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("assessment get: %w", err)
	}
	return req, nil
}

func (r *repoPG) Update(ctx context.Context, req *Request) error {
	s, err := r.seal(req)
	if err != nil {
		return err
	}
	err = r.q.QueryRow(ctx, `
		UPDATE assessment_request SET doctor_id = $2, patient_identifier = $3, phone = $4, notes = $5,
			status = $6, scheduled_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		req.ID, req.DoctorID, (*string)(s.identifier), (*string)(s.phone), (*string)(s.notes),
		string(req.Status), req.ScheduledAt,
	).Scan(&req.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("assessment update: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM assessment_request WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("assessment delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, p pagination.Params) ([]*Request, int, error) {
	w := &db.Where{}
	if f.OrganizationID != nil {
		w.Add("organization_id = $%d", *f.OrganizationID)
	}
	if f.DoctorID != "" {
		w.Add("doctor_id = $%d", f.DoctorID)
	}
	if f.PatientID != "" {
		w.Add("patient_id = $%d", f.PatientID)
	}
	if f.Status != "" {
		w.Add("status = $%d", string(f.Status))
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM assessment_request`+w.String(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("assessment count: %w", err)
	}
	rows, err := r.q.Query(ctx, `SELECT `+cols+` FROM assessment_request`+w.String()+
		` ORDER BY created_at DESC `+p.SQL(), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("assessment list: %w", err)
	}
	defer rows.Close()

	out := []*Request{}
	for rows.Next() {
		req, err := r.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("assessment scan: %w", err)
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

func (r *repoPG) scan(row pgx.Row) (*Request, error) {
	var req Request
	var name, status string
	var identifier, phone, notes *string
	if err := row.Scan(&req.ID, &req.OrganizationID, &req.PatientID, &req.DoctorID, &name, &identifier, &phone, &notes,
		&status, &req.ScheduledAt, &req.CreatedBy, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.Status = Status(status)
	req.PatientName = r.cipher.OpenString("assessment.patient_name", hipaa.Ciphertext(name))
	req.PatientIdentifier = r.cipher.Open("assessment.patient_identifier", (*hipaa.Ciphertext)(identifier))
	req.Phone = r.cipher.Open("assessment.phone", (*hipaa.Ciphertext)(phone))
	req.Notes = r.cipher.Open("assessment.notes", (*hipaa.Ciphertext)(notes))
	return &req, nil
}
