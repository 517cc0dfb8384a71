package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicadmin/clinic/internal/platform/db"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

// -- Patients --

type patientRepoPG struct {
	q      db.Querier
	cipher *hipaa.FieldCipher
	index  *hipaa.BlindIndexer
}

// NewPatientRepo returns the Postgres PatientRepository. Name, email, phone
// and date of birth are sealed on write and opened on read.
func NewPatientRepo(q db.Querier, cipher *hipaa.FieldCipher, index *hipaa.BlindIndexer) PatientRepository {
	return &patientRepoPG{q: q, cipher: cipher, index: index}
}

const patientCols = `id, organization_id, name, email, phone, date_of_birth, gender, doctor_id,
	created_by, created_at, updated_at`

// patientRow is a Patient as stored.
type patientRow struct {
	name        hipaa.Ciphertext
	email       *hipaa.Ciphertext
	phone       *hipaa.Ciphertext
	dateOfBirth *hipaa.Ciphertext
	emailIndex  *string
	phoneIndex  *string
}

func (r *patientRepoPG) sealPatient(p *Patient) (*patientRow, error) {
	var row patientRow
	var err error
	if row.name, err = r.cipher.SealString(p.Name); err != nil {
		return nil, fmt.Errorf("seal patient name: %w", err)
	}
	if row.email, err = r.cipher.Seal(p.Email); err != nil {
		return nil, fmt.Errorf("seal patient email: %w", err)
	}
	if row.phone, err = r.cipher.Seal(p.Phone); err != nil {
		return nil, fmt.Errorf("seal patient phone: %w", err)
	}
	if row.dateOfBirth, err = r.cipher.Seal(p.DateOfBirth); err != nil {
		return nil, fmt.Errorf("seal patient date of birth: %w", err)
	}
	row.emailIndex = r.index.Optional(p.Email, r.index.Email)
	row.phoneIndex = r.index.Optional(p.Phone, r.index.Phone)
	return &row, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.NewString()
	row, err := r.sealPatient(p)
	if err != nil {
		return err
	}
	err = r.q.QueryRow(ctx, `
		INSERT INTO patient (id, organization_id, name, email, email_index, phone, phone_index,
			date_of_birth, gender, doctor_id, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		p.ID, p.OrganizationID, string(row.name), (*string)(row.email), row.emailIndex,
		(*string)(row.phone), row.phoneIndex, (*string)(row.dateOfBirth), p.Gender, p.DoctorID, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	p, err := r.scanPatient(r.q.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient get: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	row, err := r.sealPatient(p)
	if err != nil {
		return err
	}
	err = r.q.QueryRow(ctx, `
		UPDATE patient SET name = $2, email = $3, email_index = $4, phone = $5, phone_index = $6,
			date_of_birth = $7, gender = $8, doctor_id = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, string(row.name), (*string)(row.email), row.emailIndex, (*string)(row.phone), row.phoneIndex,
		(*string)(row.dateOfBirth), p.Gender, p.DoctorID,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrPatientNotFound
	}
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) filter(f PatientFilter) *db.Where {
	w := &db.Where{}
	if f.OrganizationID != nil {
		w.Add("organization_id = $%d", *f.OrganizationID)
	}
	if f.Email != "" {
		w.Add("email_index = $%d", r.index.Email(f.Email))
	}
	if f.Phone != "" {
		w.Add("phone_index = $%d", r.index.Phone(f.Phone))
	}
	if f.DoctorID != "" {
		w.Add("doctor_id = $%d", f.DoctorID)
	}
	return w
}

func (r *patientRepoPG) List(ctx context.Context, f PatientFilter, p pagination.Params) ([]*Patient, int, error) {
	w := r.filter(f)
	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM patient`+w.String(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}
	out, err := r.query(ctx, `SELECT `+patientCols+` FROM patient`+w.String()+` ORDER BY created_at `+p.SQL(), w.Args())
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *patientRepoPG) ListAll(ctx context.Context, f PatientFilter) ([]*Patient, error) {
	w := r.filter(f)
	return r.query(ctx, `SELECT `+patientCols+` FROM patient`+w.String()+` ORDER BY created_at`, w.Args())
}

func (r *patientRepoPG) query(ctx context.Context, sql string, args []any) ([]*Patient, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()

	out := []*Patient{}
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patient scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var name string
	var email, phone, dob *string
	if err := row.Scan(&p.ID, &p.OrganizationID, &name, &email, &phone, &dob, &p.Gender, &p.DoctorID,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Name = r.cipher.OpenString("patient.name", hipaa.Ciphertext(name))
	p.Email = r.cipher.Open("patient.email", (*hipaa.Ciphertext)(email))
	p.Phone = r.cipher.Open("patient.phone", (*hipaa.Ciphertext)(phone))
	p.DateOfBirth = r.cipher.Open("patient.date_of_birth", (*hipaa.Ciphertext)(dob))
	return &p, nil
}

// -- Doctors --

type doctorRepoPG struct {
	q      db.Querier
	cipher *hipaa.FieldCipher
	index  *hipaa.BlindIndexer
}

// NewDoctorRepo returns the Postgres DoctorRepository.
func NewDoctorRepo(q db.Querier, cipher *hipaa.FieldCipher, index *hipaa.BlindIndexer) DoctorRepository {
	return &doctorRepoPG{q: q, cipher: cipher, index: index}
}

const doctorCols = `id, organization_id, user_id, name, email, phone, specialty, active, created_at, updated_at`

func (r *doctorRepoPG) seal(d *Doctor) (name hipaa.Ciphertext, email, phone *hipaa.Ciphertext, err error) {
	if name, err = r.cipher.SealString(d.Name); err != nil {
		return "", nil, nil, fmt.Errorf("seal doctor name: %w", err)
	}
	if email, err = r.cipher.Seal(d.Email); err != nil {
		return "", nil, nil, fmt.Errorf("seal doctor email: %w", err)
	}
	if phone, err = r.cipher.Seal(d.Phone); err != nil {
		return "", nil, nil, fmt.Errorf("seal doctor phone: %w", err)
	}
	return name, email, phone, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.NewString()
	name, email, phone, err := r.seal(d)
	if err != nil {
		return err
	}
	err = r.q.QueryRow(ctx, `
		INSERT INTO doctor (id, organization_id, user_id, name, email, email_index, phone, specialty, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		d.ID, d.OrganizationID, d.UserID, string(name), (*string)(email), r.index.Optional(d.Email, r.index.Email),
		(*string)(phone), d.Specialty, d.Active,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("doctor create: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) get(ctx context.Context, sql string, arg any) (*Doctor, error) {
	d, err := r.scanDoctor(r.q.QueryRow(ctx, sql, arg))
	if db.IsNoRows(err) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("doctor get: %w", err)
	}
	return d, nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id string) (*Doctor, error) {
	return r.get(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id)
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID string) (*Doctor, error) {
	return r.get(ctx, `SELECT `+doctorCols+` FROM doctor WHERE user_id = $1`, userID)
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	name, email, phone, err := r.seal(d)
	if err != nil {
		return err
	}
	err = r.q.QueryRow(ctx, `
		UPDATE doctor SET user_id = $2, name = $3, email = $4, email_index = $5, phone = $6, specialty = $7,
			active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.UserID, string(name), (*string)(email), r.index.Optional(d.Email, r.index.Email), (*string)(phone),
		d.Specialty, d.Active,
	).Scan(&d.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrDoctorNotFound
	}
	if err != nil {
		return fmt.Errorf("doctor update: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("doctor delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) filter(f DoctorFilter) *db.Where {
	w := &db.Where{}
	if f.OrganizationID != nil {
		w.Add("organization_id = $%d", *f.OrganizationID)
	}
	if f.Email != "" {
		w.Add("email_index = $%d", r.index.Email(f.Email))
	}
	if f.Active != nil {
		w.Add("active = $%d", *f.Active)
	}
	return w
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, p pagination.Params) ([]*Doctor, int, error) {
	w := r.filter(f)
	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+w.String(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("doctor count: %w", err)
	}
	out, err := r.query(ctx, `SELECT `+doctorCols+` FROM doctor`+w.String()+` ORDER BY created_at `+p.SQL(), w.Args())
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *doctorRepoPG) ListAll(ctx context.Context, f DoctorFilter) ([]*Doctor, error) {
	w := r.filter(f)
	return r.query(ctx, `SELECT `+doctorCols+` FROM doctor`+w.String()+` ORDER BY created_at`, w.Args())
}

func (r *doctorRepoPG) query(ctx context.Context, sql string, args []any) ([]*Doctor, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("doctor list: %w", err)
	}
	defer rows.Close()

	out := []*Doctor{}
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("doctor scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var name string
	var email, phone *string
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.UserID, &name, &email, &phone, &d.Specialty, &d.Active,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Name = r.cipher.OpenString("doctor.name", hipaa.Ciphertext(name))
	d.Email = r.cipher.Open("doctor.email", (*hipaa.Ciphertext)(email))
	d.Phone = r.cipher.Open("doctor.phone", (*hipaa.Ciphertext)(phone))
	return &d, nil
}
