package account

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicadmin/clinic/internal/platform/db"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

type repoPG struct {
	q      db.Querier
	cipher *hipaa.FieldCipher
	index  *hipaa.BlindIndexer
}

// NewRepo returns the Postgres Repository. Email and the TOTP secret are
// sealed; email is looked up through its blind index.
func NewRepo(q db.Querier, cipher *hipaa.FieldCipher, index *hipaa.BlindIndexer) Repository {
	return &repoPG{q: q, cipher: cipher, index: index}
}

const userCols = `id, email, display_name, password_hash, role, organization_id, verified, active,
	two_factor_secret, two_factor_enabled, backup_codes, login_history, captcha_failures, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.NewString()
	email, err := r.cipher.SealString(u.Email)
	if err != nil {
		return fmt.Errorf("user create: seal email: %w", err)
	}
	secret, err := r.cipher.Seal(u.TwoFactorSecret)
	if err != nil {
		return fmt.Errorf("user create: seal secret: %w", err)
	}
	history, err := json.Marshal(historyOrEmpty(u.LoginHistory))
	if err != nil {
		return err
	}

	err = r.q.QueryRow(ctx, `
		INSERT INTO app_user (id, email, email_index, display_name, password_hash, role, organization_id,
			verified, active, two_factor_secret, two_factor_enabled, backup_codes, login_history)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		u.ID, string(email), r.index.Email(u.Email), u.DisplayName, u.PasswordHash, u.Role, u.OrganizationID,
		u.Verified, u.Active, (*string)(secret), u.TwoFactorEnabled, codesOrEmpty(u.BackupCodes), history,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("user create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*User, error) {
	return r.get(ctx, `SELECT `+userCols+` FROM app_user WHERE id = $1`, id)
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, `SELECT `+userCols+` FROM app_user WHERE email_index = $1`, r.index.Email(email))
}

func (r *repoPG) get(ctx context.Context, query string, arg any) (*User, error) {
	u, err := r.scanUser(r.q.QueryRow(ctx, query, arg))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user get: %w", err)
	}
	return u, nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*User, int, error) {
	var where []string
	var args []any
	if f.OrganizationID != nil {
		args = append(args, *f.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if f.Role != "" {
		args = append(args, f.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM app_user`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("user count: %w", err)
	}
	rows, err := r.q.Query(ctx, `SELECT `+userCols+` FROM app_user`+clause+` ORDER BY created_at `+p.SQL(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("user list: %w", err)
	}
	defer rows.Close()

	out := []*User{}
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("user scan: %w", err)
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *repoPG) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("user %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, u *User) error {
	return r.exec(ctx, "update status",
		`UPDATE app_user SET active = $2, verified = $3, updated_at = NOW() WHERE id = $1`,
		u.ID, u.Active, u.Verified)
}

func (r *repoPG) UpdateTwoFactor(ctx context.Context, u *User) error {
	secret, err := r.cipher.Seal(u.TwoFactorSecret)
	if err != nil {
		return fmt.Errorf("user update 2fa: seal secret: %w", err)
	}
	return r.exec(ctx, "update 2fa",
		`UPDATE app_user SET two_factor_secret = $2, two_factor_enabled = $3, backup_codes = $4, updated_at = NOW()
		WHERE id = $1`,
		u.ID, (*string)(secret), u.TwoFactorEnabled, codesOrEmpty(u.BackupCodes))
}

func (r *repoPG) RecordLogin(ctx context.Context, u *User) error {
	history, err := json.Marshal(historyOrEmpty(u.LoginHistory))
	if err != nil {
		return err
	}
	return r.exec(ctx, "record login",
		`UPDATE app_user SET login_history = $2, captcha_failures = $3, backup_codes = $4, updated_at = NOW()
		WHERE id = $1`,
		u.ID, history, u.CaptchaFailures, codesOrEmpty(u.BackupCodes))
}

func (r *repoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	var email string
	var secret *string
	var history []byte
	if err := row.Scan(&u.ID, &email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.OrganizationID,
		&u.Verified, &u.Active, &secret, &u.TwoFactorEnabled, &u.BackupCodes, &history,
		&u.CaptchaFailures, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Email = r.cipher.OpenString("user.email", hipaa.Ciphertext(email))
	u.TwoFactorSecret = r.cipher.Open("user.two_factor_secret", (*hipaa.Ciphertext)(secret))
	if len(history) > 0 {
		if err := json.Unmarshal(history, &u.LoginHistory); err != nil {
			return nil, fmt.Errorf("decode login history: %w", err)
		}
	}
	return &u, nil
}

func codesOrEmpty(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}

func historyOrEmpty(h []LoginEvent) []LoginEvent {
	if h == nil {
		return []LoginEvent{}
	}
	return h
}
