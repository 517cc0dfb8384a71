package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinicadmin/clinic/internal/platform/db"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
)

type pgStore struct {
	q      db.Querier
	cipher *hipaa.FieldCipher
	index  *hipaa.BlindIndexer
}

// NewStore returns the Postgres ledger. The actor id is sealed, with a
// blind index beside it for lookups. The table is written with INSERT only.
func NewStore(q db.Querier, cipher *hipaa.FieldCipher, index *hipaa.BlindIndexer) Store {
	return &pgStore{q: q, cipher: cipher, index: index}
}

const cols = `id, actor_user_id, actor_role, actor_display_name, organization_id, action, target_type,
	target_id, source_ip, user_agent, outcome, status_code, duration_ms, metadata, created_at`

func (s *pgStore) RecordAccess(ctx context.Context, e hipaa.AuditEntry) error {
	actor, err := s.cipher.Seal(e.ActorUserID)
	if err != nil {
		return fmt.Errorf("seal audit actor: %w", err)
	}
	md, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO audit_log (id, actor_user_id, actor_index, actor_role, actor_display_name, organization_id,
			action, target_type, target_id, source_ip, user_agent, outcome, status_code, duration_ms, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		e.ID, (*string)(actor), s.index.Optional(e.ActorUserID, s.index.Value), e.ActorRole, e.ActorDisplayName,
		e.OrganizationID, e.Action, e.TargetType, e.TargetID, e.SourceIP, e.UserAgent, e.Outcome, e.StatusCode,
		e.DurationMs, md, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeContains builds a substring pattern that matches sub literally, the
// same as the memory store's containsFold.
func likeContains(sub string) string {
	return "%" + likeEscaper.Replace(sub) + "%"
}

func (s *pgStore) where(q Query) *db.Where {
	w := &db.Where{}
	if q.OrganizationID != nil {
		w.Add("organization_id = $%d", *q.OrganizationID)
	}
	if q.Action != "" {
		w.Add(`action ILIKE $%d ESCAPE '\'`, likeContains(q.Action))
	}
	if q.RecordType != "" {
		w.Add(`target_type ILIKE $%d ESCAPE '\'`, likeContains(q.RecordType))
	}
	if q.From != nil {
		w.Add("created_at >= $%d", *q.From)
	}
	if q.To != nil {
		w.Add("created_at <= $%d", *q.To)
	}
	if q.Q != "" {
		w.Add(`(action || ' ' || target_type || ' ' || source_ip || ' ' || user_agent) ILIKE $%d ESCAPE '\'`, likeContains(q.Q))
	}
	return w
}

func (s *pgStore) List(ctx context.Context, q Query) ([]hipaa.AuditEntry, int, error) {
	q.normalize()
	w := s.where(q)

	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`+w.String(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit count: %w", err)
	}

	order := fmt.Sprintf(" ORDER BY %s %s, id ", sortFields[q.SortBy], q.SortOrder)
	rows, err := s.q.Query(ctx, `SELECT `+cols+` FROM audit_log`+w.String()+order+q.Page.SQL(), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	out := []hipaa.AuditEntry{}
	for rows.Next() {
		e, err := s.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("audit scan: %w", err)
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

func (s *pgStore) Get(ctx context.Context, id string) (*hipaa.AuditEntry, error) {
	e, err := s.scan(s.q.QueryRow(ctx, `SELECT `+cols+` FROM audit_log WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("audit get: %w", err)
	}
	return e, nil
}

func (s *pgStore) Stats(ctx context.Context, orgID *string, since time.Time) (*Stats, error) {
	w := s.where(Query{OrganizationID: orgID})
	st := &Stats{}

	recent := db.Where{}
	if orgID != nil {
		recent.Add("organization_id = $%d", *orgID)
	}
	recent.Add("created_at >= $%d", since)

	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`+w.String(), w.Args()...).Scan(&st.Total)
	if err != nil {
		return nil, fmt.Errorf("audit stats total: %w", err)
	}
	err = s.q.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`+recent.String(), recent.Args()...).Scan(&st.Last24h)
	if err != nil {
		return nil, fmt.Errorf("audit stats recent: %w", err)
	}
	if st.TopActions, err = s.top(ctx, "action", w); err != nil {
		return nil, err
	}
	if st.TopRecordTypes, err = s.top(ctx, "target_type", w); err != nil {
		return nil, err
	}
	return st, nil
}

// top ranks one column. column is always a literal from Stats.
func (s *pgStore) top(ctx context.Context, column string, w *db.Where) ([]Count, error) {
	sql := fmt.Sprintf(`SELECT %[1]s, COUNT(*) AS n FROM audit_log%[2]s GROUP BY %[1]s ORDER BY n DESC, %[1]s LIMIT %[3]d`,
		column, w.String(), TopN)
	rows, err := s.q.Query(ctx, sql, w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("audit stats %s: %w", column, err)
	}
	defer rows.Close()

	out := []Count{}
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("audit stats %s scan: %w", column, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgStore) scan(row pgx.Row) (*hipaa.AuditEntry, error) {
	var e hipaa.AuditEntry
	var actor *string
	var md []byte
	if err := row.Scan(&e.ID, &actor, &e.ActorRole, &e.ActorDisplayName, &e.OrganizationID, &e.Action, &e.TargetType,
		&e.TargetID, &e.SourceIP, &e.UserAgent, &e.Outcome, &e.StatusCode, &e.DurationMs, &md, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ActorUserID = s.cipher.Open("audit.actor_user_id", (*hipaa.Ciphertext)(actor))
	if len(md) > 0 {
		if err := json.Unmarshal(md, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return &e, nil
}
