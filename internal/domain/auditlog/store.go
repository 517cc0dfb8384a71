// Package auditlog persists audit entries and serves the read-only audit
// trail. Nothing here updates or deletes an entry.
package auditlog

import (
	"context"
	"errors"
	"time"

	"github.com/clinicadmin/clinic/internal/platform/hipaa"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

var ErrNotFound = errors.New("audit entry not found")

// Sortable fields, by their wire name.
var sortFields = map[string]string{
	"createdAt":  "created_at",
	"action":     "action",
	"recordType": "target_type",
	"outcome":    "outcome",
	"statusCode": "status_code",
	"durationMs": "duration_ms",
	"sourceIp":   "source_ip",
	"actorRole":  "actor_role",
}

// Query filters the audit trail. Action and RecordType match substrings;
// Q matches action, record type, source IP and user agent.
type Query struct {
	OrganizationID *string
	Action         string
	RecordType     string
	Q              string
	From           *time.Time
	To             *time.Time
	SortBy         string
	SortOrder      string
	Page           pagination.Params
}

// normalize applies the default sort and rejects unknown sort fields by
// falling back to createdAt.
func (q *Query) normalize() {
	if _, ok := sortFields[q.SortBy]; !ok {
		q.SortBy = "createdAt"
	}
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
}

type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Stats struct {
	Total          int     `json:"total"`
	TopActions     []Count `json:"topActions"`
	TopRecordTypes []Count `json:"topRecordTypes"`
	Last24h        int     `json:"last24h"`
}

// TopN is the length of the ranked lists in Stats.
const TopN = 10

// Store is the audit ledger.
type Store interface {
	hipaa.AuditRecorder
	List(ctx context.Context, q Query) ([]hipaa.AuditEntry, int, error)
	Get(ctx context.Context, id string) (*hipaa.AuditEntry, error)
	Stats(ctx context.Context, orgID *string, since time.Time) (*Stats, error)
}
