package hipaa

import (
	"context"
	"time"
)

// Audit outcomes, derived from the final response status.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

// Actor markers written when no user is authenticated.
const (
	AnonymousRole = "anonymous"
	UnknownActor  = "unknown"
)

// AuditEntry is one completed API request. Entries are written once and
// never updated. Metadata values for sensitive keys are already sealed
// when the entry is built.
type AuditEntry struct {
	ID               string         `json:"id"`
	ActorUserID      *string        `json:"actorUserId"`
	ActorRole        string         `json:"actorRoleAtTime"`
	ActorDisplayName string         `json:"actorDisplayName"`
	OrganizationID   *string        `json:"organizationId,omitempty"`
	Action           string         `json:"action"`
	TargetType       string         `json:"targetType"`
	TargetID         *string        `json:"targetId"`
	SourceIP         string         `json:"sourceIp"`
	UserAgent        string         `json:"userAgent"`
	Outcome          string         `json:"outcome"`
	StatusCode       int            `json:"statusCode"`
	DurationMs       int64          `json:"durationMs"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// OutcomeForStatus maps an HTTP status to SUCCESS or FAILURE.
func OutcomeForStatus(status int) string {
	if status >= 400 {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}
