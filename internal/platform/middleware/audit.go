package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/internal/platform/hipaa"
)

const auditStateKey = "audit_state"

// auditState is the per-request scratch space shared by the global logger,
// a per-route logger and the handler.
type auditState struct {
	start      time.Time
	global     bool
	action     string
	targetType string
	override   string
	targetID   string
	actor      *auth.Principal
	metadata   map[string]any
}

// AuditConfig configures an Auditor.
type AuditConfig struct {
	Recorder   hipaa.AuditRecorder
	Classifier *Classifier
	// Cipher seals sensitive metadata values. Without it those values are
	// dropped.
	Cipher  *hipaa.FieldCipher
	Logger  zerolog.Logger
	Skipper func(echo.Context) bool
	Now     func() time.Time
}

// Auditor writes exactly one audit entry per request it wraps.
type Auditor struct {
	cfg AuditConfig
}

// NewAuditor returns an Auditor. Classifier defaults to one with no routes,
// so every request gets a METHOD_SEGMENT action.
func NewAuditor(cfg AuditConfig) *Auditor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewClassifier("", nil)
	}
	return &Auditor{cfg: cfg}
}

// Global audits every request under the group it is attached to, deriving
// action and target type from the classifier unless a per-route logger or
// the handler sets them.
func (a *Auditor) Global() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if a.cfg.Skipper != nil && a.cfg.Skipper(c) {
				return next(c)
			}
			st := &auditState{start: a.cfg.Now(), global: true}
			c.Set(auditStateKey, st)
			return a.run(c, next, st)
		}
	}
}

// Route audits a single route with a fixed action and target type. Under
// Global it only sets the classification; on its own it records the entry.
func (a *Auditor) Route(action, targetType string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if st := stateFrom(c); st != nil && st.global {
				st.action, st.targetType = action, targetType
				return next(c)
			}
			st := &auditState{start: a.cfg.Now(), action: action, targetType: targetType}
			c.Set(auditStateKey, st)
			return a.run(c, next, st)
		}
	}
}

func (a *Auditor) run(c echo.Context, next echo.HandlerFunc, st *auditState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.record(c, st, http.StatusInternalServerError)
			panic(r)
		}
	}()

	err = next(c)
	if err != nil {
		// Commit the error response now so the entry sees the final status.
		// echo's later call to the error handler is a no-op on a committed
		// response.
		c.Error(err)
	}
	a.record(c, st, c.Response().Status)
	return err
}

func (a *Auditor) record(c echo.Context, st *auditState, status int) {
	req := c.Request()

	action, targetType := st.action, st.targetType
	if action == "" {
		action, targetType = a.cfg.Classifier.Classify(req.Method, req.URL.Path)
	}
	if st.override != "" {
		action = st.override
	}

	entry := hipaa.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		TargetType: targetType,
		SourceIP:   clampLabel(c.RealIP()),
		UserAgent:  req.UserAgent(),
		StatusCode: status,
		Outcome:    hipaa.OutcomeForStatus(status),
		DurationMs: a.cfg.Now().Sub(st.start).Milliseconds(),
		CreatedAt:  a.cfg.Now().UTC(),
		Metadata:   a.metadata(c, st),
	}

	targetID := st.targetID
	if targetID == "" {
		targetID = c.Param("id")
	}
	if targetID != "" {
		entry.TargetID = &targetID
	}

	p := st.actor
	if p == nil {
		p = auth.PrincipalFromEcho(c)
	}
	if p != nil {
		id := p.ID
		entry.ActorUserID = &id
		entry.ActorRole = p.Role
		entry.ActorDisplayName = p.DisplayName
		entry.OrganizationID = p.OrganizationID
	} else {
		entry.ActorRole = hipaa.AnonymousRole
		entry.ActorDisplayName = hipaa.UnknownActor
	}

	// The request context ends with the response; the write must outlive it.
	ctx := context.WithoutCancel(req.Context())
	if err := a.cfg.Recorder.RecordAccess(ctx, entry); err != nil {
		a.cfg.Logger.Error().Err(err).
			Str("request_id", RequestIDFrom(c)).
			Str("action", entry.Action).
			Msg("failed to record audit entry")
	}

	a.cfg.Logger.Debug().
		Str("type", "audit").
		Str("request_id", RequestIDFrom(c)).
		Str("action", entry.Action).
		Str("target_type", entry.TargetType).
		Str("outcome", entry.Outcome).
		Int("status", status).
		Msg("audit")
}

func (a *Auditor) metadata(c echo.Context, st *auditState) map[string]any {
	req := c.Request()
	md := map[string]any{
		"method": req.Method,
		"path":   req.URL.Path,
	}
	if route := c.Path(); route != "" {
		md["route"] = route
	}
	if rid := RequestIDFrom(c); rid != "" {
		md["requestId"] = rid
	}

	if q := req.URL.Query(); len(q) > 0 {
		query := make(map[string]any, len(q))
		for k := range q {
			a.put(query, k, q.Get(k))
		}
		if len(query) > 0 {
			md["query"] = query
		}
	}

	if names := c.ParamNames(); len(names) > 0 {
		params := make(map[string]any, len(names))
		values := c.ParamValues()
		for i, n := range names {
			if i < len(values) {
				a.put(params, n, values[i])
			}
		}
		md["params"] = params
	}

	for k, v := range st.metadata {
		a.put(md, k, v)
	}
	return md
}

// put stores v under k after applying the sensitive-key rules.
func (a *Auditor) put(m map[string]any, k string, v any) {
	switch hipaa.ClassifyMetadataKey(k) {
	case hipaa.MetadataDrop:
		return
	case hipaa.MetadataSeal:
		if a.cfg.Cipher == nil {
			return
		}
		sealed, err := a.cfg.Cipher.SealString(fmt.Sprint(v))
		if err != nil {
			a.cfg.Logger.Error().Err(err).Str("key", k).Msg("seal audit metadata")
			return
		}
		m[k] = string(sealed)
	default:
		m[k] = v
	}
}

func stateFrom(c echo.Context) *auditState {
	st, _ := c.Get(auditStateKey).(*auditState)
	return st
}

// SetAuditAction replaces the action recorded for this request, e.g. to
// distinguish LOGIN_FAILED from LOGIN on the same route.
func SetAuditAction(c echo.Context, action string) {
	if st := stateFrom(c); st != nil {
		st.override = action
	}
}

// SetAuditTarget records the id of the record acted upon, for routes where
// it is not the :id path parameter (creates, nested resources).
func SetAuditTarget(c echo.Context, id string) {
	if st := stateFrom(c); st != nil {
		st.targetID = id
	}
}

// SetAuditActor names the actor for requests that authenticate during the
// handler, such as a successful login.
func SetAuditActor(c echo.Context, p *auth.Principal) {
	if st := stateFrom(c); st != nil {
		st.actor = p
	}
}

// AddAuditMetadata adds a key to the entry's metadata. Sensitive keys are
// sealed or dropped like query parameters.
func AddAuditMetadata(c echo.Context, key string, value any) {
	st := stateFrom(c)
	if st == nil {
		return
	}
	if st.metadata == nil {
		st.metadata = make(map[string]any)
	}
	st.metadata[key] = value
}
