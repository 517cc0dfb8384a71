package organization

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/hengadev/errsx"

	"github.com/clinicadmin/clinic/internal/platform/contract"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

const (
	DefaultGracePeriodDays = 7
	MaxContractMonths      = 120
	MaxRenewalMonths       = 60
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides time.Now, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	Name              string     `json:"name"`
	ContactEmail      *string    `json:"contactEmail"`
	ContractStartDate *time.Time `json:"contractStartDate"`
	DurationMonths    int        `json:"durationMonths"`
	GracePeriodDays   *int       `json:"gracePeriodDays"`
}

// Create opens an organization with a contract running DurationMonths from
// the start date (today when omitted).
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (*Organization, error) {
	var errs errsx.Map
	name := strings.TrimSpace(in.Name)
	if name == "" {
		errs.Set("name", "is required")
	}
	if in.DurationMonths < 1 || in.DurationMonths > MaxContractMonths {
		errs.Set("durationMonths", fmt.Sprintf("must be between 1 and %d", MaxContractMonths))
	}
	grace := DefaultGracePeriodDays
	if in.GracePeriodDays != nil {
		grace = *in.GracePeriodDays
		if grace < 0 || grace > 90 {
			errs.Set("gracePeriodDays", "must be between 0 and 90")
		}
	}
	validateEmail(&errs, "contactEmail", in.ContactEmail)
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	start := s.now().UTC()
	if in.ContractStartDate != nil {
		start = in.ContractStartDate.UTC()
	}
	o := &Organization{
		Name:              name,
		ContactEmail:      in.ContactEmail,
		ContractStartDate: start,
		ContractEndDate:   contract.AddMonths(start, in.DurationMonths),
		DurationMonths:    in.DurationMonths,
		GracePeriodDays:   grace,
		Status:            StatusActive,
	}
	if err := s.repo.Create(ctx, o, snapshot(o, ChangeCreated, actorID)); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Organization, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, p pagination.Params) ([]*Organization, int, error) {
	return s.repo.List(ctx, p)
}

type UpdateInput struct {
	Name         *string `json:"name"`
	Status       *string `json:"status"`
	ContactEmail *string `json:"contactEmail"`
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Organization, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var errs errsx.Map
	if in.Name != nil {
		if n := strings.TrimSpace(*in.Name); n == "" {
			errs.Set("name", "must not be empty")
		} else {
			o.Name = n
		}
	}
	if in.Status != nil {
		switch *in.Status {
		case StatusActive, StatusSuspended:
			o.Status = *in.Status
		default:
			errs.Set("status", "must be active or suspended")
		}
	}
	if in.ContactEmail != nil {
		validateEmail(&errs, "contactEmail", in.ContactEmail)
		o.ContactEmail = in.ContactEmail
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Extend pushes the contract end out by months.
func (s *Service) Extend(ctx context.Context, actorID, id string, months int) (*Organization, error) {
	if err := validateMonths("months", months, MaxContractMonths); err != nil {
		return nil, err
	}
	return s.change(ctx, actorID, id, ChangeExtension, func(o *Organization) error {
		o.ContractEndDate = contract.AddMonths(o.ContractEndDate, months)
		o.DurationMonths += months
		return nil
	})
}

// Reduce pulls the contract end in by months. The end may not move before
// the start.
func (s *Service) Reduce(ctx context.Context, actorID, id string, months int) (*Organization, error) {
	if err := validateMonths("months", months, MaxContractMonths); err != nil {
		return nil, err
	}
	return s.change(ctx, actorID, id, ChangeReduction, func(o *Organization) error {
		end := contract.AddMonths(o.ContractEndDate, -months)
		if end.Before(o.ContractStartDate) {
			var errs errsx.Map
			errs.Set("months", "would end the contract before it starts")
			return errs
		}
		o.ContractEndDate = end
		o.DurationMonths -= months
		if o.DurationMonths < 0 {
			o.DurationMonths = 0
		}
		return nil
	})
}

type RenewInput struct {
	DurationMonths int        `json:"durationMonths"`
	StartDate      *time.Time `json:"startDate"`
}

// Renew replaces the window with a fresh one starting at StartDate, or now.
func (s *Service) Renew(ctx context.Context, actorID, id string, in RenewInput) (*Organization, error) {
	if err := validateMonths("durationMonths", in.DurationMonths, MaxContractMonths); err != nil {
		return nil, err
	}
	start := s.now().UTC()
	if in.StartDate != nil {
		start = in.StartDate.UTC()
	}
	return s.change(ctx, actorID, id, ChangeRenewal, func(o *Organization) error {
		renewWindow(o, start, in.DurationMonths)
		return nil
	})
}

func renewWindow(o *Organization, start time.Time, months int) {
	o.ContractStartDate = start
	o.ContractEndDate = contract.AddMonths(start, months)
	o.DurationMonths = months
}

func (s *Service) change(ctx context.Context, actorID, id string, kind ContractChange, apply func(*Organization) error) (*Organization, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prior := snapshot(o, kind, actorID)
	if err := apply(o); err != nil {
		return nil, err
	}
	if err := s.repo.ChangeContract(ctx, o, prior); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) History(ctx context.Context, id string) ([]*HistoryEntry, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// ContractStatus reports the organization's contract as of now.
func (s *Service) ContractStatus(ctx context.Context, id string) (*Organization, contract.Status, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, contract.Status{}, err
	}
	return o, o.Contract().StatusAt(s.now()), nil
}

// ContractForOrganization implements contract.Lookup.
func (s *Service) ContractForOrganization(ctx context.Context, orgID string) (*contract.Contract, error) {
	o, err := s.repo.GetByID(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return nil, contract.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o.Contract(), nil
}

type RenewalInput struct {
	RequestedMonths int    `json:"requestedMonths"`
	Note            string `json:"note"`
}

// RequestRenewal files a renewal request for orgID. Expired organizations
// may still file one.
func (s *Service) RequestRenewal(ctx context.Context, actorID, orgID string, in RenewalInput) (*RenewalRequest, error) {
	var errs errsx.Map
	if in.RequestedMonths < 1 || in.RequestedMonths > MaxRenewalMonths {
		errs.Set("requestedMonths", fmt.Sprintf("must be between 1 and %d", MaxRenewalMonths))
	}
	if len(in.Note) > 2000 {
		errs.Set("note", "must be at most 2000 characters")
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	req := &RenewalRequest{
		OrganizationID:  orgID,
		RequestedBy:     actorID,
		RequestedMonths: in.RequestedMonths,
		Note:            strings.TrimSpace(in.Note),
		Status:          RenewalPending,
	}
	if err := s.repo.CreateRenewal(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) ListRenewals(ctx context.Context, orgID string) ([]*RenewalRequest, error) {
	if _, err := s.repo.GetByID(ctx, orgID); err != nil {
		return nil, err
	}
	return s.repo.ListRenewals(ctx, orgID)
}

// ApproveRenewal grants the requested months. A contract that is still
// running is extended from its end; a lapsed one restarts today.
func (s *Service) ApproveRenewal(ctx context.Context, actorID, orgID, reqID, note string) (*RenewalRequest, *Organization, error) {
	req, err := s.pendingRenewal(ctx, orgID, reqID)
	if err != nil {
		return nil, nil, err
	}
	o, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	prior := snapshot(o, ChangeRenewal, actorID)
	if o.ContractEndDate.After(now) {
		o.ContractEndDate = contract.AddMonths(o.ContractEndDate, req.RequestedMonths)
		o.DurationMonths += req.RequestedMonths
	} else {
		renewWindow(o, now, req.RequestedMonths)
	}

	s.decide(req, RenewalApproved, actorID, note, now)
	if err := s.repo.DecideRenewal(ctx, req, o, prior); err != nil {
		return nil, nil, err
	}
	return req, o, nil
}

func (s *Service) RejectRenewal(ctx context.Context, actorID, orgID, reqID, note string) (*RenewalRequest, error) {
	req, err := s.pendingRenewal(ctx, orgID, reqID)
	if err != nil {
		return nil, err
	}
	s.decide(req, RenewalRejected, actorID, note, s.now().UTC())
	if err := s.repo.DecideRenewal(ctx, req, nil, nil); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) pendingRenewal(ctx context.Context, orgID, reqID string) (*RenewalRequest, error) {
	req, err := s.repo.GetRenewal(ctx, orgID, reqID)
	if err != nil {
		return nil, err
	}
	if req.Status != RenewalPending {
		return nil, ErrAlreadyDecided
	}
	return req, nil
}

func (s *Service) decide(req *RenewalRequest, status RenewalStatus, actorID, note string, at time.Time) {
	req.Status = status
	req.DecidedBy = &actorID
	req.DecidedAt = &at
	if note = strings.TrimSpace(note); note != "" {
		req.DecisionNote = &note
	}
}

func validateMonths(field string, months, limit int) error {
	if months < 1 || months > limit {
		var errs errsx.Map
		errs.Set(field, fmt.Sprintf("must be between 1 and %d", limit))
		return errs
	}
	return nil
}

func validateEmail(errs *errsx.Map, field string, v *string) {
	if v == nil || *v == "" {
		return
	}
	if _, err := mail.ParseAddress(*v); err != nil {
		errs.Set(field, "must be a valid email address")
	}
}
