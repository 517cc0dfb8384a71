package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hengadev/errsx"

	"github.com/clinicadmin/clinic/internal/domain/identity"
	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

var (
	ErrNoOrganization    = errors.New("no organization linked to this account")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

type Service struct {
	repo     Repository
	patients identity.PatientRepository
	doctors  identity.DoctorRepository
	now      func() time.Time
}

func NewService(repo Repository, patients identity.PatientRepository, doctors identity.DoctorRepository) *Service {
	return &Service{repo: repo, patients: patients, doctors: doctors, now: time.Now}
}

type CreateInput struct {
	PatientID         string     `json:"patientId"`
	DoctorID          *string    `json:"doctorId"`
	PatientIdentifier *string    `json:"patientIdentifier"`
	Phone             *string    `json:"phone"`
	Notes             *string    `json:"notes"`
	ScheduledAt       *time.Time `json:"scheduledAt"`
}

type UpdateInput struct {
	DoctorID          *string `json:"doctorId"`
	PatientIdentifier *string `json:"patientIdentifier"`
	Phone             *string `json:"phone"`
	Notes             *string `json:"notes"`
}

type StatusInput struct {
	Status      Status     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// scope resolves the filter an actor may see. Doctors see only requests
// assigned to their own profile; ok is false when they have none.
func (s *Service) scope(ctx context.Context, actor *auth.Principal) (f Filter, ok bool, err error) {
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return f, true, nil
	case auth.RoleDoctor:
		d, err := s.doctors.GetByUserID(ctx, actor.ID)
		if errors.Is(err, identity.ErrDoctorNotFound) {
			return f, false, nil
		}
		if err != nil {
			return f, false, err
		}
		f.OrganizationID = &d.OrganizationID
		f.DoctorID = d.ID
		return f, true, nil
	}
	if actor.OrganizationID == nil {
		return f, false, nil
	}
	f.OrganizationID = actor.OrganizationID
	return f, true, nil
}

func (f Filter) allows(r *Request) bool {
	if f.OrganizationID != nil && *f.OrganizationID != r.OrganizationID {
		return false
	}
	if f.DoctorID != "" && (r.DoctorID == nil || *r.DoctorID != f.DoctorID) {
		return false
	}
	return true
}

func (s *Service) checkDoctor(ctx context.Context, orgID string, id *string, errs *errsx.Map) {
	if id == nil {
		return
	}
	d, err := s.doctors.GetByID(ctx, *id)
	if err != nil || d.OrganizationID != orgID {
		errs.Set("doctorId", "does not reference a doctor in this organization")
		return
	}
	if !d.Active {
		errs.Set("doctorId", "doctor is not active")
	}
}

// Create opens a Pending request, or a Scheduled one when scheduledAt is
// given. The patient's name and phone are copied from the patient record
// unless a phone is supplied.
func (s *Service) Create(ctx context.Context, actor *auth.Principal, in CreateInput) (*Request, error) {
	if actor.OrganizationID == nil || *actor.OrganizationID == "" {
		return nil, ErrNoOrganization
	}
	orgID := *actor.OrganizationID

	var errs errsx.Map
	var patient *identity.Patient
	if strings.TrimSpace(in.PatientID) == "" {
		errs.Set("patientId", "is required")
	} else if p, err := s.patients.GetByID(ctx, strings.TrimSpace(in.PatientID)); err != nil || p.OrganizationID != orgID {
		errs.Set("patientId", "does not reference a patient in this organization")
	} else {
		patient = p
	}
	doctorID := trimmed(in.DoctorID)
	s.checkDoctor(ctx, orgID, doctorID, &errs)
	if in.ScheduledAt != nil && in.ScheduledAt.Before(s.now()) {
		errs.Set("scheduledAt", "must not be in the past")
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	req := &Request{
		OrganizationID:    orgID,
		PatientID:         patient.ID,
		DoctorID:          doctorID,
		PatientName:       patient.Name,
		PatientIdentifier: trimmed(in.PatientIdentifier),
		Phone:             trimmed(in.Phone),
		Notes:             trimmed(in.Notes),
		Status:            StatusPending,
		CreatedBy:         actor.ID,
	}
	if req.Phone == nil {
		req.Phone = patient.Phone
	}
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		req.ScheduledAt = &at
		req.Status = StatusScheduled
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Get hides requests outside the actor's scope behind ErrNotFound.
func (s *Service) Get(ctx context.Context, actor *auth.Principal, id string) (*Request, error) {
	f, ok, err := s.scope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.allows(r) {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, actor *auth.Principal, status Status, patientID string, p pagination.Params) ([]*Request, int, error) {
	if status != "" && !status.Valid() {
		var errs errsx.Map
		errs.Set("status", fmt.Sprintf("unknown status %q", status))
		return nil, 0, errs.AsError()
	}
	f, ok, err := s.scope(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return []*Request{}, 0, nil
	}
	f.Status = status
	f.PatientID = patientID
	return s.repo.List(ctx, f, p)
}

func (s *Service) Update(ctx context.Context, actor *auth.Principal, id string, in UpdateInput) (*Request, error) {
	r, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	var errs errsx.Map
	if in.DoctorID != nil {
		s.checkDoctor(ctx, r.OrganizationID, trimmed(in.DoctorID), &errs)
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}
	if in.DoctorID != nil {
		r.DoctorID = trimmed(in.DoctorID)
	}
	if in.PatientIdentifier != nil {
		r.PatientIdentifier = trimmed(in.PatientIdentifier)
	}
	if in.Phone != nil {
		r.Phone = trimmed(in.Phone)
	}
	if in.Notes != nil {
		r.Notes = trimmed(in.Notes)
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateStatus moves a request along Pending → Scheduled → Completed, with
// Cancelled reachable from any non-terminal status. Scheduling needs a time;
// rescheduling a Scheduled request replaces it.
func (s *Service) UpdateStatus(ctx context.Context, actor *auth.Principal, id string, in StatusInput) (*Request, error) {
	if !in.Status.Valid() {
		var errs errsx.Map
		errs.Set("status", "must be one of Pending, Scheduled, Completed, Cancelled")
		return nil, errs.AsError()
	}
	r, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !r.Status.CanTransition(in.Status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, in.Status)
	}
	if in.Status == StatusScheduled {
		if in.ScheduledAt == nil {
			var errs errsx.Map
			errs.Set("scheduledAt", "is required when scheduling")
			return nil, errs.AsError()
		}
		at := in.ScheduledAt.UTC()
		r.ScheduledAt = &at
	}
	r.Status = in.Status
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, actor *auth.Principal, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
