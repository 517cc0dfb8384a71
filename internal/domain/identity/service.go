package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/hengadev/errsx"

	"github.com/clinicadmin/clinic/internal/platform/auth"
	"github.com/clinicadmin/clinic/pkg/pagination"
)

// ErrNoOrganization is returned when a clinic-side write comes from an
// account without an organization.
var ErrNoOrganization = errors.New("no organization linked to this account")

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	now      func() time.Time
}

func NewService(patients PatientRepository, doctors DoctorRepository) *Service {
	return &Service{patients: patients, doctors: doctors, now: time.Now}
}

// Doctors exposes the doctor repository to packages that resolve doctor
// profiles, such as assessment scoping.
func (s *Service) Doctors() DoctorRepository { return s.doctors }

// orgScope is nil for SuperAdmins (all organizations) and the actor's
// organization otherwise. An actor without an organization sees nothing.
func orgScope(actor *auth.Principal) *string {
	if actor.Role == auth.RoleSuperAdmin {
		return nil
	}
	if actor.OrganizationID == nil {
		none := ""
		return &none
	}
	return actor.OrganizationID
}

func ownOrg(actor *auth.Principal) (string, error) {
	if actor.OrganizationID == nil || *actor.OrganizationID == "" {
		return "", ErrNoOrganization
	}
	return *actor.OrganizationID, nil
}

type PatientInput struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	DateOfBirth *string `json:"dateOfBirth"`
	Gender      *string `json:"gender"`
	DoctorID    *string `json:"doctorId"`
}

// Query is the list query shared by patients and doctors. Email and Phone
// match exactly; Q is a free-text substring match over decrypted fields.
type Query struct {
	Email    string
	Phone    string
	DoctorID string
	Q        string
}

func cleanOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func (s *Service) validatePatient(ctx context.Context, orgID string, in PatientInput, creating bool, errs *errsx.Map) {
	if creating && (in.Name == nil || strings.TrimSpace(*in.Name) == "") {
		errs.Set("name", "is required")
	}
	if in.Name != nil && !creating && strings.TrimSpace(*in.Name) == "" {
		errs.Set("name", "must not be empty")
	}
	if e := cleanOptional(in.Email); e != nil {
		if _, err := mail.ParseAddress(*e); err != nil {
			errs.Set("email", "must be a valid email address")
		}
	}
	if d := cleanOptional(in.DateOfBirth); d != nil {
		dob, err := time.Parse(DateLayout, *d)
		if err != nil {
			errs.Set("dateOfBirth", "must be a date formatted YYYY-MM-DD")
		} else if dob.After(s.now()) {
			errs.Set("dateOfBirth", "must not be in the future")
		}
	}
	if g := cleanOptional(in.Gender); g != nil && !genders[strings.ToLower(*g)] {
		errs.Set("gender", "must be one of male, female, other, unknown")
	}
	if id := cleanOptional(in.DoctorID); id != nil {
		d, err := s.doctors.GetByID(ctx, *id)
		if err != nil || d.OrganizationID != orgID {
			errs.Set("doctorId", "does not reference a doctor in this organization")
		}
	}
}

func applyPatient(p *Patient, in PatientInput) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		p.Email = cleanOptional(in.Email)
	}
	if in.Phone != nil {
		p.Phone = cleanOptional(in.Phone)
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = cleanOptional(in.DateOfBirth)
	}
	if in.Gender != nil {
		if g := cleanOptional(in.Gender); g != nil {
			lower := strings.ToLower(*g)
			p.Gender = &lower
		} else {
			p.Gender = nil
		}
	}
	if in.DoctorID != nil {
		p.DoctorID = cleanOptional(in.DoctorID)
	}
}

func (s *Service) CreatePatient(ctx context.Context, actor *auth.Principal, in PatientInput) (*Patient, error) {
	orgID, err := ownOrg(actor)
	if err != nil {
		return nil, err
	}
	var errs errsx.Map
	s.validatePatient(ctx, orgID, in, true, &errs)
	if err := errs.AsError(); err != nil {
		return nil, err
	}
	p := &Patient{OrganizationID: orgID, CreatedBy: actor.ID}
	applyPatient(p, in)
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPatient hides patients of other organizations behind ErrPatientNotFound.
func (s *Service) GetPatient(ctx context.Context, actor *auth.Principal, id string) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org := orgScope(actor); org != nil && *org != p.OrganizationID {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, actor *auth.Principal, id string, in PatientInput) (*Patient, error) {
	p, err := s.GetPatient(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	var errs errsx.Map
	s.validatePatient(ctx, p.OrganizationID, in, false, &errs)
	if err := errs.AsError(); err != nil {
		return nil, err
	}
	applyPatient(p, in)
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, actor *auth.Principal, id string) error {
	if _, err := s.GetPatient(ctx, actor, id); err != nil {
		return err
	}
	return s.patients.Delete(ctx, id)
}

// ListPatients pages in the database unless a free-text query is given, in
// which case the organization's rows are decrypted, filtered and paged here.
func (s *Service) ListPatients(ctx context.Context, actor *auth.Principal, q Query, p pagination.Params) ([]*Patient, int, error) {
	f := PatientFilter{OrganizationID: orgScope(actor), Email: q.Email, Phone: q.Phone, DoctorID: q.DoctorID}
	if strings.TrimSpace(q.Q) == "" {
		return s.patients.List(ctx, f, p)
	}
	all, err := s.patients.ListAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]*Patient, 0, len(all))
	for _, pt := range all {
		if pt.matches(q.Q) {
			matched = append(matched, pt)
		}
	}
	return pagination.Slice(matched, p), len(matched), nil
}

type DoctorInput struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Specialty *string `json:"specialty"`
	UserID    *string `json:"userId"`
	Active    *bool   `json:"active"`
}

func validateDoctor(in DoctorInput, creating bool) error {
	var errs errsx.Map
	if creating && (in.Name == nil || strings.TrimSpace(*in.Name) == "") {
		errs.Set("name", "is required")
	}
	if in.Name != nil && !creating && strings.TrimSpace(*in.Name) == "" {
		errs.Set("name", "must not be empty")
	}
	if e := cleanOptional(in.Email); e != nil {
		if _, err := mail.ParseAddress(*e); err != nil {
			errs.Set("email", "must be a valid email address")
		}
	}
	return errs.AsError()
}

func applyDoctor(d *Doctor, in DoctorInput) {
	if in.Name != nil {
		d.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		d.Email = cleanOptional(in.Email)
	}
	if in.Phone != nil {
		d.Phone = cleanOptional(in.Phone)
	}
	if in.Specialty != nil {
		d.Specialty = cleanOptional(in.Specialty)
	}
	if in.UserID != nil {
		d.UserID = cleanOptional(in.UserID)
	}
	if in.Active != nil {
		d.Active = *in.Active
	}
}

func (s *Service) CreateDoctor(ctx context.Context, actor *auth.Principal, in DoctorInput) (*Doctor, error) {
	orgID, err := ownOrg(actor)
	if err != nil {
		return nil, err
	}
	if err := validateDoctor(in, true); err != nil {
		return nil, err
	}
	d := &Doctor{OrganizationID: orgID, Active: true}
	applyDoctor(d, in)
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, actor *auth.Principal, id string) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org := orgScope(actor); org != nil && *org != d.OrganizationID {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, actor *auth.Principal, id string, in DoctorInput) (*Doctor, error) {
	d, err := s.GetDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := validateDoctor(in, false); err != nil {
		return nil, err
	}
	applyDoctor(d, in)
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DeleteDoctor(ctx context.Context, actor *auth.Principal, id string) error {
	if _, err := s.GetDoctor(ctx, actor, id); err != nil {
		return err
	}
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, actor *auth.Principal, q Query, active *bool, p pagination.Params) ([]*Doctor, int, error) {
	f := DoctorFilter{OrganizationID: orgScope(actor), Email: q.Email, Active: active}
	if strings.TrimSpace(q.Q) == "" {
		return s.doctors.List(ctx, f, p)
	}
	all, err := s.doctors.ListAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]*Doctor, 0, len(all))
	for _, d := range all {
		if d.matches(q.Q) {
			matched = append(matched, d)
		}
	}
	return pagination.Slice(matched, p), len(matched), nil
}
