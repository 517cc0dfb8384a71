package identity

import (
	"strings"
	"time"
)

// DateLayout is the wire and storage format of DateOfBirth.
const DateLayout = "2006-01-02"

var genders = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}

// Patient is a person under a clinic's care. Name, email, phone and date of
// birth are PHI and are sealed by the repository.
type Patient struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	DateOfBirth    *string   `json:"dateOfBirth,omitempty"`
	Gender         *string   `json:"gender,omitempty"`
	DoctorID       *string   `json:"doctorId,omitempty"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Doctor is a clinician profile, optionally linked to a Doctor user account.
type Doctor struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	UserID         *string   `json:"userId,omitempty"`
	Name           string    `json:"name"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	Specialty      *string   `json:"specialty,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PatientFilter narrows patient lookups. Email and Phone match exactly
// (after normalization) through the blind index.
type PatientFilter struct {
	OrganizationID *string
	Email          string
	Phone          string
	DoctorID       string
}

type DoctorFilter struct {
	OrganizationID *string
	Email          string
	Active         *bool
}

// matchText reports whether q occurs in any of the values, ignoring case.
func matchText(q string, values ...*string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, v := range values {
		if v != nil && strings.Contains(strings.ToLower(*v), q) {
			return true
		}
	}
	return false
}

func (p *Patient) matches(q string) bool {
	return matchText(q, &p.Name, p.Email, p.Phone)
}

func (d *Doctor) matches(q string) bool {
	return matchText(q, &d.Name, d.Email, d.Phone, d.Specialty)
}
