package assessment

import "time"

type Status string

const (
	StatusPending   Status = "Pending"
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// transitions lists the statuses reachable from each status. Completed and
// Cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusScheduled, StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) CanTransition(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Request is a clinic's request to have a patient assessed. The patient
// name and identifier, phone and notes are PHI.
type Request struct {
	ID                string     `json:"id"`
	OrganizationID    string     `json:"organizationId"`
	PatientID         string     `json:"patientId"`
	DoctorID          *string    `json:"doctorId,omitempty"`
	PatientName       string     `json:"patientName"`
	PatientIdentifier *string    `json:"patientIdentifier,omitempty"`
	Phone             *string    `json:"phone,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
	Status            Status     `json:"status"`
	ScheduledAt       *time.Time `json:"scheduledAt,omitempty"`
	CreatedBy         string     `json:"createdBy"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type Filter struct {
	OrganizationID *string
	DoctorID       string
	PatientID      string
	Status         Status
}
