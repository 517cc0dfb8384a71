package organization

import (
	"time"

	"github.com/clinicadmin/clinic/internal/platform/contract"
)

const (
	StatusActive    = "active"
	StatusSuspended = contract.StatusSuspended
)

// Organization is a tenant clinic and its current contract window.
type Organization struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	ContactEmail      *string   `json:"contactEmail,omitempty"`
	ContractStartDate time.Time `json:"contractStartDate"`
	ContractEndDate   time.Time `json:"contractEndDate"`
	DurationMonths    int       `json:"durationMonths"`
	GracePeriodDays   int       `json:"gracePeriodDays"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Contract projects the organization onto the validator's view.
func (o *Organization) Contract() *contract.Contract {
	return &contract.Contract{
		OrganizationID:  o.ID,
		StartDate:       o.ContractStartDate,
		EndDate:         o.ContractEndDate,
		DurationMonths:  o.DurationMonths,
		GracePeriodDays: o.GracePeriodDays,
		Status:          o.Status,
	}
}

// ContractChange names why a window was recorded in history.
type ContractChange string

const (
	ChangeCreated   ContractChange = "created"
	ChangeRenewal   ContractChange = "renewal"
	ChangeExtension ContractChange = "extension"
	ChangeReduction ContractChange = "reduction"
)

// HistoryEntry is one append-only contract history row. For changes it
// holds the window as it was before the change was applied.
type HistoryEntry struct {
	ID              string         `json:"id"`
	OrganizationID  string         `json:"organizationId"`
	StartDate       time.Time      `json:"contractStartDate"`
	EndDate         time.Time      `json:"contractEndDate"`
	DurationMonths  int            `json:"durationMonths"`
	GracePeriodDays int            `json:"gracePeriodDays"`
	Change          ContractChange `json:"change"`
	ChangedBy       string         `json:"changedBy"`
	CreatedAt       time.Time      `json:"createdAt"`
}

func snapshot(o *Organization, change ContractChange, by string) *HistoryEntry {
	return &HistoryEntry{
		OrganizationID:  o.ID,
		StartDate:       o.ContractStartDate,
		EndDate:         o.ContractEndDate,
		DurationMonths:  o.DurationMonths,
		GracePeriodDays: o.GracePeriodDays,
		Change:          change,
		ChangedBy:       by,
	}
}

type RenewalStatus string

const (
	RenewalPending  RenewalStatus = "Pending"
	RenewalApproved RenewalStatus = "Approved"
	RenewalRejected RenewalStatus = "Rejected"
)

// RenewalRequest is a clinic's request for more contract time. It leaves
// Pending exactly once.
type RenewalRequest struct {
	ID              string        `json:"id"`
	OrganizationID  string        `json:"organizationId"`
	RequestedBy     string        `json:"requestedBy"`
	RequestedMonths int           `json:"requestedMonths"`
	Note            string        `json:"note,omitempty"`
	Status          RenewalStatus `json:"status"`
	DecidedBy       *string       `json:"decidedBy,omitempty"`
	DecidedAt       *time.Time    `json:"decidedAt,omitempty"`
	DecisionNote    *string       `json:"decisionNote,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}
