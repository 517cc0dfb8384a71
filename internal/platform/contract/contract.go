// Package contract gates tenant administrators on their organization's
// subscription window.
package contract

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Contract is the subscription window of one organization.
type Contract struct {
	OrganizationID  string    `json:"organizationId"`
	StartDate       time.Time `json:"contractStartDate"`
	EndDate         time.Time `json:"contractEndDate"`
	DurationMonths  int       `json:"durationMonths"`
	GracePeriodDays int       `json:"gracePeriodDays"`
	Status          string    `json:"status"`
}

// StatusSuspended marks an organization switched off by the platform.
const StatusSuspended = "suspended"

// GraceEndsAt is the last instant at which the contract is still valid.
func (c Contract) GraceEndsAt() time.Time {
	return c.EndDate.Add(time.Duration(c.GracePeriodDays) * day)
}

// IsContractValid reports now <= end + grace.
func (c Contract) IsContractValid(now time.Time) bool {
	return !now.After(c.GraceEndsAt())
}

// IsInGracePeriod reports end < now <= end + grace.
func (c Contract) IsInGracePeriod(now time.Time) bool {
	return now.After(c.EndDate) && !now.After(c.GraceEndsAt())
}

// DaysUntilExpiry counts whole days to EndDate, rounded up; negative once
// the end date has passed.
func (c Contract) DaysUntilExpiry(now time.Time) int {
	d := math.Ceil(c.EndDate.Sub(now).Hours() / 24)
	if d == 0 {
		return 0
	}
	return int(d)
}

// Status summarizes the contract at now for API responses.
type Status struct {
	Contract
	Valid           bool      `json:"valid"`
	InGracePeriod   bool      `json:"inGracePeriod"`
	DaysUntilExpiry int       `json:"daysUntilExpiry"`
	GraceEndsAt     time.Time `json:"graceEndsAt"`
}

// StatusAt evaluates c at now.
func (c Contract) StatusAt(now time.Time) Status {
	return Status{
		Contract:        c,
		Valid:           c.IsContractValid(now),
		InGracePeriod:   c.IsInGracePeriod(now),
		DaysUntilExpiry: c.DaysUntilExpiry(now),
		GraceEndsAt:     c.GraceEndsAt(),
	}
}

// AddMonths moves t by n calendar months.
func AddMonths(t time.Time, n int) time.Time {
	return t.AddDate(0, n, 0)
}
