package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func TestValidityBoundary(t *testing.T) {
	justExpired := Contract{EndDate: now.Add(-time.Second), GracePeriodDays: 7}
	assert.True(t, justExpired.IsContractValid(now))
	assert.True(t, justExpired.IsInGracePeriod(now))

	longExpired := Contract{EndDate: now.Add(-8 * day), GracePeriodDays: 7}
	assert.False(t, longExpired.IsContractValid(now))
	assert.False(t, longExpired.IsInGracePeriod(now))

	active := Contract{EndDate: now.Add(40 * day), GracePeriodDays: 7}
	assert.True(t, active.IsContractValid(now))
	assert.False(t, active.IsInGracePeriod(now))
}

func TestValidityEdges(t *testing.T) {
	c := Contract{EndDate: now, GracePeriodDays: 7}
	assert.True(t, c.IsContractValid(now), "end date itself is valid")
	assert.False(t, c.IsInGracePeriod(now), "grace starts after the end date")

	graceEnd := c.GraceEndsAt()
	assert.True(t, c.IsContractValid(graceEnd))
	assert.True(t, c.IsInGracePeriod(graceEnd))
	assert.False(t, c.IsContractValid(graceEnd.Add(time.Nanosecond)))

	noGrace := Contract{EndDate: now.Add(-time.Second)}
	assert.False(t, noGrace.IsContractValid(now))
}

func TestDaysUntilExpiry(t *testing.T) {
	tests := []struct {
		end  time.Time
		want int
	}{
		{now.Add(40 * day), 40},
		{now.Add(29*day + time.Hour), 30},
		{now.Add(-time.Second), 0},
		{now.Add(-10 * day), -10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Contract{EndDate: tt.end}.DaysUntilExpiry(now), "end=%s", tt.end)
	}
}

func TestStatusAt(t *testing.T) {
	s := Contract{EndDate: now.Add(-2 * day), GracePeriodDays: 7}.StatusAt(now)
	assert.True(t, s.Valid)
	assert.True(t, s.InGracePeriod)
	assert.Equal(t, -2, s.DaysUntilExpiry)
	assert.Equal(t, now.Add(5*day), s.GraceEndsAt)
}

func TestAddMonths(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC), AddMonths(start, 12))
	assert.Equal(t, time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC), AddMonths(start, -1))
}
