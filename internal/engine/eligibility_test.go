package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// ============================================================================
// Date range
// ============================================================================

func TestIsWithinDateRange(t *testing.T) {
	start := date(2026, 3, 10)
	end := date(2026, 3, 12)

	tests := []struct {
		name       string
		start, end *time.Time
		now        time.Time
		want       bool
	}{
		{"no bounds", nil, nil, wednesdayNoon, true},
		{"inside", start, end, wednesdayNoon, true},
		{"start boundary late in the day", start, end, time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC), true},
		{"end boundary late in the day", start, end, time.Date(2026, 3, 12, 23, 59, 59, 0, time.UTC), true},
		{"day before start", start, end, time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC), false},
		{"day after end", start, end, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), false},
		{"only start, far future", start, nil, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"only end, far past", nil, end, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"single day window", date(2026, 3, 11), date(2026, 3, 11), wednesdayNoon, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinDateRange(tt.start, tt.end, tt.now))
		})
	}
}

func TestIsWithinDateRange_UsesNowLocation(t *testing.T) {
	// Local date 2026-03-12 counts, not the UTC date 2026-03-11.
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 3, 12, 1, 0, 0, 0, loc)

	assert.False(t, IsWithinDateRange(nil, date(2026, 3, 11), now))
	assert.True(t, IsWithinDateRange(date(2026, 3, 12), nil, now))
}

// ============================================================================
// Time of day
// ============================================================================

func TestIsWithinTimeRange(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 11, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		start, end *string
		now        time.Time
		want       bool
	}{
		{"unbounded", nil, nil, at(3, 0), true},
		{"inside", ptr("11:00"), ptr("14:00"), at(12, 30), true},
		{"start inclusive", ptr("11:00"), ptr("14:00"), at(11, 0), true},
		{"end inclusive", ptr("11:00"), ptr("14:00"), at(14, 0), true},
		{"one minute late", ptr("11:00"), ptr("14:00"), at(14, 1), false},
		{"too early", ptr("11:00"), ptr("14:00"), at(10, 59), false},
		{"only start", ptr("17:00"), nil, at(23, 59), true},
		{"only end", nil, ptr("09:30"), at(0, 0), true},
		{"midnight crossing is not supported", ptr("22:00"), ptr("02:00"), at(23, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinTimeRange(tt.start, tt.end, tt.now))
		})
	}
}

func TestIsAllowedWeekday(t *testing.T) {
	assert.True(t, IsAllowedWeekday(nil, wednesdayNoon))
	assert.True(t, IsAllowedWeekday([]time.Weekday{time.Monday, time.Wednesday}, wednesdayNoon))
	assert.False(t, IsAllowedWeekday([]time.Weekday{time.Saturday, time.Sunday}, wednesdayNoon))
}

// ============================================================================
// Composite eligibility
// ============================================================================

func TestIsEligible_InactiveAlwaysFalse(t *testing.T) {
	p := promo("happy", percent(10))
	p.IsActive = false
	p.StartDate = date(2020, 1, 1)
	p.EndDate = date(2030, 1, 1)
	p.MaxUsesTotal = ptr(1000)

	assert.False(t, IsEligible(&p, wednesdayNoon))
	assert.Equal(t, ReasonInactive, CheckEligibility(&p, wednesdayNoon))
}

func TestIsEligible_UsageCap(t *testing.T) {
	p := promo("capped", percent(10))
	p.MaxUsesTotal = ptr(5)

	p.CurrentUsage = 4
	assert.True(t, IsEligible(&p, wednesdayNoon))

	p.CurrentUsage = 5
	assert.False(t, IsEligible(&p, wednesdayNoon))
	assert.Equal(t, ReasonUsageLimit, CheckEligibility(&p, wednesdayNoon))
}

func TestCheckEligibility_Reasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *domain.PromotionDefinition)
		want   Reason
	}{
		{"eligible", func(p *domain.PromotionDefinition) {}, ReasonNone},
		{"not started", func(p *domain.PromotionDefinition) { p.StartDate = date(2026, 3, 12) }, ReasonNotStarted},
		{"expired", func(p *domain.PromotionDefinition) { p.EndDate = date(2026, 3, 10) }, ReasonExpired},
		{"outside hours", func(p *domain.PromotionDefinition) { p.TimeStart = ptr("18:00") }, ReasonOutsideHours},
		{"wrong weekday", func(p *domain.PromotionDefinition) { p.DaysOfWeek = []time.Weekday{time.Sunday} }, ReasonWrongWeekday},
		{"inactive wins over expired", func(p *domain.PromotionDefinition) {
			p.IsActive = false
			p.EndDate = date(2026, 3, 10)
		}, ReasonInactive},
		{"expired wins over weekday", func(p *domain.PromotionDefinition) {
			p.EndDate = date(2026, 3, 10)
			p.DaysOfWeek = []time.Weekday{time.Sunday}
		}, ReasonExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := promo("p", percent(10))
			tt.mutate(&p)
			assert.Equal(t, tt.want, CheckEligibility(&p, wednesdayNoon))
		})
	}
}
