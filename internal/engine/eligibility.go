// Package engine evaluates promotion definitions against a cart. Every
// function is pure: the current instant is always passed in and no input is
// mutated, so the package is safe for concurrent use without coordination.
package engine

import (
	"time"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// Reason is a human-readable explanation of why a promotion cannot be used.
// The empty Reason means the promotion passed every check.
type Reason string

// Rejection reasons, worded for display to the cashier.
const (
	ReasonNone         Reason = ""
	ReasonNotFound     Reason = "promotion not found"
	ReasonInactive     Reason = "promotion is not active"
	ReasonNotStarted   Reason = "promotion has not started yet"
	ReasonExpired      Reason = "promotion expired"
	ReasonOutsideHours Reason = "promotion is not available at this time of day"
	ReasonWrongWeekday Reason = "promotion is not available on this day"
	ReasonUsageLimit   Reason = "promotion usage limit reached"
	ReasonMinPurchase  Reason = "minimum purchase not met"
	ReasonMinQuantity  Reason = "minimum quantity not met"
	ReasonNoMatch      Reason = "promotion does not apply to cart items"
)

// clockLayout is the wall-clock form TimeStart and TimeEnd are stored in.
const clockLayout = "15:04"

// IsWithinDateRange compares calendar dates only. A bound's date is read in
// the bound's own location and now's date in now's location. Absent bounds
// are unconstrained and both ends are inclusive.
func IsWithinDateRange(start, end *time.Time, now time.Time) bool {
	return hasStarted(start, now) && !hasExpired(end, now)
}

func hasStarted(start *time.Time, now time.Time) bool {
	return start == nil || !calendarDate(now).Before(calendarDate(*start))
}

func hasExpired(end *time.Time, now time.Time) bool {
	return end != nil && calendarDate(now).After(calendarDate(*end))
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsWithinTimeRange compares now's "HH:MM" wall clock lexically against the
// bounds, both inclusive. Windows that cross midnight are not supported; such
// a promotion has to be split into two definitions.
func IsWithinTimeRange(start, end *string, now time.Time) bool {
	clock := now.Format(clockLayout)
	if start != nil && clock < *start {
		return false
	}
	if end != nil && clock > *end {
		return false
	}
	return true
}

// IsAllowedWeekday reports whether now falls on one of days. An empty set
// allows every day.
func IsAllowedWeekday(days []time.Weekday, now time.Time) bool {
	if len(days) == 0 {
		return true
	}
	wd := now.Weekday()
	for _, d := range days {
		if d == wd {
			return true
		}
	}
	return false
}

// CheckEligibility returns the first constraint p fails at now, or ReasonNone.
func CheckEligibility(p *domain.PromotionDefinition, now time.Time) Reason {
	switch {
	case !p.IsActive:
		return ReasonInactive
	case !hasStarted(p.StartDate, now):
		return ReasonNotStarted
	case hasExpired(p.EndDate, now):
		return ReasonExpired
	case !IsWithinTimeRange(p.TimeStart, p.TimeEnd, now):
		return ReasonOutsideHours
	case !IsAllowedWeekday(p.DaysOfWeek, now):
		return ReasonWrongWeekday
	case p.MaxUsesTotal != nil && p.CurrentUsage >= *p.MaxUsesTotal:
		return ReasonUsageLimit
	}
	return ReasonNone
}

// IsEligible reports whether p is usable at now.
func IsEligible(p *domain.PromotionDefinition, now time.Time) bool {
	return CheckEligibility(p, now) == ReasonNone
}
