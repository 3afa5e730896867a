package domain

import "time"

// CheckUsage runs the consumption gates in their fixed order: meal count,
// then daily cap, then time window. The first failing gate decides the
// outcome; nothing is consumed on failure.
//
// usedToday is the count of same-subscription orders the user created since
// UTC midnight.
func CheckUsage(plan Plan, ent Entitlement, usedToday int, now time.Time) error {
	if ent.RemainingMeals != nil && *ent.RemainingMeals <= 0 {
		return ErrQuotaExhausted
	}

	if plan.DailyLimit != nil && usedToday >= *plan.DailyLimit {
		return ErrDailyLimitReached
	}

	if plan.AllowedFrom != nil && plan.AllowedTo != nil {
		// Inclusive on both ends, matching the stored window semantics.
		current := TimeOfDayFrom(now).Minutes()
		if current < plan.AllowedFrom.Minutes() || current > plan.AllowedTo.Minutes() {
			return ErrOutsideAllowedWindow
		}
	}

	return nil
}

// ApplyDiscount returns the price after the plan's percentage discount.
func ApplyDiscount(total, percentage float64) float64 {
	return total * (1 - percentage/100)
}

// DiscountAmount is the reporting-only figure the revenue ledger records at
// the terminal transition. The order's total is already net of discount;
// this recomputes the slice for the books, it is never charged again.
func DiscountAmount(total, percentage float64) float64 {
	return total * percentage / 100
}

// StartOfDay is the UTC midnight preceding t, the lower bound for the daily
// limit count.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
