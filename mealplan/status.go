package mealplan

import "github.com/messkit/package-engine/calendar"

// =============================================================================
// EFFECTIVE STATUS - Derived, real-time status
// =============================================================================

// EffectiveStatus derives a package's real status from stored fields
// plus the current date. The stored status field is NOT authoritative
// for date-bound expiry: a full_time/partial_full_time package whose
// end date has passed is expired even if no write has happened since.
//
// Every surface that displays status or gates a transition must go
// through this function; recomputing the rule ad hoc is how divergent
// status bugs happen.
//
// Derivation order:
//  1. renewed / deactivated stored statuses are terminal, use as-is
//  2. stored expired, or is_active=false, means expired
//  3. date-bound with end_date strictly before today means expired
//  4. otherwise active
func EffectiveStatus(p *Package, today calendar.Date) Status {
	switch p.Status {
	case StatusRenewed, StatusDeactivated:
		return p.Status
	}
	if p.Status == StatusExpired || !p.IsActive {
		return StatusExpired
	}
	if p.Type.DateBound() && p.EndDate.Before(today) {
		return StatusExpired
	}
	return StatusActive
}
