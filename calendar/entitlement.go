/*
entitlement.go - Meal entitlement calculator

PURPOSE:
  Turns a date range, a meal-enablement selection, and two independent
  disable mechanisms into per-meal and total entitlement counts.

THE TWO DISABLE MECHANISMS:
  disabled_days:  a date in this set contributes zero to EVERY meal
  disabled_meals: a (date, meal) entry removes only that one meal

  They are independent and additive. A date with all of its enabled
  meals individually disabled counts as fully disabled, but is NOT
  required to also appear in disabled_days. Do not merge the two
  representations; the admin UI edits them separately.

ALGORITHM:
  For each day in [start, end]:
    if day in disabled_days: contributes nothing
    else for each enabled meal:
      contributes 1 unless disabled_meals[day][meal]

EDGE CASES:
  start > end: zero result (caller error, never a negative count)

SEE ALSO:
  - date.go: Date and Range types
  - mealplan/lifecycle.go: Weekend auto-disable for partial_full_time
*/
package calendar

// =============================================================================
// MEAL SELECTION - Which meal types are in play
// =============================================================================

// MealSelection holds the three independent meal enablement flags.
type MealSelection struct {
	Breakfast bool
	Lunch     bool
	Dinner    bool
}

// Any returns true if at least one meal is enabled.
func (m MealSelection) Any() bool { return m.Breakfast || m.Lunch || m.Dinner }

// =============================================================================
// DISABLE SETS
// =============================================================================

// DisabledDays is a set of fully excluded dates, keyed by ISO date.
type DisabledDays map[string]bool

// Contains reports whether the date is fully disabled.
func (dd DisabledDays) Contains(d Date) bool { return dd[d.String()] }

// Add inserts a date into the set, allocating on first use.
func (dd *DisabledDays) Add(d Date) {
	if *dd == nil {
		*dd = make(DisabledDays)
	}
	(*dd)[d.String()] = true
}

// Remove deletes a date from the set (re-enabling the day).
func (dd DisabledDays) Remove(d Date) { delete(dd, d.String()) }

// DisabledMeals maps ISO date -> per-meal exclusion flags.
type DisabledMeals map[string]MealSelection

// IsDisabled reports whether a specific meal is excluded on a date.
func (dm DisabledMeals) IsDisabled(d Date, meal string) bool {
	flags, ok := dm[d.String()]
	if !ok {
		return false
	}
	switch meal {
	case "breakfast":
		return flags.Breakfast
	case "lunch":
		return flags.Lunch
	case "dinner":
		return flags.Dinner
	}
	return false
}

// =============================================================================
// ENTITLEMENT - Per-meal counts
// =============================================================================

type Entitlement struct {
	Breakfast int
	Lunch     int
	Dinner    int
}

// Total is always the sum of the three meal counts.
func (e Entitlement) Total() int { return e.Breakfast + e.Lunch + e.Dinner }

// =============================================================================
// CALCULATOR
// =============================================================================

// CountEntitlement computes per-meal entitlement for the range.
//
// Pure function: no clock, no storage, no policy. Weekend auto-disable
// for partial_full_time packages is applied by the caller by adding
// weekend dates to disabledDays before calling this.
func CountEntitlement(rng Range, enabled MealSelection, disabledDays DisabledDays, disabledMeals DisabledMeals) Entitlement {
	var e Entitlement
	if !rng.IsValid() {
		return e
	}
	for _, day := range rng.Days() {
		if disabledDays.Contains(day) {
			continue
		}
		flags := disabledMeals[day.String()]
		if enabled.Breakfast && !flags.Breakfast {
			e.Breakfast++
		}
		if enabled.Lunch && !flags.Lunch {
			e.Lunch++
		}
		if enabled.Dinner && !flags.Dinner {
			e.Dinner++
		}
	}
	return e
}
