/*
consumption.go - Meal check-in tracking against entitlement

PURPOSE:
  Records meal check-ins by incrementing the package's consumed
  counters, guarded so consumed never exceeds total. Daily-basis
  packages have no counters; their check-ins route to a balance debit.

INVARIANT:
  consumed_X <= total_X for every meal type X, at all times. A
  check-in that would break this is rejected with a distinct
  EntitlementExhaustedError, not a generic validation failure.

REMAINING ENTITLEMENT:
  Remaining() = total - consumed per enabled meal, floored at zero.
  The renewal carry-over calculation in lifecycle.go reads it.

SEE ALSO:
  - ledger.go: Debit path for daily-basis check-ins
  - lifecycle.go: Carry-over on renewal
*/
package mealplan

import (
	"context"
	"fmt"

	"github.com/messkit/package-engine/calendar"
)

// =============================================================================
// CONSUMPTION TRACKER
// =============================================================================

type Tracker struct {
	store  TxStore
	ledger *BalanceLedger

	// Now supplies the current date; overridable in tests.
	Now func() calendar.Date
}

func NewTracker(store TxStore) *Tracker {
	return &Tracker{
		store:  store,
		ledger: NewBalanceLedger(store),
		Now:    calendar.Today,
	}
}

// RecordMeal registers one meal check-in of the given type.
//
// Entitlement-counted packages get consumed_X incremented with the
// exhaustion guard; daily-basis packages get a balance debit at the
// package's meal rate instead.
func (t *Tracker) RecordMeal(ctx context.Context, packageID string, meal MealType) (*Package, error) {
	if !ValidMealType(string(meal)) {
		return nil, &ValidationError{Field: "meal", Reason: "unknown meal type"}
	}

	var result *Package
	err := t.store.WithTx(ctx, func(s Store) error {
		pkg, err := loadPackage(ctx, s, packageID)
		if err != nil {
			return err
		}

		today := t.Now()
		if status := EffectiveStatus(pkg, today); status != StatusActive {
			return &StateError{
				PackageID: pkg.ID,
				Attempted: "record consumption on",
				Status:    status,
				Reason:    "meals can only be consumed on an active package",
			}
		}
		if !Enabled(pkg.Meals, meal) {
			return &ValidationError{Field: "meal", Reason: fmt.Sprintf("%s is not enabled on this package", meal)}
		}

		if pkg.Type == DailyBasis {
			// No entitlement counters: debit the prepaid balance.
			if pkg.Balance.LessThan(pkg.MealRate) {
				return &InsufficientBalanceError{PackageID: pkg.ID, Balance: pkg.Balance, Requested: pkg.MealRate}
			}
			newBalance, err := applyLedgerEntry(ctx, s, pkg.ID, TxDebit, pkg.MealRate,
				fmt.Sprintf("%s check-in on %s", meal, today), today.Time())
			if err != nil {
				return err
			}
			pkg.Balance = newBalance
			result = pkg
			return nil
		}

		if pkg.Consumed.Get(meal) >= pkg.Totals.Get(meal) {
			return &EntitlementExhaustedError{
				PackageID: pkg.ID,
				Meal:      meal,
				Total:     pkg.Totals.Get(meal),
				Consumed:  pkg.Consumed.Get(meal),
			}
		}

		pkg.Consumed = pkg.Consumed.Increment(meal)
		if err := s.UpdatePackage(ctx, pkg); err != nil {
			return storageErr("update package", err)
		}
		result = pkg
		return nil
	})
	return result, err
}

// Remaining returns total - consumed per enabled meal, floored at
// zero. Disabled meals report zero remaining regardless of counters.
func Remaining(p *Package) MealCounts {
	var r MealCounts
	if p.Meals.Breakfast {
		r.Breakfast = floorZero(p.Totals.Breakfast - p.Consumed.Breakfast)
	}
	if p.Meals.Lunch {
		r.Lunch = floorZero(p.Totals.Lunch - p.Consumed.Lunch)
	}
	if p.Meals.Dinner {
		r.Dinner = floorZero(p.Totals.Dinner - p.Consumed.Dinner)
	}
	return r
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
