/*
validate.go - Structural and invariant validation for package writes

PURPOSE:
  Rejects structurally invalid or invariant-violating package
  create/update requests before any persistence. Rules run in a fixed
  order and each produces a distinct, user-actionable rejection.

RULE ORDER (create):
  1. Member must resolve to an existing record
  2. At least one meal enabled
  3. Date-bound types: start and end required, start <= end
  4. Partial: at least one positive entitlement total
  5. Daily basis: initial deposit strictly greater than zero
  6. One open package per member (active vs deactivated give
     different remedies)
  7. No date-range overlap with any prior date-bound package for the
     member, regardless of that package's status

  Updates (edits) run rules 1-5 only; 6 and 7 apply to creation of a
  new package row.

CONCURRENCY:
  Rules 6 and 7 read sibling packages, so the lifecycle manager
  re-runs them inside the same storage transaction that performs the
  insert. Validating outside the transaction is a stale-read race.

SEE ALSO:
  - lifecycle.go: Calls the validator inside WithTx
  - errors.go: ValidationError, InvariantViolationError
*/
package mealplan

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/messkit/package-engine/calendar"
)

// =============================================================================
// PACKAGE SPECS - Tagged creation requests, one variant per type
// =============================================================================

// SpecCommon carries the fields every package type shares.
type SpecCommon struct {
	Member   MemberRef
	Meals    MealSelection
	Price    decimal.Decimal
	Discount decimal.Decimal
}

// PackageSpec is a creation request for exactly one package type.
// Each variant carries only the fields meaningful to that type; the
// variant is decided at construction time and never re-tagged.
type PackageSpec interface {
	PackageType() PackageType
	Common() SpecCommon
}

// FullTimeSpec creates a full_time package: calendar-derived
// entitlement over [StartDate, EndDate].
type FullTimeSpec struct {
	SpecCommon
	StartDate     calendar.Date
	EndDate       calendar.Date
	DisabledDays  calendar.DisabledDays
	DisabledMeals calendar.DisabledMeals
}

func (s FullTimeSpec) PackageType() PackageType { return FullTime }
func (s FullTimeSpec) Common() SpecCommon       { return s.SpecCommon }

// PartialFullTimeSpec is like FullTimeSpec, with weekends
// auto-disabled once at creation (admins may re-enable individual
// weekend days afterward by editing the disabled set).
type PartialFullTimeSpec struct {
	SpecCommon
	StartDate     calendar.Date
	EndDate       calendar.Date
	DisabledDays  calendar.DisabledDays
	DisabledMeals calendar.DisabledMeals
}

func (s PartialFullTimeSpec) PackageType() PackageType { return PartialFullTime }
func (s PartialFullTimeSpec) Common() SpecCommon       { return s.SpecCommon }

// PartialSpec creates a partial package: administrator-entered flat
// meal totals, no calendar involved.
type PartialSpec struct {
	SpecCommon
	Totals MealCounts
}

func (s PartialSpec) PackageType() PackageType { return Partial }
func (s PartialSpec) Common() SpecCommon       { return s.SpecCommon }

// DailyBasisSpec creates a daily_basis package: no meal-count
// entitlement, a prepaid balance debited per meal instead.
type DailyBasisSpec struct {
	SpecCommon
	InitialDeposit decimal.Decimal
	MealRate       decimal.Decimal
}

func (s DailyBasisSpec) PackageType() PackageType { return DailyBasis }
func (s DailyBasisSpec) Common() SpecCommon       { return s.SpecCommon }

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator enforces structural rules and cross-package invariants.
type Validator struct {
	members MemberStore
}

func NewValidator(members MemberStore) *Validator {
	return &Validator{members: members}
}

// ValidateSpec runs the structural rules (1-5) against a creation
// spec. Invariant rules (6-7) run separately via CheckMemberInvariants
// so the lifecycle manager can re-check them inside a transaction.
func (v *Validator) ValidateSpec(ctx context.Context, spec PackageSpec) error {
	c := spec.Common()

	// Rule 1: a member must be selected and must exist.
	if c.Member.ID == "" || !ValidMemberType(string(c.Member.Type)) {
		return &ValidationError{Field: "member", Reason: "a member must be selected"}
	}
	member, err := v.members.GetMember(ctx, c.Member)
	if err != nil {
		return storageErr("get member", err)
	}
	if member == nil {
		return ErrMemberNotFound
	}

	// Rule 2: at least one meal must be enabled.
	if !c.Meals.Any() {
		return &ValidationError{Field: "meals", Reason: "at least one of breakfast, lunch, dinner must be enabled"}
	}

	switch s := spec.(type) {
	case FullTimeSpec:
		return validateDateRange(s.StartDate, s.EndDate)
	case PartialFullTimeSpec:
		return validateDateRange(s.StartDate, s.EndDate)
	case PartialSpec:
		// Rule 4: at least one positive entitlement total.
		if s.Totals.Breakfast <= 0 && s.Totals.Lunch <= 0 && s.Totals.Dinner <= 0 {
			return &ValidationError{Field: "totals", Reason: "at least one meal total must be a positive number"}
		}
		if s.Totals.Breakfast < 0 || s.Totals.Lunch < 0 || s.Totals.Dinner < 0 {
			return &ValidationError{Field: "totals", Reason: "meal totals cannot be negative"}
		}
	case DailyBasisSpec:
		// Rule 5: an initial deposit strictly greater than zero.
		if !s.InitialDeposit.IsPositive() {
			return &ValidationError{Field: "initial_deposit", Reason: "an initial deposit greater than zero is required"}
		}
		if s.MealRate.IsNegative() {
			return &ValidationError{Field: "meal_rate", Reason: "meal rate cannot be negative"}
		}
	}
	return nil
}

// validateDateRange is rule 3 for the date-bound types.
func validateDateRange(start, end calendar.Date) error {
	if start.IsZero() || end.IsZero() {
		return &ValidationError{Field: "dates", Reason: "start date and end date are required"}
	}
	if start.After(end) {
		return &ValidationError{Field: "dates", Reason: "start date must be on or before end date"}
	}
	return nil
}

// CheckMemberInvariants runs rules 6 and 7 against the member's
// existing packages. Pure given the slice; the lifecycle manager calls
// it with rows read inside the insert transaction.
func (v *Validator) CheckMemberInvariants(spec PackageSpec, existing []*Package, today calendar.Date) error {
	c := spec.Common()

	// Rule 6: at most one open package per member. The remedy differs:
	// an active package must expire or be deactivated first, a
	// deactivated one must be deleted or reactivated.
	for _, p := range existing {
		switch EffectiveStatus(p, today) {
		case StatusActive:
			return &InvariantViolationError{
				Member: c.Member,
				Remedy: "an active package exists; wait for it to expire or deactivate it first",
				base:   ErrMemberHasOpenPackage,
			}
		case StatusDeactivated:
			return &InvariantViolationError{
				Member: c.Member,
				Remedy: "a deactivated package exists; delete it or reactivate it instead",
				base:   ErrMemberHasOpenPackage,
			}
		}
	}

	// Rule 7: date-bound ranges never overlap a sibling's, whatever
	// status that sibling is in now.
	var rng calendar.Range
	switch s := spec.(type) {
	case FullTimeSpec:
		rng = calendar.Range{Start: s.StartDate, End: s.EndDate}
	case PartialFullTimeSpec:
		rng = calendar.Range{Start: s.StartDate, End: s.EndDate}
	default:
		return nil
	}
	for _, p := range existing {
		if !p.Type.DateBound() {
			continue
		}
		if rng.Overlaps(p.DateRange()) {
			return &InvariantViolationError{
				Member: c.Member,
				Remedy: "dates " + rng.String() + " overlap package " + p.ID + " " + p.DateRange().String() + "; choose different dates",
				base:   ErrDateOverlap,
			}
		}
	}
	return nil
}

// =============================================================================
// UPDATE VALIDATION
// =============================================================================

// UpdateRequest edits a package in place. Meal enablement is immutable
// after creation, so it is absent here; renewal is the only way to
// change it.
type UpdateRequest struct {
	// Date-bound types.
	StartDate     calendar.Date
	EndDate       calendar.Date
	DisabledDays  calendar.DisabledDays
	DisabledMeals calendar.DisabledMeals

	// Partial type.
	Totals MealCounts

	Price    decimal.Decimal
	Discount decimal.Decimal

	// Daily basis.
	MealRate decimal.Decimal
}

// ValidateUpdate runs the structural rules for an edit. Rules 6 and 7
// are creation-only and deliberately skipped.
func (v *Validator) ValidateUpdate(p *Package, req UpdateRequest) error {
	switch p.Type {
	case FullTime, PartialFullTime:
		if err := validateDateRange(req.StartDate, req.EndDate); err != nil {
			return err
		}
	case Partial:
		if req.Totals.Breakfast <= 0 && req.Totals.Lunch <= 0 && req.Totals.Dinner <= 0 {
			return &ValidationError{Field: "totals", Reason: "at least one meal total must be a positive number"}
		}
		if req.Totals.Breakfast < 0 || req.Totals.Lunch < 0 || req.Totals.Dinner < 0 {
			return &ValidationError{Field: "totals", Reason: "meal totals cannot be negative"}
		}
	case DailyBasis:
		if req.MealRate.IsNegative() {
			return &ValidationError{Field: "meal_rate", Reason: "meal rate cannot be negative"}
		}
	}
	return nil
}
