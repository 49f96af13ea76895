package mealplan_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messkit/package-engine/mealplan"
	"github.com/messkit/package-engine/mealplan/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestValidator(t *testing.T) (*mealplan.Validator, mealplan.MemberRef) {
	t.Helper()
	s := store.NewTxMemory()
	member := seedMember(t, s, "stu-1", mealplan.MemberStudent)
	return mealplan.NewValidator(s), member
}

// =============================================================================
// STRUCTURAL RULES (create)
// =============================================================================

func TestValidateSpec_NoMemberSelected_Rejected(t *testing.T) {
	v, _ := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.PartialSpec{
		SpecCommon: mealplan.SpecCommon{Meals: allMeals()},
		Totals:     mealplan.MealCounts{Lunch: 10},
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)
	assert.Contains(t, err.Error(), "member")
}

func TestValidateSpec_UnknownMember_Rejected(t *testing.T) {
	v, _ := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.PartialSpec{
		SpecCommon: mealplan.SpecCommon{
			Member: mealplan.MemberRef{ID: "ghost", Type: mealplan.MemberStudent},
			Meals:  allMeals(),
		},
		Totals: mealplan.MealCounts{Lunch: 10},
	})
	assert.ErrorIs(t, err, mealplan.ErrMemberNotFound)
}

func TestValidateSpec_NoMealsEnabled_Rejected(t *testing.T) {
	v, member := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.PartialSpec{
		SpecCommon: mealplan.SpecCommon{Member: member},
		Totals:     mealplan.MealCounts{Lunch: 10},
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)
	assert.Contains(t, err.Error(), "at least one")
}

func TestValidateSpec_DateBound_MissingDates_Rejected(t *testing.T) {
	v, member := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.FullTimeSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)
	assert.Contains(t, err.Error(), "required")
}

func TestValidateSpec_DateBound_StartAfterEnd_Rejected(t *testing.T) {
	v, member := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.PartialFullTimeSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
		StartDate:  d(2026, time.March, 10),
		EndDate:    d(2026, time.March, 1),
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)
	assert.Contains(t, err.Error(), "on or before")
}

func TestValidateSpec_Partial_NoPositiveTotals_Rejected(t *testing.T) {
	v, member := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.PartialSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)
	assert.Contains(t, err.Error(), "positive")
}

func TestValidateSpec_Partial_NegativeTotal_Rejected(t *testing.T) {
	v, member := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.PartialSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
		Totals:     mealplan.MealCounts{Lunch: 10, Dinner: -1},
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)
	assert.Contains(t, err.Error(), "negative")
}

func TestValidateSpec_DailyBasis_ZeroDeposit_Rejected(t *testing.T) {
	v, member := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.DailyBasisSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
		MealRate:   dec("25"),
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)
	assert.Contains(t, err.Error(), "deposit")
}

func TestValidateSpec_DailyBasis_NegativeMealRate_Rejected(t *testing.T) {
	v, member := newTestValidator(t)

	err := v.ValidateSpec(context.Background(), mealplan.DailyBasisSpec{
		SpecCommon:     mealplan.SpecCommon{Member: member, Meals: allMeals()},
		InitialDeposit: dec("100"),
		MealRate:       dec("-1"),
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)
}

func TestValidateSpec_ValidSpecs_Accepted(t *testing.T) {
	v, member := newTestValidator(t)
	ctx := context.Background()

	specs := []mealplan.PackageSpec{
		mealplan.FullTimeSpec{
			SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
			StartDate:  d(2026, time.January, 1),
			EndDate:    d(2026, time.January, 31),
		},
		mealplan.PartialSpec{
			SpecCommon: mealplan.SpecCommon{Member: member, Meals: mealplan.MealSelection{Lunch: true}},
			Totals:     mealplan.MealCounts{Lunch: 20},
		},
		mealplan.DailyBasisSpec{
			SpecCommon:     mealplan.SpecCommon{Member: member, Meals: allMeals()},
			InitialDeposit: dec("100"),
			MealRate:       dec("25"),
		},
	}
	for _, spec := range specs {
		assert.NoError(t, v.ValidateSpec(ctx, spec), "type %s", spec.PackageType())
	}
}

// =============================================================================
// MEMBER INVARIANTS (rules 6 and 7)
// =============================================================================

func TestCheckMemberInvariants_ExpiredSiblingDoesNotBlock(t *testing.T) {
	// GIVEN: A sibling whose range lapsed (stored status still active)
	// WHEN: Checking invariants for a non-overlapping spec
	// THEN: No violation; effective status governs

	v, member := newTestValidator(t)

	sibling := &mealplan.Package{
		ID: "pkg-old", Member: member, Type: mealplan.FullTime,
		Meals:     allMeals(),
		StartDate: d(2026, time.January, 1), EndDate: d(2026, time.January, 31),
		Status: mealplan.StatusActive, IsActive: true,
	}
	spec := mealplan.FullTimeSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
		StartDate:  d(2026, time.March, 1),
		EndDate:    d(2026, time.March, 31),
	}

	err := v.CheckMemberInvariants(spec, []*mealplan.Package{sibling}, d(2026, time.February, 15))
	assert.NoError(t, err)

	// Same check while the sibling is still running: blocked.
	err = v.CheckMemberInvariants(spec, []*mealplan.Package{sibling}, d(2026, time.January, 15))
	assert.ErrorIs(t, err, mealplan.ErrMemberHasOpenPackage)
}

func TestCheckMemberInvariants_RenewedSiblingDoesNotBlock(t *testing.T) {
	v, member := newTestValidator(t)

	sibling := &mealplan.Package{
		ID: "pkg-old", Member: member, Type: mealplan.Partial,
		Meals:  allMeals(),
		Status: mealplan.StatusRenewed,
	}
	spec := mealplan.PartialSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
		Totals:     mealplan.MealCounts{Lunch: 10},
	}

	assert.NoError(t, v.CheckMemberInvariants(spec, []*mealplan.Package{sibling}, d(2026, time.June, 1)))
}

func TestCheckMemberInvariants_OverlapWithRenewedSibling_Rejected(t *testing.T) {
	// GIVEN: A renewed (closed) sibling occupying January
	// WHEN: Proposing a range that touches January
	// THEN: Overlap violation regardless of the sibling's status

	v, member := newTestValidator(t)

	sibling := &mealplan.Package{
		ID: "pkg-old", Member: member, Type: mealplan.FullTime,
		Meals:     allMeals(),
		StartDate: d(2026, time.January, 1), EndDate: d(2026, time.January, 31),
		Status: mealplan.StatusRenewed,
	}
	spec := mealplan.FullTimeSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
		StartDate:  d(2026, time.January, 31),
		EndDate:    d(2026, time.February, 27),
	}

	err := v.CheckMemberInvariants(spec, []*mealplan.Package{sibling}, d(2026, time.March, 1))
	assert.ErrorIs(t, err, mealplan.ErrDateOverlap)

	var inv *mealplan.InvariantViolationError
	require.ErrorAs(t, err, &inv)
	assert.Contains(t, inv.Remedy, "choose different dates")
}

func TestCheckMemberInvariants_NonDateBoundSpec_SkipsOverlap(t *testing.T) {
	v, member := newTestValidator(t)

	sibling := &mealplan.Package{
		ID: "pkg-old", Member: member, Type: mealplan.FullTime,
		Meals:     allMeals(),
		StartDate: d(2026, time.January, 1), EndDate: d(2026, time.January, 31),
		Status: mealplan.StatusRenewed,
	}
	spec := mealplan.PartialSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: allMeals()},
		Totals:     mealplan.MealCounts{Lunch: 10},
	}

	assert.NoError(t, v.CheckMemberInvariants(spec, []*mealplan.Package{sibling}, d(2026, time.June, 1)))
}

// =============================================================================
// UPDATE VALIDATION
// =============================================================================

func TestValidateUpdate_PerTypeRules(t *testing.T) {
	v, member := newTestValidator(t)

	dateBound := &mealplan.Package{Member: member, Type: mealplan.FullTime, Meals: allMeals()}
	err := v.ValidateUpdate(dateBound, mealplan.UpdateRequest{
		StartDate: d(2026, time.March, 10),
		EndDate:   d(2026, time.March, 1),
	})
	assert.ErrorIs(t, err, mealplan.ErrValidation)

	partial := &mealplan.Package{Member: member, Type: mealplan.Partial, Meals: allMeals()}
	err = v.ValidateUpdate(partial, mealplan.UpdateRequest{})
	assert.ErrorIs(t, err, mealplan.ErrValidation)

	daily := &mealplan.Package{Member: member, Type: mealplan.DailyBasis, Meals: allMeals()}
	err = v.ValidateUpdate(daily, mealplan.UpdateRequest{MealRate: dec("-5")})
	assert.ErrorIs(t, err, mealplan.ErrValidation)

	assert.NoError(t, v.ValidateUpdate(daily, mealplan.UpdateRequest{MealRate: dec("30")}))
}
