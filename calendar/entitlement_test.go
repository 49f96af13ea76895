package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/messkit/package-engine/calendar"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(year int, month time.Month, day int) calendar.Date {
	return calendar.NewDate(year, month, day)
}

func allMeals() calendar.MealSelection {
	return calendar.MealSelection{Breakfast: true, Lunch: true, Dinner: true}
}

func january2026() calendar.Range {
	return calendar.Range{Start: d(2026, time.January, 1), End: d(2026, time.January, 31)}
}

// =============================================================================
// DATE AND RANGE TESTS
// =============================================================================

func TestRange_Days_InclusiveBounds(t *testing.T) {
	// GIVEN: A seven-day range
	// WHEN: Enumerating its days
	// THEN: Both endpoints are included

	rng := calendar.Range{Start: d(2026, time.March, 1), End: d(2026, time.March, 7)}
	days := rng.Days()

	assert.Len(t, days, 7)
	assert.Equal(t, "2026-03-01", days[0].String())
	assert.Equal(t, "2026-03-07", days[6].String())
}

func TestRange_SingleDay(t *testing.T) {
	rng := calendar.Range{Start: d(2026, time.March, 1), End: d(2026, time.March, 1)}
	assert.True(t, rng.IsValid())
	assert.Len(t, rng.Days(), 1)
}

func TestRange_Reversed_Invalid(t *testing.T) {
	// GIVEN: start > end
	// THEN: The range is invalid and enumerates zero days, never negative

	rng := calendar.Range{Start: d(2026, time.March, 7), End: d(2026, time.March, 1)}
	assert.False(t, rng.IsValid())
	assert.Empty(t, rng.Days())
}

func TestRange_Overlaps(t *testing.T) {
	base := calendar.Range{Start: d(2026, time.March, 10), End: d(2026, time.March, 20)}

	cases := []struct {
		name    string
		other   calendar.Range
		overlap bool
	}{
		{"fully before", calendar.Range{Start: d(2026, time.March, 1), End: d(2026, time.March, 9)}, false},
		{"touching start", calendar.Range{Start: d(2026, time.March, 1), End: d(2026, time.March, 10)}, true},
		{"contained", calendar.Range{Start: d(2026, time.March, 12), End: d(2026, time.March, 15)}, true},
		{"touching end", calendar.Range{Start: d(2026, time.March, 20), End: d(2026, time.March, 25)}, true},
		{"fully after", calendar.Range{Start: d(2026, time.March, 21), End: d(2026, time.March, 31)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overlap, base.Overlaps(tc.other))
			assert.Equal(t, tc.overlap, tc.other.Overlaps(base))
		})
	}
}

func TestWeekendsIn_January2026(t *testing.T) {
	// January 2026: Saturdays are 3, 10, 17, 24, 31; Sundays 4, 11, 18, 25.
	weekends := calendar.WeekendsIn(january2026())
	assert.Len(t, weekends, 9)
	for _, day := range weekends {
		assert.True(t, day.IsWeekend(), "%s should be a weekend", day)
	}
}

// =============================================================================
// ENTITLEMENT CALCULATOR TESTS
// =============================================================================

func TestCountEntitlement_FullMonth_AllMeals(t *testing.T) {
	// GIVEN: A 31-day range, all three meals enabled, nothing disabled
	// WHEN: Counting entitlement
	// THEN: 31 per meal, 93 total

	e := calendar.CountEntitlement(january2026(), allMeals(), nil, nil)

	assert.Equal(t, 31, e.Breakfast)
	assert.Equal(t, 31, e.Lunch)
	assert.Equal(t, 31, e.Dinner)
	assert.Equal(t, 93, e.Total())
}

func TestCountEntitlement_SubsetOfMeals(t *testing.T) {
	// GIVEN: Only lunch and dinner enabled
	// THEN: Breakfast contributes zero

	sel := calendar.MealSelection{Lunch: true, Dinner: true}
	e := calendar.CountEntitlement(january2026(), sel, nil, nil)

	assert.Equal(t, 0, e.Breakfast)
	assert.Equal(t, 31, e.Lunch)
	assert.Equal(t, 31, e.Dinner)
	assert.Equal(t, 62, e.Total())
}

func TestCountEntitlement_DisabledDays_RemoveWholeDays(t *testing.T) {
	// GIVEN: Two dates fully disabled
	// THEN: Each removes one unit from every enabled meal

	var dd calendar.DisabledDays
	dd.Add(d(2026, time.January, 5))
	dd.Add(d(2026, time.January, 6))

	e := calendar.CountEntitlement(january2026(), allMeals(), dd, nil)

	assert.Equal(t, 29, e.Breakfast)
	assert.Equal(t, 29, e.Lunch)
	assert.Equal(t, 29, e.Dinner)
	assert.Equal(t, 87, e.Total())
}

func TestCountEntitlement_DisabledMeals_RemoveSingleMeals(t *testing.T) {
	// GIVEN: Breakfast disabled on Jan 5, dinner disabled on Jan 6
	// THEN: Only those specific (day, meal) units are removed

	dm := calendar.DisabledMeals{
		"2026-01-05": {Breakfast: true},
		"2026-01-06": {Dinner: true},
	}

	e := calendar.CountEntitlement(january2026(), allMeals(), nil, dm)

	assert.Equal(t, 30, e.Breakfast)
	assert.Equal(t, 31, e.Lunch)
	assert.Equal(t, 30, e.Dinner)
}

func TestCountEntitlement_BothMechanisms_Additive(t *testing.T) {
	// GIVEN: Jan 5 fully disabled AND breakfast disabled on Jan 6
	// WHEN: Counting with both mechanisms
	// THEN: Effects combine; the disabled day swallows its per-meal
	//       entries without double-counting

	var dd calendar.DisabledDays
	dd.Add(d(2026, time.January, 5))
	dm := calendar.DisabledMeals{
		"2026-01-05": {Breakfast: true}, // already fully disabled, no extra effect
		"2026-01-06": {Breakfast: true},
	}

	e := calendar.CountEntitlement(january2026(), allMeals(), dd, dm)

	assert.Equal(t, 29, e.Breakfast)
	assert.Equal(t, 30, e.Lunch)
	assert.Equal(t, 30, e.Dinner)
}

func TestCountEntitlement_AllEnabledMealsDisabledPerDay_DayContributesNothing(t *testing.T) {
	// GIVEN: Every enabled meal individually disabled on Jan 5, without
	//        the day appearing in disabled_days
	// THEN: The day contributes zero, same as a fully disabled day

	dm := calendar.DisabledMeals{
		"2026-01-05": {Breakfast: true, Lunch: true, Dinner: true},
	}

	e := calendar.CountEntitlement(january2026(), allMeals(), nil, dm)
	assert.Equal(t, 90, e.Total())
}

func TestCountEntitlement_DisabledMealOutsideSelection_NoEffect(t *testing.T) {
	// GIVEN: Breakfast is not enabled, but a day disables breakfast
	// THEN: No effect; you cannot disable what was never counted

	sel := calendar.MealSelection{Lunch: true}
	dm := calendar.DisabledMeals{"2026-01-05": {Breakfast: true}}

	e := calendar.CountEntitlement(january2026(), sel, nil, dm)
	assert.Equal(t, 31, e.Lunch)
	assert.Equal(t, 31, e.Total())
}

func TestCountEntitlement_ReversedRange_Zero(t *testing.T) {
	rng := calendar.Range{Start: d(2026, time.January, 31), End: d(2026, time.January, 1)}
	e := calendar.CountEntitlement(rng, allMeals(), nil, nil)
	assert.Equal(t, 0, e.Total())
}

func TestCountEntitlement_Deterministic(t *testing.T) {
	// GIVEN: Identical inputs
	// THEN: Identical outputs, every time

	var dd calendar.DisabledDays
	dd.Add(d(2026, time.January, 10))
	dm := calendar.DisabledMeals{"2026-01-12": {Lunch: true}}

	first := calendar.CountEntitlement(january2026(), allMeals(), dd, dm)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, calendar.CountEntitlement(january2026(), allMeals(), dd, dm))
	}
}

func TestEntitlement_TotalIsAlwaysSumOfMeals(t *testing.T) {
	// Property: total == breakfast + lunch + dinner for any disable mix.
	var dd calendar.DisabledDays
	dd.Add(d(2026, time.January, 3))
	dd.Add(d(2026, time.January, 17))
	dm := calendar.DisabledMeals{
		"2026-01-04": {Breakfast: true, Dinner: true},
		"2026-01-20": {Lunch: true},
	}

	e := calendar.CountEntitlement(january2026(), allMeals(), dd, dm)
	assert.Equal(t, e.Breakfast+e.Lunch+e.Dinner, e.Total())
}
