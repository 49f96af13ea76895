package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messkit/package-engine/calendar"
	"github.com/messkit/package-engine/mealplan"
	"github.com/messkit/package-engine/mealplan/store"
)

func storedPackage(id string) *mealplan.Package {
	var days calendar.DisabledDays
	days.Add(calendar.NewDate(2026, time.January, 3))
	return &mealplan.Package{
		ID:           id,
		Member:       mealplan.MemberRef{ID: "stu-1", Type: mealplan.MemberStudent},
		Type:         mealplan.PartialFullTime,
		Meals:        mealplan.MealSelection{Breakfast: true, Lunch: true, Dinner: true},
		StartDate:    calendar.NewDate(2026, time.January, 1),
		EndDate:      calendar.NewDate(2026, time.January, 31),
		DisabledDays: days,
		DisabledMeals: calendar.DisabledMeals{
			"2026-01-10": {Breakfast: true},
		},
		Totals:    mealplan.MealCounts{Breakfast: 21, Lunch: 22, Dinner: 22},
		Price:     decimal.NewFromInt(3000),
		Status:    mealplan.StatusActive,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemory_CopiesDisableSetsBothWays(t *testing.T) {
	// GIVEN: A stored package with disable sets
	// WHEN: Mutating the caller's original and a returned copy
	// THEN: The stored row sees neither mutation

	s := store.NewMemory()
	ctx := context.Background()
	orig := storedPackage("pkg-1")
	require.NoError(t, s.InsertPackage(ctx, orig))

	orig.DisabledDays.Add(calendar.NewDate(2026, time.January, 7))

	got, err := s.GetPackage(ctx, "pkg-1")
	require.NoError(t, err)
	assert.False(t, got.DisabledDays.Contains(calendar.NewDate(2026, time.January, 7)),
		"caller-side mutation must not reach the stored row")

	got.DisabledDays.Add(calendar.NewDate(2026, time.January, 8))
	got.DisabledMeals["2026-01-12"] = mealplan.MealSelection{Lunch: true}

	again, err := s.GetPackage(ctx, "pkg-1")
	require.NoError(t, err)
	assert.False(t, again.DisabledDays.Contains(calendar.NewDate(2026, time.January, 8)))
	assert.False(t, again.DisabledMeals.IsDisabled(calendar.NewDate(2026, time.January, 12), "lunch"))
}

func TestMemory_UpdateMissingPackage_Errors(t *testing.T) {
	s := store.NewMemory()
	err := s.UpdatePackage(context.Background(), storedPackage("ghost"))
	assert.Error(t, err)
}

func TestMemory_ApplyBalanceDelta_MissingPackage_Errors(t *testing.T) {
	s := store.NewMemory()
	_, err := s.ApplyBalanceDelta(context.Background(), "ghost", decimal.NewFromInt(10))
	assert.Error(t, err)
}
