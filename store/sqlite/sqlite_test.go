package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messkit/package-engine/calendar"
	"github.com/messkit/package-engine/mealplan"
	"github.com/messkit/package-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func samplePackage(id string, member mealplan.MemberRef) *mealplan.Package {
	var days calendar.DisabledDays
	days.Add(calendar.NewDate(2026, time.January, 5))
	return &mealplan.Package{
		ID:           id,
		Member:       member,
		Type:         mealplan.FullTime,
		Meals:        mealplan.MealSelection{Breakfast: true, Lunch: true, Dinner: true},
		StartDate:    calendar.NewDate(2026, time.January, 1),
		EndDate:      calendar.NewDate(2026, time.January, 31),
		DisabledDays: days,
		DisabledMeals: calendar.DisabledMeals{
			"2026-01-10": {Breakfast: true},
		},
		Totals:    mealplan.MealCounts{Breakfast: 29, Lunch: 30, Dinner: 30},
		Consumed:  mealplan.MealCounts{Lunch: 3},
		Price:     dec("3000.50"),
		Discount:  dec("150"),
		MealRate:  decimal.Zero,
		Balance:   decimal.Zero,
		Status:    mealplan.StatusActive,
		IsActive:  true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// =============================================================================
// PACKAGE ROUND TRIPS
// =============================================================================

func TestPackage_InsertAndGet_RoundTrip(t *testing.T) {
	// GIVEN: A fully populated package row
	// WHEN: Inserting and reading it back
	// THEN: Every field survives, including decimals and disable sets

	s := newTestStore(t)
	ctx := context.Background()
	member := mealplan.MemberRef{ID: "stu-1", Type: mealplan.MemberStudent}

	pkg := samplePackage("pkg-1", member)
	require.NoError(t, s.InsertPackage(ctx, pkg))

	got, err := s.GetPackage(ctx, "pkg-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, pkg.Member, got.Member)
	assert.Equal(t, pkg.Type, got.Type)
	assert.Equal(t, pkg.Meals, got.Meals)
	assert.Equal(t, "2026-01-01", got.StartDate.String())
	assert.Equal(t, "2026-01-31", got.EndDate.String())
	assert.True(t, got.DisabledDays.Contains(calendar.NewDate(2026, time.January, 5)))
	assert.True(t, got.DisabledMeals.IsDisabled(calendar.NewDate(2026, time.January, 10), "breakfast"))
	assert.Equal(t, pkg.Totals, got.Totals)
	assert.Equal(t, pkg.Consumed, got.Consumed)
	assert.True(t, got.Price.Equal(dec("3000.50")))
	assert.True(t, got.Discount.Equal(dec("150")))
	assert.Equal(t, mealplan.StatusActive, got.Status)
	assert.True(t, got.IsActive)
}

func TestPackage_GetMissing_ReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetPackage(context.Background(), "pkg-nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPackage_UpdateNeverTouchesBalance(t *testing.T) {
	// GIVEN: A package whose balance was moved via ApplyBalanceDelta
	// WHEN: UpdatePackage runs with a stale in-memory balance
	// THEN: The stored balance is preserved

	s := newTestStore(t)
	ctx := context.Background()
	member := mealplan.MemberRef{ID: "stf-1", Type: mealplan.MemberStaff}

	pkg := samplePackage("pkg-1", member)
	pkg.Type = mealplan.DailyBasis
	pkg.StartDate, pkg.EndDate = calendar.Date{}, calendar.Date{}
	pkg.MealRate = dec("25")
	require.NoError(t, s.InsertPackage(ctx, pkg))

	_, err := s.ApplyBalanceDelta(ctx, pkg.ID, dec("500"))
	require.NoError(t, err)

	pkg.Balance = dec("999999") // stale; must not be written
	pkg.DeactivationReason = "note"
	require.NoError(t, s.UpdatePackage(ctx, pkg))

	got, err := s.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("500")), "got %s", got.Balance)
	assert.Equal(t, "note", got.DeactivationReason)
}

func TestPackagesByMember_FiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mealplan.MemberRef{ID: "stu-1", Type: mealplan.MemberStudent}
	bob := mealplan.MemberRef{ID: "stu-2", Type: mealplan.MemberStudent}

	first := samplePackage("pkg-1", alice)
	first.Status = mealplan.StatusRenewed
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.InsertPackage(ctx, first))

	second := samplePackage("pkg-2", alice)
	second.StartDate = calendar.NewDate(2026, time.February, 1)
	second.EndDate = calendar.NewDate(2026, time.February, 28)
	require.NoError(t, s.InsertPackage(ctx, second))

	other := samplePackage("pkg-3", bob)
	require.NoError(t, s.InsertPackage(ctx, other))

	got, err := s.PackagesByMember(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pkg-1", got[0].ID)
	assert.Equal(t, "pkg-2", got[1].ID)
}

// =============================================================================
// SCHEMA-LEVEL INVARIANT
// =============================================================================

func TestSchema_SecondOpenPackageForMember_Rejected(t *testing.T) {
	// GIVEN: A member with an active package
	// WHEN: Inserting a second open (active or deactivated) package
	//       directly at the storage layer
	// THEN: The partial unique index rejects it even though application
	//       validation was bypassed

	s := newTestStore(t)
	ctx := context.Background()
	member := mealplan.MemberRef{ID: "stu-1", Type: mealplan.MemberStudent}

	require.NoError(t, s.InsertPackage(ctx, samplePackage("pkg-1", member)))

	second := samplePackage("pkg-2", member)
	second.Status = mealplan.StatusDeactivated
	second.IsActive = false
	assert.Error(t, s.InsertPackage(ctx, second), "index must reject a second open package")

	// Closed statuses do not count against the invariant.
	third := samplePackage("pkg-3", member)
	third.Status = mealplan.StatusRenewed
	third.IsActive = false
	assert.NoError(t, s.InsertPackage(ctx, third))
}

// =============================================================================
// MANAGER AGAINST THE REAL SCHEMA
// =============================================================================

func TestManager_CreateAfterDateLapse_ReleasesIndexSlot(t *testing.T) {
	// GIVEN: A January package whose range lapsed with stored status
	//        still "active" (expiry is derived, not written on read)
	// WHEN: Creating a March package for the same member through the
	//       manager, against the real schema
	// THEN: The lapsed row is stamped expired inside the transaction, so
	//       the open-package index admits the new row

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertMember(ctx, &mealplan.Member{
		ID: "stu-1", Type: mealplan.MemberStudent, Name: "Asha Rao",
		NaturalID: "ROLL-2026-017", CreatedAt: time.Now().UTC(),
	}))
	member := mealplan.MemberRef{ID: "stu-1", Type: mealplan.MemberStudent}
	meals := mealplan.MealSelection{Breakfast: true, Lunch: true, Dinner: true}

	m := mealplan.NewManager(s)
	m.Now = func() calendar.Date { return calendar.NewDate(2026, time.January, 15) }
	first, err := m.Create(ctx, mealplan.FullTimeSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: meals},
		StartDate:  calendar.NewDate(2026, time.January, 1),
		EndDate:    calendar.NewDate(2026, time.January, 31),
	})
	require.NoError(t, err)

	m.Now = func() calendar.Date { return calendar.NewDate(2026, time.February, 10) }
	second, err := m.Create(ctx, mealplan.FullTimeSpec{
		SpecCommon: mealplan.SpecCommon{Member: member, Meals: meals},
		StartDate:  calendar.NewDate(2026, time.March, 1),
		EndDate:    calendar.NewDate(2026, time.March, 31),
	})
	require.NoError(t, err, "a lapsed predecessor must not block the insert")
	assert.Equal(t, mealplan.StatusActive, second.Status)

	got, err := s.GetPackage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, mealplan.StatusExpired, got.Status)
	assert.False(t, got.IsActive)
}

// =============================================================================
// HISTORY AND LEDGER
// =============================================================================

func TestHistoryAndTransactions_AppendAndCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	member := mealplan.MemberRef{ID: "stf-1", Type: mealplan.MemberStaff}

	pkg := samplePackage("pkg-1", member)
	require.NoError(t, s.InsertPackage(ctx, pkg))

	require.NoError(t, s.AppendHistory(ctx, mealplan.HistoryEntry{
		ID: "hist-1", PackageID: pkg.ID, Action: mealplan.ActionCreated,
		PackageType: pkg.Type, Totals: pkg.Totals, Balance: decimal.Zero,
		At: time.Now().UTC(),
	}))
	require.NoError(t, s.AppendTransaction(ctx, mealplan.BalanceTransaction{
		ID: "btx-1", PackageID: pkg.ID, Type: mealplan.TxDeposit,
		Amount: dec("100"), Description: "initial deposit", At: time.Now().UTC(),
	}))

	hist, err := s.HistoryByPackage(ctx, pkg.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, mealplan.ActionCreated, hist[0].Action)

	txs, err := s.TransactionsByPackage(ctx, pkg.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(dec("100")))

	require.NoError(t, s.DeletePackage(ctx, pkg.ID))

	hist, err = s.HistoryByPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)
	txs, err = s.TransactionsByPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestApplyBalanceDelta_DecimalArithmetic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	member := mealplan.MemberRef{ID: "stf-1", Type: mealplan.MemberStaff}
	require.NoError(t, s.InsertPackage(ctx, samplePackage("pkg-1", member)))

	balance, err := s.ApplyBalanceDelta(ctx, "pkg-1", dec("0.10"))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		balance, err = s.ApplyBalanceDelta(ctx, "pkg-1", dec("0.10"))
		require.NoError(t, err)
	}
	assert.True(t, balance.Equal(dec("0.30")), "decimal strings avoid float drift, got %s", balance)

	balance, err = s.ApplyBalanceDelta(ctx, "pkg-1", dec("-0.30"))
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts then fails
	// THEN: Nothing is persisted

	s := newTestStore(t)
	ctx := context.Background()
	member := mealplan.MemberRef{ID: "stu-1", Type: mealplan.MemberStudent}

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx mealplan.Store) error {
		if err := tx.InsertPackage(ctx, samplePackage("pkg-1", member)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetPackage(ctx, "pkg-1")
	require.NoError(t, err)
	assert.Nil(t, got, "rolled-back insert must not persist")
}

func TestWithTx_CommitOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	member := mealplan.MemberRef{ID: "stu-1", Type: mealplan.MemberStudent}

	err := s.WithTx(ctx, func(tx mealplan.Store) error {
		return tx.InsertPackage(ctx, samplePackage("pkg-1", member))
	})
	require.NoError(t, err)

	got, err := s.GetPackage(ctx, "pkg-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestMembers_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	member := &mealplan.Member{
		ID:             "stu-1",
		Type:           mealplan.MemberStudent,
		Name:           "Asha Rao",
		NaturalID:      "ROLL-2026-017",
		MealPreference: mealplan.MealSelection{Breakfast: true, Lunch: true},
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.InsertMember(ctx, member))

	got, err := s.GetMember(ctx, member.Ref())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Asha Rao", got.Name)
	assert.Equal(t, "ROLL-2026-017", got.NaturalID)
	assert.Equal(t, member.MealPreference, got.MealPreference)

	missing, err := s.GetMember(ctx, mealplan.MemberRef{ID: "ghost", Type: mealplan.MemberFaculty})
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Same ID under a different member type is a distinct record.
	faculty := &mealplan.Member{
		ID: "stu-1", Type: mealplan.MemberFaculty, Name: "Dr. Rao",
		NaturalID: "EMP-88", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.InsertMember(ctx, faculty))

	all, err := s.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
