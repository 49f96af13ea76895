/*
Package mealplan implements the cafeteria meal-package core.

PURPOSE:
  This package owns the package lifecycle state machine, structural
  validation, the prepaid balance ledger for daily-basis packages, and
  consumption tracking against entitlement counters. Calendar math
  lives in the calendar package; persistence behind Store interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: a cafeteria member (student, faculty, staff)
  - Package: the central entity, classified by PackageType
  - HistoryEntry: immutable record of a lifecycle transition
  - BalanceTransaction: immutable ledger entry (daily basis)

DESIGN PRINCIPLES:
  1. Precision: money uses decimal.Decimal, never float
  2. Tagged specs: each package type has its own creation spec carrying
     only the fields meaningful to that type
  3. Derived status: the stored status field is not authoritative for
     date-bound expiry; see EffectiveStatus in status.go
  4. Append-only history and ledger: transitions and balance changes
     are recorded, never rewritten

SEE ALSO:
  - status.go: EffectiveStatus derivation
  - validate.go: Structural and invariant validation
  - lifecycle.go: State machine and orchestration
  - ledger.go: Balance ledger for daily-basis packages
*/
package mealplan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/messkit/package-engine/calendar"
)

// MealSelection is shared with the calendar package so the calculator
// and the domain agree on which meals are enabled.
type MealSelection = calendar.MealSelection

// =============================================================================
// MEAL TYPES
// =============================================================================

type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

// AllMealTypes in display order.
var AllMealTypes = []MealType{MealBreakfast, MealLunch, MealDinner}

// ValidMealType reports whether s names a known meal type.
func ValidMealType(s string) bool {
	switch MealType(s) {
	case MealBreakfast, MealLunch, MealDinner:
		return true
	}
	return false
}

// Enabled reports whether the meal type is enabled in the selection.
func Enabled(sel MealSelection, meal MealType) bool {
	switch meal {
	case MealBreakfast:
		return sel.Breakfast
	case MealLunch:
		return sel.Lunch
	case MealDinner:
		return sel.Dinner
	}
	return false
}

// =============================================================================
// MEAL COUNTS - Per-meal integer counters (totals, consumed, carry-over)
// =============================================================================

type MealCounts struct {
	Breakfast int
	Lunch     int
	Dinner    int
}

func (c MealCounts) Total() int { return c.Breakfast + c.Lunch + c.Dinner }

func (c MealCounts) Get(meal MealType) int {
	switch meal {
	case MealBreakfast:
		return c.Breakfast
	case MealLunch:
		return c.Lunch
	case MealDinner:
		return c.Dinner
	}
	return 0
}

func (c MealCounts) Add(other MealCounts) MealCounts {
	return MealCounts{
		Breakfast: c.Breakfast + other.Breakfast,
		Lunch:     c.Lunch + other.Lunch,
		Dinner:    c.Dinner + other.Dinner,
	}
}

// Increment returns a copy with one more meal of the given type.
func (c MealCounts) Increment(meal MealType) MealCounts {
	switch meal {
	case MealBreakfast:
		c.Breakfast++
	case MealLunch:
		c.Lunch++
	case MealDinner:
		c.Dinner++
	}
	return c
}

// CountsFrom converts a calendar entitlement into meal counts.
func CountsFrom(e calendar.Entitlement) MealCounts {
	return MealCounts{Breakfast: e.Breakfast, Lunch: e.Lunch, Dinner: e.Dinner}
}

// =============================================================================
// MEMBER - External collaborator, referenced by (ID, Type)
// =============================================================================

type MemberType string

const (
	MemberStudent MemberType = "student"
	MemberFaculty MemberType = "faculty"
	MemberStaff   MemberType = "staff"
)

func ValidMemberType(s string) bool {
	switch MemberType(s) {
	case MemberStudent, MemberFaculty, MemberStaff:
		return true
	}
	return false
}

// MemberRef identifies a member across the package subsystem.
type MemberRef struct {
	ID   string
	Type MemberType
}

// Member is the registration subsystem's record. NaturalID is the
// type-specific identifier: roll number for students, employee ID for
// faculty and staff.
type Member struct {
	ID             string
	Type           MemberType
	Name           string
	NaturalID      string
	MealPreference MealSelection
	CreatedAt      time.Time
}

func (m Member) Ref() MemberRef { return MemberRef{ID: m.ID, Type: m.Type} }

// =============================================================================
// PACKAGE - The central entity
// =============================================================================

type PackageType string

const (
	FullTime        PackageType = "full_time"
	PartialFullTime PackageType = "partial_full_time"
	Partial         PackageType = "partial"
	DailyBasis      PackageType = "daily_basis"
)

// DateBound reports whether the package type derives entitlement from
// a calendar range.
func (t PackageType) DateBound() bool {
	return t == FullTime || t == PartialFullTime
}

func ValidPackageType(s string) bool {
	switch PackageType(s) {
	case FullTime, PartialFullTime, Partial, DailyBasis:
		return true
	}
	return false
}

type Status string

const (
	StatusActive      Status = "active"
	StatusExpired     Status = "expired"
	StatusRenewed     Status = "renewed"
	StatusDeactivated Status = "deactivated"
)

// Open reports whether the status counts against the
// one-package-per-member invariant.
func (s Status) Open() bool { return s == StatusActive || s == StatusDeactivated }

// Package is the persisted package record.
//
// Entitlement totals for date-bound types are derived by the calendar
// calculator at creation/renewal; Consumed is advanced only by the
// consumption tracker; Balance is advanced only by the ledger.
type Package struct {
	ID     string
	Member MemberRef
	Type   PackageType

	// Meal enablement is immutable after creation except through
	// renewal, which creates a new package.
	Meals MealSelection

	// Date-bound types only.
	StartDate     calendar.Date
	EndDate       calendar.Date
	DisabledDays  calendar.DisabledDays
	DisabledMeals calendar.DisabledMeals

	Totals      MealCounts
	Consumed    MealCounts
	CarriedOver MealCounts

	// CarriedOverFrom links a renewed-into package back to its
	// predecessor.
	CarriedOverFrom string

	Price    decimal.Decimal
	Discount decimal.Decimal

	// Daily basis only: per-meal debit rate and the materialized
	// ledger balance.
	MealRate decimal.Decimal
	Balance  decimal.Decimal

	Status             Status
	IsActive           bool
	DeactivationReason string

	CreatedAt time.Time
}

// DateRange returns the package's calendar range (date-bound types).
func (p *Package) DateRange() calendar.Range {
	return calendar.Range{Start: p.StartDate, End: p.EndDate}
}

// =============================================================================
// HISTORY - Immutable lifecycle transition log
// =============================================================================

type HistoryAction string

const (
	ActionCreated     HistoryAction = "created"
	ActionExpired     HistoryAction = "expired"
	ActionRenewed     HistoryAction = "renewed"
	ActionDeactivated HistoryAction = "deactivated"
	ActionReactivated HistoryAction = "reactivated"
)

// HistoryEntry snapshots a package at the moment of a transition.
// Append-only: never mutated or deleted (except by package hard-delete,
// which removes the package and everything attached to it).
type HistoryEntry struct {
	ID          string
	PackageID   string
	Action      HistoryAction
	PackageType PackageType
	Totals      MealCounts
	Consumed    MealCounts
	Balance     decimal.Decimal
	Note        string
	At          time.Time
}

// =============================================================================
// BALANCE TRANSACTIONS - Daily-basis ledger entries
// =============================================================================

type TransactionType string

const (
	TxDeposit TransactionType = "deposit"
	TxDebit   TransactionType = "debit"
)

// BalanceTransaction is an immutable ledger record. The package's
// Balance must always equal the sum of deposits minus debits.
type BalanceTransaction struct {
	ID          string
	PackageID   string
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	At          time.Time
}
