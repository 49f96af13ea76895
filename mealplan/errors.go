/*
errors.go - Centralized error types for the meal-package core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every rejection carries a specific, human-readable reason: the
  administrator must know the exact remedy (wait for expiry, delete
  the old package, choose different dates, deposit first, ...).

ERROR CATEGORIES:
  1. Validation errors  - structural/input problems
  2. Invariant errors   - one-package-per-member, date overlap
  3. State errors       - illegal lifecycle transitions
  4. Entitlement errors - consumption would exceed totals
  5. Storage errors     - persistence failures, propagated unchanged

  None of these are retried internally; they are definite rejections,
  not transient failures.

USAGE:
  if errors.Is(err, mealplan.ErrMemberHasOpenPackage) { ... }

  var stateErr *mealplan.StateError
  if errors.As(err, &stateErr) { ... }

SEE ALSO:
  - validate.go: Produces validation and invariant errors
  - lifecycle.go: Produces state errors
  - consumption.go: Produces entitlement-exhausted errors
*/
package mealplan

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base error for structural input problems.
	ErrValidation = errors.New("validation failed")

	// ErrInvariantViolation is the base error for cross-package
	// invariant breaks (one open package per member, date overlap).
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrIllegalTransition is the base error for disallowed lifecycle
	// transitions.
	ErrIllegalTransition = errors.New("illegal lifecycle transition")

	// ErrEntitlementExhausted is returned when a check-in would push
	// consumed past total for a meal type.
	ErrEntitlementExhausted = errors.New("entitlement exhausted")

	// ErrInsufficientBalance is returned when a debit would overdraw a
	// daily-basis package.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMemberHasOpenPackage is returned on create when the member
	// already holds an active or deactivated package.
	ErrMemberHasOpenPackage = errors.New("member already has a package")

	// ErrDateOverlap is returned on create when the proposed date range
	// overlaps an existing date-bound package for the same member.
	ErrDateOverlap = errors.New("date range overlaps existing package")

	// ErrPackageNotFound is returned when a referenced package does not
	// exist.
	ErrPackageNotFound = errors.New("package not found")

	// ErrMemberNotFound is returned when a referenced member does not
	// exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrStorage wraps persistence-layer failures. The core performs no
	// silent recovery; a failed operation leaves no partial state.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a structural problem with a create/update
// request. Field names which input was at fault.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvariantViolationError reports a cross-package invariant break,
// with the remedy the administrator should take.
type InvariantViolationError struct {
	Member MemberRef
	Remedy string
	base   error
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s for member %s (%s): %s", e.base, e.Member.ID, e.Member.Type, e.Remedy)
}

func (e *InvariantViolationError) Unwrap() error { return e.base }

// Is lets errors.Is match both the specific base and the category.
func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolation || target == e.base
}

// StateError reports a disallowed lifecycle transition with the
// package's effective status at the time.
type StateError struct {
	PackageID string
	Attempted string
	Status    Status
	Reason    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s package %s (status %s): %s", e.Attempted, e.PackageID, e.Status, e.Reason)
}

func (e *StateError) Unwrap() error { return ErrIllegalTransition }

// EntitlementExhaustedError reports which meal ran out.
type EntitlementExhaustedError struct {
	PackageID string
	Meal      MealType
	Total     int
	Consumed  int
}

func (e *EntitlementExhaustedError) Error() string {
	return fmt.Sprintf("no %s entitlement left on package %s (%d of %d consumed)",
		e.Meal, e.PackageID, e.Consumed, e.Total)
}

func (e *EntitlementExhaustedError) Unwrap() error { return ErrEntitlementExhausted }

// InsufficientBalanceError reports a daily-basis overdraw.
type InsufficientBalanceError struct {
	PackageID string
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on package %s: have %s, need %s",
		e.PackageID, e.Balance, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// StorageError wraps an underlying persistence failure unchanged.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

// Unwrap exposes both the category sentinel and the underlying driver
// error, so errors.Is can match either.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid admin
// input or a definite business-rule rejection (HTTP 4xx territory).
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrEntitlementExhausted) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPackageNotFound) || errors.Is(err, ErrMemberNotFound)
}
