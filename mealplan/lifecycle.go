/*
lifecycle.go - Package state machine and orchestration

PURPOSE:
  Owns every lifecycle transition: create, update, renew, deactivate,
  reactivate, and the destructive hard delete. Orchestrates the
  validator, the calendar calculator, and the balance ledger, and
  appends an immutable history entry for every transition.

STATE MACHINE:
  States: active, expired, renewed, deactivated.
  "reactivated" is an action, not a state; it returns a deactivated
  package to active.

  create      -> active
  (time)      -> expired        derived, see status.go; persisted lazily
                                when a new package needs the member slot
  renew       -> renewed        original stamped, successor created
  deactivate  -> deactivated    only from effective active
  reactivate  -> active         only from deactivated
  delete      -> (gone)         any state; cascades history and ledger

ATOMICITY:
  Every transition runs under Store.WithTx. Creation re-reads the
  member's packages inside the transaction before checking the
  one-package and date-overlap invariants, so two concurrent creates
  for the same member cannot both pass validation on stale reads.

FAILURE SEMANTICS:
  Disallowed transitions are rejected with a StateError naming the
  remedy. Nothing is retried internally; every operation is a
  synchronous, administrator-triggered, single attempt.

SEE ALSO:
  - status.go: EffectiveStatus, consulted before every transition
  - validate.go: Structural rules and invariants
  - ledger.go: Deposit wiring for daily-basis creation/renewal
*/
package mealplan

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/messkit/package-engine/calendar"
)

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	store     TxStore
	validator *Validator

	// Now supplies the current date; overridable in tests.
	Now func() calendar.Date
}

func NewManager(store TxStore) *Manager {
	return &Manager{
		store:     store,
		validator: NewValidator(store),
		Now:       calendar.Today,
	}
}

// =============================================================================
// CREATE
// =============================================================================

// Create validates a spec and persists a new active package with a
// "created" history entry. For daily-basis specs the initial deposit
// is recorded through the ledger in the same transaction.
func (m *Manager) Create(ctx context.Context, spec PackageSpec) (*Package, error) {
	if err := m.validator.ValidateSpec(ctx, spec); err != nil {
		return nil, err
	}

	var result *Package
	err := m.store.WithTx(ctx, func(s Store) error {
		// Re-check invariants against rows read inside this
		// transaction; a pre-transaction check would race.
		existing, err := s.PackagesByMember(ctx, spec.Common().Member)
		if err != nil {
			return storageErr("load member packages", err)
		}
		today := m.Now()
		// Date-lapsed siblings still stored active get their derived
		// expiry persisted now, so the stored status (and the schema's
		// open-package index) releases the member's slot before the new
		// row is inserted.
		for _, p := range existing {
			if err := m.stampIfExpired(ctx, s, p, today); err != nil {
				return err
			}
		}
		if err := m.validator.CheckMemberInvariants(spec, existing, today); err != nil {
			return err
		}

		pkg := m.buildPackage(spec)
		if err := s.InsertPackage(ctx, pkg); err != nil {
			return storageErr("insert package", err)
		}

		if d, ok := spec.(DailyBasisSpec); ok {
			newBalance, err := applyLedgerEntry(ctx, s, pkg.ID, TxDeposit, d.InitialDeposit,
				"initial deposit", pkg.CreatedAt)
			if err != nil {
				return err
			}
			pkg.Balance = newBalance
		}

		if err := s.AppendHistory(ctx, m.historyEntry(pkg, ActionCreated, "")); err != nil {
			return storageErr("append history", err)
		}
		result = pkg
		return nil
	})
	return result, err
}

// buildPackage turns a validated spec into the initial package record.
func (m *Manager) buildPackage(spec PackageSpec) *Package {
	c := spec.Common()
	pkg := &Package{
		ID:        newID("pkg"),
		Member:    c.Member,
		Type:      spec.PackageType(),
		Meals:     c.Meals,
		Price:     c.Price,
		Discount:  c.Discount,
		Balance:   decimal.Zero,
		MealRate:  decimal.Zero,
		Status:    StatusActive,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	switch s := spec.(type) {
	case FullTimeSpec:
		pkg.StartDate, pkg.EndDate = s.StartDate, s.EndDate
		pkg.DisabledDays = cloneDays(s.DisabledDays)
		pkg.DisabledMeals = cloneMeals(s.DisabledMeals)
		pkg.Totals = CountsFrom(calendar.CountEntitlement(pkg.DateRange(), pkg.Meals, pkg.DisabledDays, pkg.DisabledMeals))
	case PartialFullTimeSpec:
		pkg.StartDate, pkg.EndDate = s.StartDate, s.EndDate
		pkg.DisabledDays = cloneDays(s.DisabledDays)
		pkg.DisabledMeals = cloneMeals(s.DisabledMeals)
		// Weekend auto-disable applies once, here at creation.
		// Admins may re-enable individual weekend days afterward by
		// editing the disabled set; edits never re-run this.
		for _, d := range calendar.WeekendsIn(pkg.DateRange()) {
			pkg.DisabledDays.Add(d)
		}
		pkg.Totals = CountsFrom(calendar.CountEntitlement(pkg.DateRange(), pkg.Meals, pkg.DisabledDays, pkg.DisabledMeals))
	case PartialSpec:
		pkg.Totals = s.Totals
	case DailyBasisSpec:
		pkg.MealRate = s.MealRate
	}
	return pkg
}

// =============================================================================
// UPDATE (edit)
// =============================================================================

// Update edits a package in place. Entitlement is recomputed for
// date-bound types from the submitted disable sets; the weekend
// auto-disable policy is NOT re-applied, so manual weekend exceptions
// survive date edits.
func (m *Manager) Update(ctx context.Context, packageID string, req UpdateRequest) (*Package, error) {
	var result *Package
	err := m.store.WithTx(ctx, func(s Store) error {
		pkg, err := loadPackage(ctx, s, packageID)
		if err != nil {
			return err
		}
		if err := m.validator.ValidateUpdate(pkg, req); err != nil {
			return err
		}

		switch pkg.Type {
		case FullTime, PartialFullTime:
			pkg.StartDate, pkg.EndDate = req.StartDate, req.EndDate
			pkg.DisabledDays = cloneDays(req.DisabledDays)
			pkg.DisabledMeals = cloneMeals(req.DisabledMeals)
			pkg.Totals = CountsFrom(calendar.CountEntitlement(pkg.DateRange(), pkg.Meals, pkg.DisabledDays, pkg.DisabledMeals))
		case Partial:
			pkg.Totals = req.Totals
		case DailyBasis:
			pkg.MealRate = req.MealRate
		}
		pkg.Price = req.Price
		pkg.Discount = req.Discount

		// An edit can shrink entitlement, but never below what is
		// already consumed.
		for _, meal := range AllMealTypes {
			if pkg.Consumed.Get(meal) > pkg.Totals.Get(meal) {
				return &ValidationError{
					Field:  "totals",
					Reason: fmt.Sprintf("%s total %d is below the %d already consumed", meal, pkg.Totals.Get(meal), pkg.Consumed.Get(meal)),
				}
			}
		}

		if err := s.UpdatePackage(ctx, pkg); err != nil {
			return storageErr("update package", err)
		}
		result = pkg
		return nil
	})
	return result, err
}

// =============================================================================
// RENEW
// =============================================================================

// RenewalRequest describes the successor package. Fields not
// meaningful to the original's type are ignored.
type RenewalRequest struct {
	// Date-bound types: the new period.
	StartDate     calendar.Date
	EndDate       calendar.Date
	DisabledDays  calendar.DisabledDays
	DisabledMeals calendar.DisabledMeals

	// Partial type: fresh totals plus opt-in carry-over of the
	// original's remaining entitlement.
	Totals    MealCounts
	CarryOver bool

	// Daily basis: a fresh initial deposit (the old balance is not
	// carried; the successor starts a new ledger).
	InitialDeposit decimal.Decimal

	// Optional overrides; zero values inherit from the original.
	Meals    *MealSelection
	Price    *decimal.Decimal
	Discount *decimal.Decimal
	MealRate *decimal.Decimal
}

// Renew stamps the original package renewed and creates its successor
// linked via CarriedOverFrom.
//
// Eligibility: partial and daily_basis renew from effective active or
// expired; date-bound types only once the range has lapsed, to keep
// active ranges from overlapping.
func (m *Manager) Renew(ctx context.Context, packageID string, req RenewalRequest) (*Package, error) {
	var result *Package
	err := m.store.WithTx(ctx, func(s Store) error {
		orig, err := loadPackage(ctx, s, packageID)
		if err != nil {
			return err
		}

		today := m.Now()
		status := EffectiveStatus(orig, today)
		switch status {
		case StatusRenewed:
			return &StateError{PackageID: orig.ID, Attempted: "renew", Status: status,
				Reason: "package was already renewed"}
		case StatusDeactivated:
			return &StateError{PackageID: orig.ID, Attempted: "renew", Status: status,
				Reason: "package is deactivated; reactivate or delete it first"}
		}
		if orig.Type.DateBound() && status == StatusActive {
			return &StateError{PackageID: orig.ID, Attempted: "renew", Status: status,
				Reason: "date-bound packages renew only after their period ends; wait for expiry"}
		}

		next, err := m.buildSuccessor(orig, req, status)
		if err != nil {
			return err
		}

		// Date-overlap invariant holds across renewals too: the new
		// period must not collide with any of the member's ranges.
		if next.Type.DateBound() {
			siblings, err := s.PackagesByMember(ctx, orig.Member)
			if err != nil {
				return storageErr("load member packages", err)
			}
			for _, p := range siblings {
				if !p.Type.DateBound() {
					continue
				}
				if next.DateRange().Overlaps(p.DateRange()) {
					return &InvariantViolationError{
						Member: orig.Member,
						Remedy: "dates " + next.DateRange().String() + " overlap package " + p.ID + "; choose different dates",
						base:   ErrDateOverlap,
					}
				}
			}
		}

		// Stamp the original with its final consumption snapshot.
		orig.Status = StatusRenewed
		orig.IsActive = false
		if err := s.UpdatePackage(ctx, orig); err != nil {
			return storageErr("update package", err)
		}
		if err := s.AppendHistory(ctx, m.historyEntry(orig, ActionRenewed, "renewed into "+next.ID)); err != nil {
			return storageErr("append history", err)
		}

		if err := s.InsertPackage(ctx, next); err != nil {
			return storageErr("insert package", err)
		}
		if orig.Type == DailyBasis {
			newBalance, err := applyLedgerEntry(ctx, s, next.ID, TxDeposit, req.InitialDeposit,
				"initial deposit (renewal)", next.CreatedAt)
			if err != nil {
				return err
			}
			next.Balance = newBalance
		}
		if err := s.AppendHistory(ctx, m.historyEntry(next, ActionCreated, "renewed from "+orig.ID)); err != nil {
			return storageErr("append history", err)
		}
		result = next
		return nil
	})
	return result, err
}

// buildSuccessor validates the renewal request against the original's
// type and constructs the new package.
func (m *Manager) buildSuccessor(orig *Package, req RenewalRequest, origStatus Status) (*Package, error) {
	meals := orig.Meals
	if req.Meals != nil {
		if !req.Meals.Any() {
			return nil, &ValidationError{Field: "meals", Reason: "at least one of breakfast, lunch, dinner must be enabled"}
		}
		meals = *req.Meals
	}

	next := &Package{
		ID:              newID("pkg"),
		Member:          orig.Member,
		Type:            orig.Type,
		Meals:           meals,
		Price:           orig.Price,
		Discount:        orig.Discount,
		MealRate:        orig.MealRate,
		Balance:         decimal.Zero,
		Status:          StatusActive,
		IsActive:        true,
		CarriedOverFrom: orig.ID,
		CreatedAt:       time.Now().UTC(),
	}
	if req.Price != nil {
		next.Price = *req.Price
	}
	if req.Discount != nil {
		next.Discount = *req.Discount
	}
	if req.MealRate != nil {
		next.MealRate = *req.MealRate
	}

	switch orig.Type {
	case FullTime, PartialFullTime:
		if err := validateDateRange(req.StartDate, req.EndDate); err != nil {
			return nil, err
		}
		next.StartDate, next.EndDate = req.StartDate, req.EndDate
		next.DisabledDays = cloneDays(req.DisabledDays)
		next.DisabledMeals = cloneMeals(req.DisabledMeals)
		if orig.Type == PartialFullTime {
			// The new period is a fresh date-range selection, so the
			// weekend auto-disable applies once here too.
			for _, d := range calendar.WeekendsIn(next.DateRange()) {
				next.DisabledDays.Add(d)
			}
		}
		next.Totals = CountsFrom(calendar.CountEntitlement(next.DateRange(), next.Meals, next.DisabledDays, next.DisabledMeals))

	case Partial:
		if req.Totals.Breakfast <= 0 && req.Totals.Lunch <= 0 && req.Totals.Dinner <= 0 {
			return nil, &ValidationError{Field: "totals", Reason: "at least one meal total must be a positive number"}
		}
		next.Totals = req.Totals
		if req.CarryOver && origStatus == StatusActive {
			// Remaining entitlement stacks on top of the fresh totals.
			// An effectively-expired original carries zero regardless
			// of its stored remainder.
			next.CarriedOver = Remaining(orig)
			next.Totals = next.Totals.Add(next.CarriedOver)
		}

	case DailyBasis:
		if !req.InitialDeposit.IsPositive() {
			return nil, &ValidationError{Field: "initial_deposit", Reason: "a fresh initial deposit greater than zero is required"}
		}
	}
	return next, nil
}

// =============================================================================
// DEACTIVATE / REACTIVATE
// =============================================================================

// Deactivate suspends an effectively active package. Entitlement and
// balance are preserved unchanged; nothing is consumed or reset.
func (m *Manager) Deactivate(ctx context.Context, packageID, reason string) (*Package, error) {
	var result *Package
	err := m.store.WithTx(ctx, func(s Store) error {
		pkg, err := loadPackage(ctx, s, packageID)
		if err != nil {
			return err
		}
		status := EffectiveStatus(pkg, m.Now())
		if status != StatusActive {
			return &StateError{PackageID: pkg.ID, Attempted: "deactivate", Status: status,
				Reason: "only an active package can be deactivated"}
		}
		pkg.Status = StatusDeactivated
		pkg.IsActive = false
		pkg.DeactivationReason = reason
		if err := s.UpdatePackage(ctx, pkg); err != nil {
			return storageErr("update package", err)
		}
		if err := s.AppendHistory(ctx, m.historyEntry(pkg, ActionDeactivated, reason)); err != nil {
			return storageErr("append history", err)
		}
		result = pkg
		return nil
	})
	return result, err
}

// Reactivate resumes a deactivated package exactly where it was
// suspended. Nothing is recomputed.
func (m *Manager) Reactivate(ctx context.Context, packageID string) (*Package, error) {
	var result *Package
	err := m.store.WithTx(ctx, func(s Store) error {
		pkg, err := loadPackage(ctx, s, packageID)
		if err != nil {
			return err
		}
		if pkg.Status != StatusDeactivated {
			return &StateError{PackageID: pkg.ID, Attempted: "reactivate", Status: EffectiveStatus(pkg, m.Now()),
				Reason: "only a deactivated package can be reactivated"}
		}
		pkg.Status = StatusActive
		pkg.IsActive = true
		pkg.DeactivationReason = ""
		if err := s.UpdatePackage(ctx, pkg); err != nil {
			return storageErr("update package", err)
		}
		if err := s.AppendHistory(ctx, m.historyEntry(pkg, ActionReactivated, "")); err != nil {
			return storageErr("append history", err)
		}
		result = pkg
		return nil
	})
	return result, err
}

// =============================================================================
// DELETE
// =============================================================================

// Delete hard-deletes a package with its history and transactions.
// Permitted from any state: it is a destructive administrative
// override, and it frees the member for a new package.
func (m *Manager) Delete(ctx context.Context, packageID string) error {
	return m.store.WithTx(ctx, func(s Store) error {
		if _, err := loadPackage(ctx, s, packageID); err != nil {
			return err
		}
		if err := s.DeletePackage(ctx, packageID); err != nil {
			return storageErr("delete package", err)
		}
		return nil
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a package by ID.
func (m *Manager) Get(ctx context.Context, packageID string) (*Package, error) {
	return loadPackage(ctx, m.store, packageID)
}

// History returns the package's transition log, chronologically.
func (m *Manager) History(ctx context.Context, packageID string) ([]HistoryEntry, error) {
	entries, err := m.store.HistoryByPackage(ctx, packageID)
	if err != nil {
		return nil, storageErr("load history", err)
	}
	return entries, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// stampIfExpired persists the derived expiry of a date-lapsed package
// whose stored status is still active. Expiry is normally derived on
// read and never written; the one exception is here, where the stored
// row must release the member's open-package slot (the sqlite store
// enforces that slot with a partial unique index over stored status)
// before a successor row can be inserted.
func (m *Manager) stampIfExpired(ctx context.Context, s Store, p *Package, today calendar.Date) error {
	if p.Status != StatusActive || EffectiveStatus(p, today) != StatusExpired {
		return nil
	}
	p.Status = StatusExpired
	p.IsActive = false
	if err := s.UpdatePackage(ctx, p); err != nil {
		return storageErr("update package", err)
	}
	if err := s.AppendHistory(ctx, m.historyEntry(p, ActionExpired, "period ended "+p.EndDate.String())); err != nil {
		return storageErr("append history", err)
	}
	return nil
}

func (m *Manager) historyEntry(p *Package, action HistoryAction, note string) HistoryEntry {
	return HistoryEntry{
		ID:          newID("hist"),
		PackageID:   p.ID,
		Action:      action,
		PackageType: p.Type,
		Totals:      p.Totals,
		Consumed:    p.Consumed,
		Balance:     p.Balance,
		Note:        note,
		At:          time.Now().UTC(),
	}
}

func cloneDays(dd calendar.DisabledDays) calendar.DisabledDays {
	out := make(calendar.DisabledDays, len(dd))
	for k, v := range dd {
		out[k] = v
	}
	return out
}

func cloneMeals(dm calendar.DisabledMeals) calendar.DisabledMeals {
	out := make(calendar.DisabledMeals, len(dm))
	for k, v := range dm {
		out[k] = v
	}
	return out
}

var idSeq atomic.Int64

func newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idSeq.Add(1))
}
