/*
store.go - Persistence ports for the meal-package core

PURPOSE:
  Defines the interface between the domain logic and the database.
  The core never talks SQL; it talks these interfaces. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  PackageStore:     Package rows (the only mutable table)
  HistoryStore:     Append-only lifecycle transition log
  TransactionStore: Append-only balance ledger + atomic balance update
  MemberStore:      Member lookup (owned by the registration system)
  TxStore:          Atomic read-check-write composition

ATOMICITY CONTRACT:
  The one-package-per-member and date-overlap invariants are checked
  and written under a single WithTx call, so a second concurrent
  create cannot slip past a check made against stale data. Balance
  changes go through ApplyBalanceDelta (an atomic increment at the
  storage layer), never read-modify-write in the application.

APPEND-ONLY CONTRACT:
  History and transaction stores have no update or per-row delete.
  The only way those rows disappear is DeletePackage, the destructive
  administrative override, which cascades.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - mealplan/store: in-memory store for tests and dev

SEE ALSO:
  - lifecycle.go: Uses WithTx for every transition
  - ledger.go: Uses TransactionStore
*/
package mealplan

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

// PackageStore persists package rows.
// Lookups return (nil, nil) when the record does not exist; callers
// translate that into ErrPackageNotFound with context.
type PackageStore interface {
	InsertPackage(ctx context.Context, p *Package) error
	UpdatePackage(ctx context.Context, p *Package) error
	GetPackage(ctx context.Context, id string) (*Package, error)
	ListPackages(ctx context.Context) ([]*Package, error)

	// PackagesByMember returns every package ever created for the
	// member, regardless of status. Needed for the date-overlap check,
	// which spans expired and renewed history.
	PackagesByMember(ctx context.Context, member MemberRef) ([]*Package, error)

	// DeletePackage hard-deletes the package and cascades to its
	// history entries and balance transactions.
	DeletePackage(ctx context.Context, id string) error
}

// HistoryStore persists lifecycle transition records. Append-only.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	HistoryByPackage(ctx context.Context, packageID string) ([]HistoryEntry, error)
}

// TransactionStore persists balance ledger entries. Append-only.
type TransactionStore interface {
	AppendTransaction(ctx context.Context, tx BalanceTransaction) error
	TransactionsByPackage(ctx context.Context, packageID string) ([]BalanceTransaction, error)

	// ApplyBalanceDelta atomically adjusts the package's materialized
	// balance and returns the new value. This is the ONLY way balance
	// changes; UpdatePackage implementations must not touch it.
	ApplyBalanceDelta(ctx context.Context, packageID string, delta decimal.Decimal) (decimal.Decimal, error)
}

// MemberStore looks up members for invariant checks and display.
type MemberStore interface {
	InsertMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, ref MemberRef) (*Member, error)
	ListMembers(ctx context.Context) ([]*Member, error)
}

// Store composes all persistence ports.
type Store interface {
	PackageStore
	HistoryStore
	TransactionStore
	MemberStore
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn against a transactional view of the store. If fn
// returns an error the transaction is rolled back and no partial state
// remains; otherwise it is committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
