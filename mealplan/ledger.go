/*
ledger.go - Prepaid balance ledger for daily-basis packages

PURPOSE:
  Daily-basis members have no meal-count entitlement; they prepay a
  monetary balance that is debited per meal. This file owns every
  change to that balance.

CRITICAL INVARIANTS:
  1. balance == sum(deposits) - sum(debits), always
  2. Balance is never assigned directly; only deposit/debit move it,
     and each pairs an appended transaction with an atomic balance
     increment in the same storage transaction
  3. Transactions are append-only and immutable

  Reconcile() makes invariant 1 a testable property: it replays the
  transaction log and compares against the stored balance.

CONCURRENCY:
  Balance moves through Store.ApplyBalanceDelta, an atomic increment
  at the storage layer, so concurrent meal check-ins cannot lose
  updates the way an application-level read-modify-write would.

SEE ALSO:
  - store.go: TransactionStore contract
  - consumption.go: Routes daily-basis check-ins to Debit
*/
package mealplan

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE LEDGER
// =============================================================================

type BalanceLedger struct {
	store TxStore
}

func NewBalanceLedger(store TxStore) *BalanceLedger {
	return &BalanceLedger{store: store}
}

// Deposit adds funds to a daily-basis package. Amount must be
// strictly positive.
func (l *BalanceLedger) Deposit(ctx context.Context, packageID string, amount decimal.Decimal, description string) (*Package, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "deposit amount must be greater than zero"}
	}

	var result *Package
	err := l.store.WithTx(ctx, func(s Store) error {
		pkg, err := loadPackage(ctx, s, packageID)
		if err != nil {
			return err
		}
		if pkg.Type != DailyBasis {
			return &ValidationError{Field: "package", Reason: "deposits apply to daily basis packages only"}
		}
		newBalance, err := applyLedgerEntry(ctx, s, pkg.ID, TxDeposit, amount, description, time.Now().UTC())
		if err != nil {
			return err
		}
		pkg.Balance = newBalance
		result = pkg
		return nil
	})
	return result, err
}

// Debit removes funds, invoked by the meal check-in path. Rejects
// overdraws with InsufficientBalanceError.
func (l *BalanceLedger) Debit(ctx context.Context, packageID string, amount decimal.Decimal, description string) (*Package, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "debit amount must be greater than zero"}
	}

	var result *Package
	err := l.store.WithTx(ctx, func(s Store) error {
		pkg, err := loadPackage(ctx, s, packageID)
		if err != nil {
			return err
		}
		if pkg.Type != DailyBasis {
			return &ValidationError{Field: "package", Reason: "debits apply to daily basis packages only"}
		}
		if pkg.Balance.LessThan(amount) {
			return &InsufficientBalanceError{PackageID: pkg.ID, Balance: pkg.Balance, Requested: amount}
		}
		newBalance, err := applyLedgerEntry(ctx, s, pkg.ID, TxDebit, amount, description, time.Now().UTC())
		if err != nil {
			return err
		}
		pkg.Balance = newBalance
		result = pkg
		return nil
	})
	return result, err
}

// Transactions returns the package's full ledger, chronologically.
func (l *BalanceLedger) Transactions(ctx context.Context, packageID string) ([]BalanceTransaction, error) {
	txs, err := l.store.TransactionsByPackage(ctx, packageID)
	if err != nil {
		return nil, storageErr("load transactions", err)
	}
	return txs, nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileResult compares the stored balance against the replayed
// transaction log.
type ReconcileResult struct {
	PackageID     string
	StoredBalance decimal.Decimal
	LedgerSum     decimal.Decimal
	Consistent    bool
}

// Reconcile replays the transaction log and checks that the stored
// balance equals sum(deposits) - sum(debits). A mismatch means the
// balance was moved outside the ledger, which is a bug.
func (l *BalanceLedger) Reconcile(ctx context.Context, packageID string) (ReconcileResult, error) {
	var result ReconcileResult
	err := l.store.WithTx(ctx, func(s Store) error {
		pkg, err := loadPackage(ctx, s, packageID)
		if err != nil {
			return err
		}
		txs, err := s.TransactionsByPackage(ctx, packageID)
		if err != nil {
			return storageErr("load transactions", err)
		}
		sum := decimal.Zero
		for _, tx := range txs {
			switch tx.Type {
			case TxDeposit:
				sum = sum.Add(tx.Amount)
			case TxDebit:
				sum = sum.Sub(tx.Amount)
			}
		}
		result = ReconcileResult{
			PackageID:     packageID,
			StoredBalance: pkg.Balance,
			LedgerSum:     sum,
			Consistent:    pkg.Balance.Equal(sum),
		}
		return nil
	})
	return result, err
}

// =============================================================================
// INTERNALS - Shared with the lifecycle manager's create path
// =============================================================================

// applyLedgerEntry appends a transaction and atomically moves the
// materialized balance. Must run inside a storage transaction so the
// two writes cannot diverge.
func applyLedgerEntry(ctx context.Context, s Store, packageID string, txType TransactionType, amount decimal.Decimal, description string, at time.Time) (decimal.Decimal, error) {
	entry := BalanceTransaction{
		ID:          newID("btx"),
		PackageID:   packageID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		At:          at,
	}
	if err := s.AppendTransaction(ctx, entry); err != nil {
		return decimal.Zero, storageErr("append transaction", err)
	}
	delta := amount
	if txType == TxDebit {
		delta = amount.Neg()
	}
	newBalance, err := s.ApplyBalanceDelta(ctx, packageID, delta)
	if err != nil {
		return decimal.Zero, storageErr("apply balance delta", err)
	}
	return newBalance, nil
}

// loadPackage fetches a package or reports ErrPackageNotFound.
func loadPackage(ctx context.Context, s Store, id string) (*Package, error) {
	pkg, err := s.GetPackage(ctx, id)
	if err != nil {
		return nil, storageErr("get package", err)
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}
	return pkg, nil
}
