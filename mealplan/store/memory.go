// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/messkit/package-engine/calendar"
	"github.com/messkit/package-engine/mealplan"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	packages     map[string]*mealplan.Package
	history      map[string][]mealplan.HistoryEntry
	transactions map[string][]mealplan.BalanceTransaction
	members      map[memberKey]*mealplan.Member
}

type memberKey struct {
	ID   string
	Type mealplan.MemberType
}

func NewMemory() *Memory {
	return &Memory{
		packages:     make(map[string]*mealplan.Package),
		history:      make(map[string][]mealplan.HistoryEntry),
		transactions: make(map[string][]mealplan.BalanceTransaction),
		members:      make(map[memberKey]*mealplan.Member),
	}
}

// =============================================================================
// PACKAGES
// =============================================================================

// clonePackage copies a package including its disable maps, so a
// caller mutating its copy never reaches the stored row (and vice
// versa). A plain struct copy would alias the maps.
func clonePackage(p *mealplan.Package) *mealplan.Package {
	cp := *p
	if p.DisabledDays != nil {
		cp.DisabledDays = make(calendar.DisabledDays, len(p.DisabledDays))
		for k, v := range p.DisabledDays {
			cp.DisabledDays[k] = v
		}
	}
	if p.DisabledMeals != nil {
		cp.DisabledMeals = make(calendar.DisabledMeals, len(p.DisabledMeals))
		for k, v := range p.DisabledMeals {
			cp.DisabledMeals[k] = v
		}
	}
	return &cp
}

func (m *Memory) InsertPackage(_ context.Context, p *mealplan.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[p.ID] = clonePackage(p)
	return nil
}

func (m *Memory) UpdatePackage(_ context.Context, p *mealplan.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.packages[p.ID]
	if !ok {
		return fmt.Errorf("package %s not found", p.ID)
	}
	// Balance moves only through ApplyBalanceDelta.
	cp := clonePackage(p)
	cp.Balance = stored.Balance
	m.packages[p.ID] = cp
	return nil
}

func (m *Memory) GetPackage(_ context.Context, id string) (*mealplan.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.packages[id]
	if !ok {
		return nil, nil
	}
	return clonePackage(p), nil
}

func (m *Memory) ListPackages(_ context.Context) ([]*mealplan.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*mealplan.Package, 0, len(m.packages))
	for _, p := range m.packages {
		result = append(result, clonePackage(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) PackagesByMember(_ context.Context, member mealplan.MemberRef) ([]*mealplan.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*mealplan.Package
	for _, p := range m.packages {
		if p.Member == member {
			result = append(result, clonePackage(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) DeletePackage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.packages, id)
	delete(m.history, id)
	delete(m.transactions, id)
	return nil
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

func (m *Memory) AppendHistory(_ context.Context, entry mealplan.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[entry.PackageID] = append(m.history[entry.PackageID], entry)
	return nil
}

func (m *Memory) HistoryByPackage(_ context.Context, packageID string) ([]mealplan.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]mealplan.HistoryEntry, len(m.history[packageID]))
	copy(result, m.history[packageID])
	return result, nil
}

// =============================================================================
// TRANSACTIONS (append-only) + BALANCE
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, tx mealplan.BalanceTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.PackageID] = append(m.transactions[tx.PackageID], tx)
	return nil
}

func (m *Memory) TransactionsByPackage(_ context.Context, packageID string) ([]mealplan.BalanceTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]mealplan.BalanceTransaction, len(m.transactions[packageID]))
	copy(result, m.transactions[packageID])
	return result, nil
}

func (m *Memory) ApplyBalanceDelta(_ context.Context, packageID string, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[packageID]
	if !ok {
		return decimal.Zero, fmt.Errorf("package %s not found", packageID)
	}
	p.Balance = p.Balance.Add(delta)
	return p.Balance, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Memory) InsertMember(_ context.Context, member *mealplan.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *member
	m.members[memberKey{ID: member.ID, Type: member.Type}] = &cp
	return nil
}

func (m *Memory) GetMember(_ context.Context, ref mealplan.MemberRef) (*mealplan.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	member, ok := m.members[memberKey{ID: ref.ID, Type: ref.Type}]
	if !ok {
		return nil, nil
	}
	cp := *member
	return &cp, nil
}

func (m *Memory) ListMembers(_ context.Context) ([]*mealplan.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*mealplan.Member, 0, len(m.members))
	for _, member := range m.members {
		cp := *member
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against the store, simulated with a snapshot and
// rollback on error. A separate mutex serializes whole transactions so
// concurrent WithTx calls see each other's committed state only.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(mealplan.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	pkgs := make(map[string]*mealplan.Package, len(tm.packages))
	for k, v := range tm.packages {
		pkgs[k] = clonePackage(v)
	}
	hist := make(map[string][]mealplan.HistoryEntry, len(tm.history))
	for k, v := range tm.history {
		hist[k] = append([]mealplan.HistoryEntry{}, v...)
	}
	txs := make(map[string][]mealplan.BalanceTransaction, len(tm.transactions))
	for k, v := range tm.transactions {
		txs[k] = append([]mealplan.BalanceTransaction{}, v...)
	}
	members := make(map[memberKey]*mealplan.Member, len(tm.members))
	for k, v := range tm.members {
		cp := *v
		members[k] = &cp
	}
	return memorySnapshot{packages: pkgs, history: hist, transactions: txs, members: members}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.packages = s.packages
	tm.history = s.history
	tm.transactions = s.transactions
	tm.members = s.members
}

type memorySnapshot struct {
	packages     map[string]*mealplan.Package
	history      map[string][]mealplan.HistoryEntry
	transactions map[string][]mealplan.BalanceTransaction
	members      map[memberKey]*mealplan.Member
}

// Compile-time check that TxMemory satisfies the full store contract.
var _ mealplan.TxStore = (*TxMemory)(nil)
