/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements mealplan.TxStore using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  packages:     Package rows (the only mutable table)
  history:      Immutable lifecycle transition log
  transactions: Immutable balance ledger (daily basis)
  members:      Member records (owned by registration)

INVARIANT ENFORCEMENT IN SCHEMA:
  idx_one_open_package is a partial unique index on
  (member_id, member_type) WHERE status IN ('active','deactivated').
  Even if application-level validation is bypassed or races, the
  database refuses a second open package for a member.

APPEND-ONLY ENFORCEMENT:
  history and transactions have no UPDATE path. The only DELETE is the
  cascade inside DeletePackage, the administrative hard delete.

MONEY:
  Amounts are stored as decimal strings and computed in Go via
  shopspring/decimal. Never floats.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't
  block, single writer at a time, better crash recovery.

SEE ALSO:
  - mealplan/store.go: Interface definitions
  - mealplan/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/messkit/package-engine/calendar"
	"github.com/messkit/package-engine/mealplan"
)

// Store implements mealplan.TxStore using SQLite.
type Store struct {
	db *sql.DB
	conn
}

// conn holds the queryable handle: either the root *sql.DB or an open
// *sql.Tx for transactional views.
type conn struct {
	q querier
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent admin actions.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, conn: conn{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS packages (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		member_type TEXT NOT NULL,
		package_type TEXT NOT NULL,
		breakfast_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		lunch_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		dinner_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		start_date TEXT,
		end_date TEXT,
		disabled_days_json TEXT,
		disabled_meals_json TEXT,
		total_breakfast INTEGER NOT NULL DEFAULT 0,
		total_lunch INTEGER NOT NULL DEFAULT 0,
		total_dinner INTEGER NOT NULL DEFAULT 0,
		consumed_breakfast INTEGER NOT NULL DEFAULT 0,
		consumed_lunch INTEGER NOT NULL DEFAULT 0,
		consumed_dinner INTEGER NOT NULL DEFAULT 0,
		carried_breakfast INTEGER NOT NULL DEFAULT 0,
		carried_lunch INTEGER NOT NULL DEFAULT 0,
		carried_dinner INTEGER NOT NULL DEFAULT 0,
		carried_over_from TEXT,
		price TEXT NOT NULL DEFAULT '0',
		discount TEXT NOT NULL DEFAULT '0',
		meal_rate TEXT NOT NULL DEFAULT '0',
		balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		deactivation_reason TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one open (active or deactivated) package per
	-- member, enforced even under concurrent creates.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_package
		ON packages(member_id, member_type)
		WHERE status IN ('active', 'deactivated');

	CREATE INDEX IF NOT EXISTS idx_packages_member
		ON packages(member_id, member_type);
	CREATE INDEX IF NOT EXISTS idx_packages_status
		ON packages(status);
	CREATE INDEX IF NOT EXISTS idx_packages_dates
		ON packages(member_id, member_type, start_date, end_date);

	-- Lifecycle transition log (append-only)
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		package_id TEXT NOT NULL,
		action TEXT NOT NULL,
		package_type TEXT NOT NULL,
		total_breakfast INTEGER NOT NULL DEFAULT 0,
		total_lunch INTEGER NOT NULL DEFAULT 0,
		total_dinner INTEGER NOT NULL DEFAULT 0,
		consumed_breakfast INTEGER NOT NULL DEFAULT 0,
		consumed_lunch INTEGER NOT NULL DEFAULT 0,
		consumed_dinner INTEGER NOT NULL DEFAULT 0,
		balance TEXT NOT NULL DEFAULT '0',
		note TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_package
		ON history(package_id, at);

	-- Balance ledger (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		package_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_package
		ON transactions(package_id, at);

	-- Members (owned by the registration subsystem)
	CREATE TABLE IF NOT EXISTS members (
		id TEXT NOT NULL,
		member_type TEXT NOT NULL,
		name TEXT NOT NULL,
		natural_id TEXT NOT NULL,
		breakfast_pref BOOLEAN NOT NULL DEFAULT TRUE,
		lunch_pref BOOLEAN NOT NULL DEFAULT TRUE,
		dinner_pref BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (id, member_type)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. Rolls back on
// error, commits otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(mealplan.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	view := &txView{conn: conn{q: tx}}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txView exposes the Store interface bound to an open transaction.
type txView struct {
	conn
}

// =============================================================================
// PACKAGES
// =============================================================================

const packageColumns = `id, member_id, member_type, package_type,
	breakfast_enabled, lunch_enabled, dinner_enabled,
	start_date, end_date, disabled_days_json, disabled_meals_json,
	total_breakfast, total_lunch, total_dinner,
	consumed_breakfast, consumed_lunch, consumed_dinner,
	carried_breakfast, carried_lunch, carried_dinner,
	carried_over_from, price, discount, meal_rate, balance,
	status, is_active, deactivation_reason, created_at`

func (c conn) InsertPackage(ctx context.Context, p *mealplan.Package) error {
	daysJSON, mealsJSON, err := encodeDisables(p)
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO packages (`+packageColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Member.ID, string(p.Member.Type), string(p.Type),
		p.Meals.Breakfast, p.Meals.Lunch, p.Meals.Dinner,
		dateString(p.StartDate), dateString(p.EndDate), daysJSON, mealsJSON,
		p.Totals.Breakfast, p.Totals.Lunch, p.Totals.Dinner,
		p.Consumed.Breakfast, p.Consumed.Lunch, p.Consumed.Dinner,
		p.CarriedOver.Breakfast, p.CarriedOver.Lunch, p.CarriedOver.Dinner,
		p.CarriedOverFrom, p.Price.String(), p.Discount.String(),
		p.MealRate.String(), p.Balance.String(),
		string(p.Status), p.IsActive, p.DeactivationReason,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// UpdatePackage rewrites every mutable field except balance, which
// only ApplyBalanceDelta may touch.
func (c conn) UpdatePackage(ctx context.Context, p *mealplan.Package) error {
	daysJSON, mealsJSON, err := encodeDisables(p)
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		UPDATE packages SET
			start_date = ?, end_date = ?,
			disabled_days_json = ?, disabled_meals_json = ?,
			total_breakfast = ?, total_lunch = ?, total_dinner = ?,
			consumed_breakfast = ?, consumed_lunch = ?, consumed_dinner = ?,
			carried_breakfast = ?, carried_lunch = ?, carried_dinner = ?,
			carried_over_from = ?, price = ?, discount = ?, meal_rate = ?,
			status = ?, is_active = ?, deactivation_reason = ?
		WHERE id = ?`,
		dateString(p.StartDate), dateString(p.EndDate), daysJSON, mealsJSON,
		p.Totals.Breakfast, p.Totals.Lunch, p.Totals.Dinner,
		p.Consumed.Breakfast, p.Consumed.Lunch, p.Consumed.Dinner,
		p.CarriedOver.Breakfast, p.CarriedOver.Lunch, p.CarriedOver.Dinner,
		p.CarriedOverFrom, p.Price.String(), p.Discount.String(), p.MealRate.String(),
		string(p.Status), p.IsActive, p.DeactivationReason,
		p.ID,
	)
	return err
}

func (c conn) GetPackage(ctx context.Context, id string) (*mealplan.Package, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanPackage(rows)
}

func (c conn) ListPackages(ctx context.Context) ([]*mealplan.Package, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+packageColumns+` FROM packages ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPackages(rows)
}

func (c conn) PackagesByMember(ctx context.Context, member mealplan.MemberRef) ([]*mealplan.Package, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+packageColumns+` FROM packages
		WHERE member_id = ? AND member_type = ?
		ORDER BY created_at`,
		member.ID, string(member.Type))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPackages(rows)
}

// DeletePackage hard-deletes a package with its history and ledger.
// The only DELETE in the schema.
func (c conn) DeletePackage(ctx context.Context, id string) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM transactions WHERE package_id = ?`, id); err != nil {
		return err
	}
	if _, err := c.q.ExecContext(ctx, `DELETE FROM history WHERE package_id = ?`, id); err != nil {
		return err
	}
	_, err := c.q.ExecContext(ctx, `DELETE FROM packages WHERE id = ?`, id)
	return err
}

func scanPackages(rows *sql.Rows) ([]*mealplan.Package, error) {
	var result []*mealplan.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPackage(rows *sql.Rows) (*mealplan.Package, error) {
	var (
		p                        mealplan.Package
		memberType, pkgType      string
		startDate, endDate       sql.NullString
		daysJSON, mealsJSON      sql.NullString
		carriedFrom, deactReason sql.NullString
		price, discount          string
		mealRate, balance        string
		status, createdAt        string
	)
	err := rows.Scan(
		&p.ID, &p.Member.ID, &memberType, &pkgType,
		&p.Meals.Breakfast, &p.Meals.Lunch, &p.Meals.Dinner,
		&startDate, &endDate, &daysJSON, &mealsJSON,
		&p.Totals.Breakfast, &p.Totals.Lunch, &p.Totals.Dinner,
		&p.Consumed.Breakfast, &p.Consumed.Lunch, &p.Consumed.Dinner,
		&p.CarriedOver.Breakfast, &p.CarriedOver.Lunch, &p.CarriedOver.Dinner,
		&carriedFrom, &price, &discount, &mealRate, &balance,
		&status, &p.IsActive, &deactReason, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	p.Member.Type = mealplan.MemberType(memberType)
	p.Type = mealplan.PackageType(pkgType)
	p.Status = mealplan.Status(status)
	p.CarriedOverFrom = carriedFrom.String
	p.DeactivationReason = deactReason.String

	if startDate.String != "" {
		if p.StartDate, err = calendar.ParseDate(startDate.String); err != nil {
			return nil, fmt.Errorf("bad start_date %q: %w", startDate.String, err)
		}
	}
	if endDate.String != "" {
		if p.EndDate, err = calendar.ParseDate(endDate.String); err != nil {
			return nil, fmt.Errorf("bad end_date %q: %w", endDate.String, err)
		}
	}
	if daysJSON.String != "" {
		if err := json.Unmarshal([]byte(daysJSON.String), &p.DisabledDays); err != nil {
			return nil, fmt.Errorf("bad disabled_days_json: %w", err)
		}
	}
	if mealsJSON.String != "" {
		if err := json.Unmarshal([]byte(mealsJSON.String), &p.DisabledMeals); err != nil {
			return nil, fmt.Errorf("bad disabled_meals_json: %w", err)
		}
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("bad price %q: %w", price, err)
	}
	if p.Discount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("bad discount %q: %w", discount, err)
	}
	if p.MealRate, err = decimal.NewFromString(mealRate); err != nil {
		return nil, fmt.Errorf("bad meal_rate %q: %w", mealRate, err)
	}
	if p.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("bad balance %q: %w", balance, err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	return &p, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (c conn) AppendHistory(ctx context.Context, entry mealplan.HistoryEntry) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO history (id, package_id, action, package_type,
			total_breakfast, total_lunch, total_dinner,
			consumed_breakfast, consumed_lunch, consumed_dinner,
			balance, note, at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		entry.ID, entry.PackageID, string(entry.Action), string(entry.PackageType),
		entry.Totals.Breakfast, entry.Totals.Lunch, entry.Totals.Dinner,
		entry.Consumed.Breakfast, entry.Consumed.Lunch, entry.Consumed.Dinner,
		entry.Balance.String(), entry.Note, entry.At.UTC().Format(time.RFC3339),
	)
	return err
}

func (c conn) HistoryByPackage(ctx context.Context, packageID string) ([]mealplan.HistoryEntry, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, package_id, action, package_type,
			total_breakfast, total_lunch, total_dinner,
			consumed_breakfast, consumed_lunch, consumed_dinner,
			balance, note, at
		FROM history WHERE package_id = ? ORDER BY at, id`,
		packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []mealplan.HistoryEntry
	for rows.Next() {
		var (
			e               mealplan.HistoryEntry
			action, pkgType string
			note            sql.NullString
			balance, at     string
		)
		if err := rows.Scan(&e.ID, &e.PackageID, &action, &pkgType,
			&e.Totals.Breakfast, &e.Totals.Lunch, &e.Totals.Dinner,
			&e.Consumed.Breakfast, &e.Consumed.Lunch, &e.Consumed.Dinner,
			&balance, &note, &at); err != nil {
			return nil, err
		}
		e.Action = mealplan.HistoryAction(action)
		e.PackageType = mealplan.PackageType(pkgType)
		e.Note = note.String
		if e.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("bad history balance %q: %w", balance, err)
		}
		if e.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("bad history at %q: %w", at, err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// BALANCE LEDGER
// =============================================================================

func (c conn) AppendTransaction(ctx context.Context, tx mealplan.BalanceTransaction) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO transactions (id, package_id, tx_type, amount, description, at)
		VALUES (?,?,?,?,?,?)`,
		tx.ID, tx.PackageID, string(tx.Type), tx.Amount.String(),
		tx.Description, tx.At.UTC().Format(time.RFC3339),
	)
	return err
}

func (c conn) TransactionsByPackage(ctx context.Context, packageID string) ([]mealplan.BalanceTransaction, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, package_id, tx_type, amount, description, at
		FROM transactions WHERE package_id = ? ORDER BY at, id`,
		packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []mealplan.BalanceTransaction
	for rows.Next() {
		var (
			tx          mealplan.BalanceTransaction
			txType      string
			description sql.NullString
			amount, at  string
		)
		if err := rows.Scan(&tx.ID, &tx.PackageID, &txType, &amount, &description, &at); err != nil {
			return nil, err
		}
		tx.Type = mealplan.TransactionType(txType)
		tx.Description = description.String
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", amount, err)
		}
		if tx.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("bad transaction at %q: %w", at, err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// ApplyBalanceDelta adjusts the materialized balance. Amounts are
// decimal strings, so the arithmetic happens in Go; callers invoke
// this inside WithTx, which makes the read-add-write atomic.
func (c conn) ApplyBalanceDelta(ctx context.Context, packageID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var current string
	err := c.q.QueryRowContext(ctx, `SELECT balance FROM packages WHERE id = ?`, packageID).Scan(&current)
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(current)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad balance %q: %w", current, err)
	}
	balance = balance.Add(delta)
	if _, err := c.q.ExecContext(ctx, `UPDATE packages SET balance = ? WHERE id = ?`, balance.String(), packageID); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (c conn) InsertMember(ctx context.Context, m *mealplan.Member) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO members (id, member_type, name, natural_id,
			breakfast_pref, lunch_pref, dinner_pref, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, string(m.Type), m.Name, m.NaturalID,
		m.MealPreference.Breakfast, m.MealPreference.Lunch, m.MealPreference.Dinner,
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (c conn) GetMember(ctx context.Context, ref mealplan.MemberRef) (*mealplan.Member, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, member_type, name, natural_id,
			breakfast_pref, lunch_pref, dinner_pref, created_at
		FROM members WHERE id = ? AND member_type = ?`,
		ref.ID, string(ref.Type))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanMember(rows)
}

func (c conn) ListMembers(ctx context.Context) ([]*mealplan.Member, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, member_type, name, natural_id,
			breakfast_pref, lunch_pref, dinner_pref, created_at
		FROM members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*mealplan.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanMember(rows *sql.Rows) (*mealplan.Member, error) {
	var (
		m          mealplan.Member
		memberType string
		createdAt  string
	)
	err := rows.Scan(&m.ID, &memberType, &m.Name, &m.NaturalID,
		&m.MealPreference.Breakfast, &m.MealPreference.Lunch, &m.MealPreference.Dinner,
		&createdAt)
	if err != nil {
		return nil, err
	}
	m.Type = mealplan.MemberType(memberType)
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("bad member created_at %q: %w", createdAt, err)
	}
	return &m, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func dateString(d calendar.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func encodeDisables(p *mealplan.Package) (string, string, error) {
	var daysJSON, mealsJSON string
	if len(p.DisabledDays) > 0 {
		b, err := json.Marshal(p.DisabledDays)
		if err != nil {
			return "", "", err
		}
		daysJSON = string(b)
	}
	if len(p.DisabledMeals) > 0 {
		b, err := json.Marshal(p.DisabledMeals)
		if err != nil {
			return "", "", err
		}
		mealsJSON = string(b)
	}
	return daysJSON, mealsJSON, nil
}

// Compile-time checks for the store contracts.
var (
	_ mealplan.TxStore = (*Store)(nil)
	_ mealplan.Store   = (*txView)(nil)
)
