/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage contracts.

PURPOSE:
  Implements canteen.CancellationStore plus the consumed collaborator
  contracts (ChildDirectory, GroupDirectory, PaymentSink) against one
  database. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  meal_cancellations: The cancellation ledger
  children:           Child directory (external contract, mirrored here)
  groups:             Per-group meal price tables
  payments:           Payment ledger sink (reversing entries land here)

UNIQUENESS ENFORCEMENT:
  idx_unique_meal_cancellation on (child_id, date, meal_type) is the race
  guard required by the concurrency model: when two cancellations of the
  same meal race past the application-level pre-check, the second INSERT
  fails and is surfaced as a DuplicateCancellationError.

REFUND MONOTONICITY:
  MarkRefunded's UPDATE carries "AND refunded = 0", so re-marking is a
  counted no-op and refunded never flips back.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/canteen.db")
  if err != nil { log.Fatal(err) }
  defer store.Close()

SEE ALSO:
  - canteen/contracts.go: Interface definitions
  - canteen/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/canteen-engine/canteen"
)

// Store implements all storage contracts using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Group price tables (read-only to the engine, mutable by admin tools)
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		breakfast_price TEXT,
		lunch_price TEXT,
		snack_price TEXT
	);

	-- Child directory
	CREATE TABLE IF NOT EXISTS children (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		guardian_id TEXT NOT NULL,
		group_id TEXT REFERENCES groups(id)
	);
	CREATE INDEX IF NOT EXISTS idx_children_guardian ON children(guardian_id);

	-- Cancellation ledger
	CREATE TABLE IF NOT EXISTS meal_cancellations (
		id TEXT PRIMARY KEY,
		child_id TEXT NOT NULL REFERENCES children(id),
		date TEXT NOT NULL,           -- YYYY-MM-DD
		meal_type TEXT NOT NULL,
		reason TEXT,
		refunded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		created_by TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_meal_cancellation
		ON meal_cancellations(child_id, date, meal_type);
	CREATE INDEX IF NOT EXISTS idx_meal_cancellations_date
		ON meal_cancellations(date);
	CREATE INDEX IF NOT EXISTS idx_meal_cancellations_refunded
		ON meal_cancellations(refunded);

	-- Payment ledger sink (reversing entries)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		child_id TEXT NOT NULL REFERENCES children(id),
		amount TEXT NOT NULL,
		description TEXT,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_date TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_child ON payments(child_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CANCELLATION STORE
// =============================================================================

func (s *Store) Insert(ctx context.Context, c canteen.Cancellation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meal_cancellations
			(id, child_id, date, meal_type, reason, refunded, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), string(c.ChildID), c.Date.String(), string(c.MealType),
		nullString(c.Reason), boolToInt(c.Refunded),
		c.CreatedAt.UTC().Format(time.RFC3339), nullString(c.CreatedBy),
	)
	if isUniqueConstraintError(err) {
		existing, _ := s.findTriple(ctx, c.ChildID, c.Date, c.MealType)
		return &canteen.DuplicateCancellationError{
			ChildID:    c.ChildID,
			Date:       c.Date,
			MealType:   c.MealType,
			ExistingID: existing,
		}
	}
	return err
}

func (s *Store) Get(ctx context.Context, id canteen.CancellationID) (*canteen.Cancellation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, child_id, date, meal_type, reason, refunded, created_at, created_by
		FROM meal_cancellations WHERE id = ?`, string(id))

	c, err := scanCancellation(row)
	if err == sql.ErrNoRows {
		return nil, canteen.ErrCancellationNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) Delete(ctx context.Context, id canteen.CancellationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM meal_cancellations WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return canteen.ErrCancellationNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, f canteen.Filter) ([]canteen.Cancellation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, child_id, date, meal_type, reason, refunded, created_at, created_by
		FROM meal_cancellations WHERE 1=1`
	var args []any

	if len(f.ChildIDs) > 0 {
		placeholders := make([]string, len(f.ChildIDs))
		for i, id := range f.ChildIDs {
			placeholders[i] = "?"
			args = append(args, string(id))
		}
		query += " AND child_id IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if !f.From.IsZero() {
		query += " AND date >= ?"
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		query += " AND date <= ?"
		args = append(args, f.To.String())
	}
	if f.Refunded != nil {
		query += " AND refunded = ?"
		args = append(args, boolToInt(*f.Refunded))
	}
	query += " ORDER BY date, meal_type, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []canteen.Cancellation
	for rows.Next() {
		c, err := scanCancellation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (s *Store) MarkRefunded(ctx context.Context, ids []canteen.CancellationID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = string(id)
	}

	// refunded = 0 guard makes re-marking a counted no-op.
	res, err := s.db.ExecContext(ctx, `
		UPDATE meal_cancellations SET refunded = 1
		WHERE refunded = 0 AND id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) findTriple(ctx context.Context, childID canteen.ChildID, date canteen.Day, meal canteen.MealType) (canteen.CancellationID, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM meal_cancellations
		WHERE child_id = ? AND date = ? AND meal_type = ?`,
		string(childID), date.String(), string(meal)).Scan(&id)
	if err != nil {
		return "", err
	}
	return canteen.CancellationID(id), nil
}

// =============================================================================
// CHILD DIRECTORY
// =============================================================================

func (s *Store) SaveChild(ctx context.Context, c canteen.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO children (id, name, guardian_id, group_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			guardian_id = excluded.guardian_id,
			group_id = excluded.group_id`,
		string(c.ID), c.Name, c.GuardianID, nullString(string(c.GroupID)),
	)
	return err
}

func (s *Store) GetChild(ctx context.Context, id canteen.ChildID) (*canteen.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, guardian_id, group_id FROM children WHERE id = ?`, string(id))

	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, canteen.ErrChildNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ChildrenOfGuardian(ctx context.Context, guardianID string) ([]canteen.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, guardian_id, group_id FROM children WHERE guardian_id = ? ORDER BY id`,
		guardianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []canteen.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (s *Store) ListChildren(ctx context.Context) ([]canteen.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, guardian_id, group_id FROM children ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []canteen.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// =============================================================================
// GROUP DIRECTORY
// =============================================================================

func (s *Store) SaveGroup(ctx context.Context, g canteen.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name, breakfast_price, lunch_price, snack_price)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			breakfast_price = excluded.breakfast_price,
			lunch_price = excluded.lunch_price,
			snack_price = excluded.snack_price`,
		string(g.ID), g.Name,
		nullDecimal(g.BreakfastPrice), nullDecimal(g.LunchPrice), nullDecimal(g.SnackPrice),
	)
	return err
}

func (s *Store) GetGroup(ctx context.Context, id canteen.GroupID) (*canteen.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, breakfast_price, lunch_price, snack_price
		FROM groups WHERE id = ?`, string(id))

	var g canteen.Group
	var gid, name string
	var breakfast, lunch, snack sql.NullString
	err := row.Scan(&gid, &name, &breakfast, &lunch, &snack)
	if err == sql.ErrNoRows {
		return nil, nil // unknown group is fail-soft: price resolves to zero
	}
	if err != nil {
		return nil, err
	}
	g.ID = canteen.GroupID(gid)
	g.Name = name
	g.BreakfastPrice = parsePrice(breakfast)
	g.LunchPrice = parsePrice(lunch)
	g.SnackPrice = parsePrice(snack)
	return &g, nil
}

// =============================================================================
// PAYMENT SINK
// =============================================================================

func (s *Store) CreatePayment(ctx context.Context, p canteen.Payment) (canteen.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	var paidDate sql.NullString
	if p.PaidDate != nil {
		paidDate = sql.NullString{String: p.PaidDate.UTC().Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, child_id, amount, description, due_date, status, paid_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.ChildID), p.Amount.String(), nullString(p.Description),
		p.DueDate.UTC().Format(time.RFC3339), string(p.Status), paidDate,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return canteen.Payment{}, err
	}
	return p, nil
}

func (s *Store) PaymentsByChild(ctx context.Context, childID canteen.ChildID) ([]canteen.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, child_id, amount, description, due_date, status, paid_date, created_at
		FROM payments WHERE child_id = ? ORDER BY created_at, id`, string(childID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []canteen.Payment
	for rows.Next() {
		var p canteen.Payment
		var child, amount, dueDate, status, createdAt string
		var description, paidDate sql.NullString
		if err := rows.Scan(&p.ID, &child, &amount, &description, &dueDate, &status, &paidDate, &createdAt); err != nil {
			return nil, err
		}
		p.ChildID = canteen.ChildID(child)
		p.Amount, _ = decimal.NewFromString(amount)
		p.Description = description.String
		p.DueDate, _ = time.Parse(time.RFC3339, dueDate)
		p.Status = canteen.PaymentStatus(status)
		if paidDate.Valid {
			if t, err := time.Parse(time.RFC3339, paidDate.String); err == nil {
				p.PaidDate = &t
			}
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, p)
	}
	return result, rows.Err()
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset wipes all tables. Dev/demo flows only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"payments", "meal_cancellations", "children", "groups"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCAN / CONVERSION HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCancellation(row rowScanner) (*canteen.Cancellation, error) {
	var c canteen.Cancellation
	var id, childID, date, mealType, createdAt string
	var reason, createdBy sql.NullString
	var refunded int

	if err := row.Scan(&id, &childID, &date, &mealType, &reason, &refunded, &createdAt, &createdBy); err != nil {
		return nil, err
	}

	day, err := canteen.ParseDay(date)
	if err != nil {
		return nil, fmt.Errorf("corrupt date %q for cancellation %s: %w", date, id, err)
	}
	c.ID = canteen.CancellationID(id)
	c.ChildID = canteen.ChildID(childID)
	c.Date = day
	c.MealType = canteen.MealType(mealType)
	c.Reason = reason.String
	c.Refunded = refunded != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.CreatedBy = createdBy.String
	return &c, nil
}

func scanChild(row rowScanner) (*canteen.Child, error) {
	var c canteen.Child
	var id, name, guardianID string
	var groupID sql.NullString
	if err := row.Scan(&id, &name, &guardianID, &groupID); err != nil {
		return nil, err
	}
	c.ID = canteen.ChildID(id)
	c.Name = name
	c.GuardianID = guardianID
	c.GroupID = canteen.GroupID(groupID.String)
	return &c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parsePrice(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
