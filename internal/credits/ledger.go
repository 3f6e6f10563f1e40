// Package credits keeps the per-user message credit balance. Each spoken
// reply costs one credit.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// DefaultStartingCredits is granted to a user the first time they are seen.
const DefaultStartingCredits = 10

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownPackage      = errors.New("unknown credit package")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
)

// Package is a purchasable bundle of credits. Prices are in the smallest
// currency unit.
type Package struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Credits int    `json:"credits"`
	Price   int    `json:"price"`
}

var Packages = []Package{
	{ID: "mini", Name: "Mini", Credits: 30, Price: 5000},
	{ID: "starter", Name: "Starter", Credits: 100, Price: 14900},
	{ID: "popular", Name: "Popular", Credits: 250, Price: 34900},
	{ID: "best_value", Name: "Best Value", Credits: 450, Price: 59900},
}

// GetPackage returns a package by id
func GetPackage(id string) (Package, bool) {
	for _, p := range Packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// Transaction is one balance change.
type Transaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger stores balances and their history in SQLite.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the ledger at dsn. ":memory:" gives a private
// in-memory ledger.
func Open(dsn string) (*Ledger, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: a single database and serializes writers
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT PRIMARY KEY,
		credits INTEGER NOT NULL CHECK (credits >= 0),
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id);
	`
	_, err := l.db.Exec(schema)
	return err
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// EnsureUser creates the user with starting credits if they are new and
// returns their balance.
func (l *Ledger) EnsureUser(ctx context.Context, userID string, starting int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.withTx(ctx, func(tx *sql.Tx) (int, error) {
		bal, found, err := balance(ctx, tx, userID)
		if err != nil || found {
			return bal, err
		}
		if starting < 0 {
			starting = 0
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO balances (user_id, credits, updated_at) VALUES (?, ?, ?)`,
			userID, starting, now); err != nil {
			return 0, fmt.Errorf("create user: %w", err)
		}
		if err := record(ctx, tx, userID, starting, "welcome", now); err != nil {
			return 0, err
		}
		return starting, nil
	})
}

// Balance returns the user's credits; unknown users have zero.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	bal, _, err := balance(ctx, l.db, userID)
	return bal, err
}

// Deduct takes one credit and returns the new balance.
func (l *Ledger) Deduct(ctx context.Context, userID string) (int, error) {
	return l.apply(ctx, userID, -1, "message")
}

// Grant adds credits and returns the new balance.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if reason == "" {
		reason = "grant"
	}
	return l.apply(ctx, userID, amount, reason)
}

// GrantPackage adds a package's credits.
func (l *Ledger) GrantPackage(ctx context.Context, userID, packageID string) (int, error) {
	p, ok := GetPackage(packageID)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPackage, packageID)
	}
	return l.apply(ctx, userID, p.Credits, "package:"+p.ID)
}

// History returns the user's most recent transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, delta, reason, created_at FROM transactions
		 WHERE user_id = ? ORDER BY rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Delta, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (l *Ledger) apply(ctx context.Context, userID string, delta int, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.withTx(ctx, func(tx *sql.Tx) (int, error) {
		bal, _, err := balance(ctx, tx, userID)
		if err != nil {
			return 0, err
		}
		next := bal + delta
		if next < 0 {
			return bal, ErrInsufficientCredits
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO balances (user_id, credits, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET credits = excluded.credits, updated_at = excluded.updated_at`,
			userID, next, now); err != nil {
			return 0, fmt.Errorf("update balance: %w", err)
		}
		if err := record(ctx, tx, userID, delta, reason, now); err != nil {
			return 0, err
		}
		return next, nil
	})
}

func (l *Ledger) withTx(ctx context.Context, fn func(*sql.Tx) (int, error)) (int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func balance(ctx context.Context, q queryer, userID string) (int, bool, error) {
	var credits int
	err := q.QueryRowContext(ctx, `SELECT credits FROM balances WHERE user_id = ?`, userID).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query balance: %w", err)
	}
	return credits, true, nil
}

func record(ctx context.Context, tx *sql.Tx, userID string, delta int, reason string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, delta, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, delta, reason, at)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}
