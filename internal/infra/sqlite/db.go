// Package sqlite implements the persistence ring on an embedded database:
// accounts, the credit ledger, and conversation turns.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heartlink/heartlink/internal/domain"
)

// DB wraps the SQLite handle and implements domain.AccountStore,
// domain.Ledger and domain.TurnStore.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database under dir and runs migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dir, "heartlink.db")
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent conditional updates.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error { return db.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id             TEXT PRIMARY KEY,
			credits        INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
			partner_id     TEXT,
			type_name      TEXT NOT NULL DEFAULT '',
			dim_pace       INTEGER NOT NULL DEFAULT 0,
			dim_social     INTEGER NOT NULL DEFAULT 0,
			dim_taste      INTEGER NOT NULL DEFAULT 0,
			dim_values     INTEGER NOT NULL DEFAULT 0,
			dim_attachment INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Conversation turns are immutable rows; a billing turn is a user
		// row followed by an assistant row carrying the tier cost.
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id      TEXT NOT NULL,
			role            TEXT NOT NULL,
			text            TEXT NOT NULL,
			credits_charged INTEGER NOT NULL DEFAULT 0,
			paired_mode     INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_account ON conversation_turns(account_id, id)`,

		// Append-only audit trail; one row per balance change.
		`CREATE TABLE IF NOT EXISTS credit_ledger (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			tx_type    TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			balance    INTEGER NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON credit_ledger(account_id, created_at)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Account Operations ─────────────────────────────────────────────────────

// GetAccount retrieves an account by id.
func (db *DB) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var (
		a          domain.Account
		partner    sql.NullString
		createdStr string
		updatedStr string
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT id, credits, partner_id, type_name,
		       dim_pace, dim_social, dim_taste, dim_values, dim_attachment,
		       created_at, updated_at
		FROM accounts WHERE id = ?
	`, id).Scan(&a.ID, &a.Credits, &partner, &a.Profile.TypeName,
		&a.Profile.Pace, &a.Profile.Social, &a.Profile.Taste,
		&a.Profile.Values, &a.Profile.Attachment, &createdStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	a.PartnerID = partner.String
	a.CreatedAt = parseTime(createdStr)
	a.UpdatedAt = parseTime(updatedStr)
	return &a, nil
}

// CreateAccount inserts a new account row.
func (db *DB) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO accounts (id, credits, partner_id, type_name,
			dim_pace, dim_social, dim_taste, dim_values, dim_attachment)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Credits, a.PartnerID, a.Profile.TypeName,
		a.Profile.Pace, a.Profile.Social, a.Profile.Taste,
		a.Profile.Values, a.Profile.Attachment)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// LinkPartners sets the symmetric partner link between two accounts.
// Fails if either account already has a different partner.
func (db *DB) LinkPartners(ctx context.Context, idA, idB string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("link partners: %w", err)
	}
	defer tx.Rollback()

	for _, pair := range [][2]string{{idA, idB}, {idB, idA}} {
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts SET partner_id = ?, updated_at = datetime('now')
			WHERE id = ? AND (partner_id IS NULL OR partner_id = ?)
		`, pair[1], pair[0], pair[1])
		if err != nil {
			return fmt.Errorf("link partners: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("link partners: %w", err)
		}
		if n == 0 {
			if _, gerr := db.getTx(ctx, tx, pair[0]); gerr != nil {
				return gerr
			}
			return domain.ErrAlreadyPaired
		}
	}
	return tx.Commit()
}

// getTx checks account existence inside a transaction.
func (db *DB) getTx(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var got string
	err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = ?`, id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get account: %w", err)
	}
	return got, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
