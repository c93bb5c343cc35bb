package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/heartlink/heartlink/internal/domain"
)

// ─── Balance Ledger ─────────────────────────────────────────────────────────
// All protection against concurrent debits is the conditional update below;
// there is no application-level lock and no queuing. Two borderline debits
// simply race and at most one wins.

// Debit decrements credits by amount only when the balance covers it, as a
// single atomic conditional update. Returns the post-debit balance, or
// domain.ErrInsufficientCredits with the current balance so the caller can
// report the exact shortfall.
func (db *DB) Debit(ctx context.Context, accountID string, amount int64, reason string) (int64, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET credits = credits - ?, updated_at = datetime('now')
		WHERE id = ? AND credits >= ?
	`, amount, accountID, amount)
	if err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}
	if n == 0 {
		// Rejected entirely — no partial debit. Report the current balance.
		balance, berr := db.balanceTx(ctx, tx, accountID)
		if berr != nil {
			return 0, berr
		}
		return balance, domain.ErrInsufficientCredits
	}

	balance, err := db.balanceTx(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if err := appendEntry(ctx, tx, accountID, domain.EntryDebit, domain.TxSpend, amount, balance, reason); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}
	return balance, nil
}

// Credit unconditionally increments the balance. Used for refunds and
// operator grants; idempotency is the caller's responsibility.
func (db *DB) Credit(ctx context.Context, accountID string, amount int64, txType domain.TransactionType, reason string) (int64, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET credits = credits + ?, updated_at = datetime('now')
		WHERE id = ?
	`, amount, accountID)
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}
	if n == 0 {
		return 0, domain.ErrAccountNotFound
	}

	balance, err := db.balanceTx(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if err := appendEntry(ctx, tx, accountID, domain.EntryCredit, txType, amount, balance, reason); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}
	return balance, nil
}

// LedgerEntries returns the newest audit rows for an account.
func (db *DB) LedgerEntries(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, account_id, entry_type, tx_type, amount, balance, reason, created_at
		FROM credit_ledger WHERE account_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e          domain.LedgerEntry
			createdStr string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.EntryType, &e.Type,
			&e.Amount, &e.Balance, &e.Reason, &createdStr); err != nil {
			return nil, fmt.Errorf("ledger entries: %w", err)
		}
		e.CreatedAt = parseTime(createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) balanceTx(ctx context.Context, tx *sql.Tx, accountID string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT credits FROM accounts WHERE id = ?`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

func appendEntry(ctx context.Context, tx *sql.Tx, accountID string, entry domain.EntryType, txType domain.TransactionType, amount, balance int64, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (id, account_id, entry_type, tx_type, amount, balance, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), accountID, string(entry), string(txType), amount, balance, reason)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}
