package sqlite

import (
	"context"
	"fmt"

	"github.com/heartlink/heartlink/internal/domain"
)

// ─── Conversation Turn Operations ───────────────────────────────────────────

// InsertTurn appends an immutable conversation row and fills in its id.
func (db *DB) InsertTurn(ctx context.Context, t *domain.ConversationTurn) error {
	paired := 0
	if t.PairedMode {
		paired = 1
	}
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (account_id, role, text, credits_charged, paired_mode)
		VALUES (?, ?, ?, ?, ?)
	`, t.AccountID, string(t.Role), t.Text, t.CreditsCharged, paired)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

// RecentTurns returns the newest rows for an account, newest first.
func (db *DB) RecentTurns(ctx context.Context, accountID string, limit int) ([]domain.ConversationTurn, error) {
	return db.queryTurns(ctx, `
		SELECT id, account_id, role, text, credits_charged, paired_mode, created_at
		FROM conversation_turns WHERE account_id = ?
		ORDER BY id DESC LIMIT ?
	`, accountID, limit)
}

// RecentUserTurns returns only user-authored rows, newest first.
func (db *DB) RecentUserTurns(ctx context.Context, accountID string, limit int) ([]domain.ConversationTurn, error) {
	return db.queryTurns(ctx, `
		SELECT id, account_id, role, text, credits_charged, paired_mode, created_at
		FROM conversation_turns WHERE account_id = ? AND role = 'user'
		ORDER BY id DESC LIMIT ?
	`, accountID, limit)
}

func (db *DB) queryTurns(ctx context.Context, query string, args ...any) ([]domain.ConversationTurn, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []domain.ConversationTurn
	for rows.Next() {
		var (
			t          domain.ConversationTurn
			role       string
			paired     int
			createdStr string
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &role, &t.Text,
			&t.CreditsCharged, &paired, &createdStr); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = domain.Role(role)
		t.PairedMode = paired == 1
		t.CreatedAt = parseTime(createdStr)
		out = append(out, t)
	}
	return out, rows.Err()
}
