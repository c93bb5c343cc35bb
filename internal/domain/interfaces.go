package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// AccountStore abstracts persistent account access. Credits are mutated only
// through Ledger; the store reads them alongside the profile and partner link.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	CreateAccount(ctx context.Context, a *Account) error
	LinkPartners(ctx context.Context, idA, idB string) error
}

// Ledger performs atomic balance operations against the backing store.
type Ledger interface {
	// Debit decrements credits by amount only if the balance covers it, in a
	// single conditional update (no read-then-write race window). On
	// ErrInsufficientCredits the returned balance is the current one so the
	// caller can report the shortfall.
	Debit(ctx context.Context, accountID string, amount int64, reason string) (balance int64, err error)

	// Credit is an unconditional increment. Idempotency is the caller's
	// responsibility; the orchestrator invokes it at most once per failure.
	Credit(ctx context.Context, accountID string, amount int64, tx TransactionType, reason string) (balance int64, err error)
}

// TurnStore persists conversation turns and serves bounded history reads.
type TurnStore interface {
	InsertTurn(ctx context.Context, t *ConversationTurn) error
	RecentTurns(ctx context.Context, accountID string, limit int) ([]ConversationTurn, error)
	// RecentUserTurns returns only user-authored rows, newest first. Used by
	// paired mode to summarize what the partner has been asking about.
	RecentUserTurns(ctx context.Context, accountID string, limit int) ([]ConversationTurn, error)
}

// GenerationBackend abstracts the text-generation service.
type GenerationBackend interface {
	// Generate opens a cancellable token stream for the assembled request.
	// A returned channel is always eventually closed; mid-stream failures
	// arrive as a Token with Err set before the close.
	Generate(ctx context.Context, req GenerationRequest) (<-chan Token, error)
}

// Identity resolves an opaque credential to an account id.
type Identity interface {
	Resolve(credential string) (accountID string, err error)
}
