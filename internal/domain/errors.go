package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. The API layer maps
// these to status codes; everything else wraps them with %w.

var (
	// Identity errors — rejected before any balance operation
	ErrCredentialInvalid = errors.New("identity credential invalid")
	ErrCredentialExpired = errors.New("identity credential expired")

	// Account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAlreadyPaired   = errors.New("account already has a partner")

	// Request errors
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds length cap")

	// Ledger errors
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Generation errors — recovered via compensating credit
	ErrGenerationFailed  = errors.New("generation backend failed")
	ErrStreamInterrupted = errors.New("generation stream interrupted")
)
