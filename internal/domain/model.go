// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── Account Types ──────────────────────────────────────────────────────────

// Account is a paying user of the product. It is created by the quiz/report
// collaborators; this core only mutates its credit balance.
type Account struct {
	ID        string             `json:"id"`
	Credits   int64              `json:"credits"`
	PartnerID string             `json:"partner_id,omitempty"` // Symmetric link, at most one partner
	Profile   PersonalityProfile `json:"profile"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// HasPartner reports whether the account is linked to a partner.
func (a *Account) HasPartner() bool { return a.PartnerID != "" }

// PersonalityProfile is the quiz outcome used to build generation context:
// a type tag plus a five-dimension score vector.
type PersonalityProfile struct {
	TypeName   string `json:"type_name"`
	Pace       int    `json:"pace"`       // Life rhythm
	Social     int    `json:"social"`     // Social persona
	Taste      int    `json:"taste"`      // Aesthetic preference
	Values     int    `json:"values"`     // Value system
	Attachment int    `json:"attachment"` // Attachment style
}

// ─── Conversation Types ─────────────────────────────────────────────────────

// Role labels one side of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one persisted message row. A full billing turn is a
// user row followed by an assistant row; rows are immutable once written.
type ConversationTurn struct {
	ID             int64     `json:"id"`
	AccountID      string    `json:"account_id"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	CreditsCharged int64     `json:"credits_charged"` // 0 for user rows
	PairedMode     bool      `json:"paired_mode"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatMessage is an unpersisted history message supplied by the caller.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ─── Turn Request / Response ────────────────────────────────────────────────

// MaxMessageChars is the hard cap on a single user message, in runes.
const MaxMessageChars = 500

// HistoryWindow is how many trailing history messages are forwarded to the
// generation backend.
const HistoryWindow = 10

// TurnRequest is the orchestrator's single entry point payload. The identity
// credential has already been resolved to AccountID by the API layer.
type TurnRequest struct {
	AccountID  string
	Message    string
	History    []ChatMessage
	PairedMode bool
	DeepMode   bool
	Diagnosis  bool
}

// RecentHistory returns the trailing HistoryWindow messages.
func (r *TurnRequest) RecentHistory() []ChatMessage {
	if len(r.History) <= HistoryWindow {
		return r.History
	}
	return r.History[len(r.History)-HistoryWindow:]
}

// Receipt is the out-of-band metadata for a completed turn.
type Receipt struct {
	Cost           int64 `json:"cost"`
	Balance        int64 `json:"balance"` // Credits remaining after the debit
	Tier           Tier  `json:"tier"`
	NightSurcharge bool  `json:"night_surcharge"`
	PairedApplied  bool  `json:"paired_applied"` // Partner was debited too
}

// Shortfall reports an insufficient-funds rejection. It is distinct from a
// generic error so callers can render a top-up prompt instead of a retry.
type Shortfall struct {
	Required int64 `json:"credits_required"`
	Balance  int64 `json:"credits_left"`
}

// ─── Generation Types ───────────────────────────────────────────────────────

// Token is a single streamed chunk from the generation backend.
// A non-nil Err terminates the stream; Done marks a clean end.
type Token struct {
	Text string
	Done bool
	Err  error
}

// GenerationRequest is the assembled prompt handed to the backend.
type GenerationRequest struct {
	System    string        `json:"system"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}
