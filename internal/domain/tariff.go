package domain

import (
	"math"
	"strings"
	"time"
)

// ─── Tariff Types ───────────────────────────────────────────────────────────
// These live in domain because they represent core business rules:
// what a conversational turn costs, before any balance is touched.

// Tier is one of the fixed per-turn cost levels.
type Tier string

const (
	TierStandard  Tier = "standard"  // Keyword-scan default
	TierDeep      Tier = "deep"      // Deep-analysis mode
	TierDiagnosis Tier = "diagnosis" // Full relationship diagnosis
)

// Per-tier base costs in credits.
const (
	CostStandard  int64 = 1
	CostDeep      int64 = 2
	CostDiagnosis int64 = 5
)

// NightMultiplier is applied to the standard tier during night hours,
// rounded up to the next whole credit. Premium tiers are flat-priced.
const NightMultiplier = 1.5

// deepKeywords nominate the deep tier during the keyword scan. The default
// path clamps the result back to the standard tier, so the scan currently
// only exists to keep the upgrade guard honest; the deep tier itself is
// reached via the explicit mode flag.
var deepKeywords = []string{
	"analyze", "analysis", "advice", "why", "pattern", "what should i do",
	"get along", "communicate", "communication", "problem", "help me", "reason",
}

// Tariff is the classifier's verdict for one turn.
type Tariff struct {
	Tier           Tier
	Cost           int64
	NightSurcharge bool
}

// ClassifyTariff maps a trimmed message and the request mode flags to a
// credit cost. Priority is strict: diagnosis > deep > keyword scan.
// The night surcharge applies only on the keyword-scan path; the deep and
// diagnosis tiers are flat-priced regardless of hour. Pure function, no
// side effects: identical input always yields an identical tariff.
func ClassifyTariff(message string, deep, diagnosis, night bool) Tariff {
	if diagnosis {
		return Tariff{Tier: TierDiagnosis, Cost: CostDiagnosis}
	}
	if deep {
		return Tariff{Tier: TierDeep, Cost: CostDeep}
	}

	cost := CostStandard
	if scanDeepKeywords(message) {
		cost = CostDeep
	}
	// Default-path clamp: a keyword match must never silently upgrade the
	// turn past the standard tier.
	if cost > CostStandard {
		cost = CostStandard
	}

	if night {
		cost = int64(math.Ceil(float64(cost) * NightMultiplier))
		return Tariff{Tier: TierStandard, Cost: cost, NightSurcharge: true}
	}
	return Tariff{Tier: TierStandard, Cost: cost}
}

// scanDeepKeywords reports whether the message contains any deep keyword.
func scanDeepKeywords(message string) bool {
	m := strings.ToLower(message)
	for _, kw := range deepKeywords {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

// nightZone is the product's fixed civil-time window (UTC+8), independent
// of the caller's timezone.
var nightZone = time.FixedZone("UTC+8", 8*60*60)

// NightHours reports whether t falls in the 23:00–06:00 night window.
func NightHours(t time.Time) bool {
	h := t.In(nightZone).Hour()
	return h >= 23 || h < 6
}

// ─── Ledger Types ───────────────────────────────────────────────────────────

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a credit operation.
type TransactionType string

const (
	TxSpend  TransactionType = "SPEND"  // Turn debit
	TxRefund TransactionType = "REFUND" // Compensating credit after a failed turn
	TxGrant  TransactionType = "GRANT"  // Operator or redemption top-up
)

// LedgerEntry is a single append-only row in the credit audit trail.
type LedgerEntry struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	EntryType EntryType       `json:"entry_type"`
	Type      TransactionType `json:"type"`
	Amount    int64           `json:"amount"`
	Balance   int64           `json:"balance"` // Balance after this entry
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PendingDebit is the in-memory handle for a debit that may still need a
// compensating credit. It never outlives the request that created it.
type PendingDebit struct {
	AccountID string
	Amount    int64
	Reason    string

	settled bool
}

// NewPendingDebit records a successful debit awaiting settlement.
func NewPendingDebit(accountID string, amount int64, reason string) *PendingDebit {
	return &PendingDebit{AccountID: accountID, Amount: amount, Reason: reason}
}

// Settle marks the debit as resolved and reports whether this call was the
// one that resolved it. Both the success path and the refund path settle,
// so a failed turn triggers at most one compensating credit even under
// retried error handling.
func (p *PendingDebit) Settle() bool {
	if p.settled {
		return false
	}
	p.settled = true
	return true
}
