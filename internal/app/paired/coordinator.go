// Package paired implements the paired-mode coordinator: the best-effort
// partner debit and the redacted partner-context summary. Everything in this
// package is isolated from the primary turn — no error here may change the
// primary caller's outcome.
package paired

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/heartlink/heartlink/internal/domain"
	"github.com/heartlink/heartlink/internal/infra/observability"
)

// SummaryWindow is how many recent partner prompts feed the topic summary.
const SummaryWindow = 5

// PartnerContext is what paired mode contributes to prompt assembly: the
// partner's profile and a one-line, non-verbatim account of what they have
// been asking about. Raw partner text never crosses the barrier.
type PartnerContext struct {
	Profile      domain.PersonalityProfile
	TopicSummary string
	Debited      bool
}

// Coordinator looks up the linked partner, mirrors the debit when funds
// allow, and builds the redacted summary.
type Coordinator struct {
	accounts domain.AccountStore
	ledger   domain.Ledger
	turns    domain.TurnStore
	metrics  *observability.Metrics
	log      *zap.Logger
}

// New creates a Coordinator.
func New(accounts domain.AccountStore, ledger domain.Ledger, turns domain.TurnStore, metrics *observability.Metrics, log *zap.Logger) *Coordinator {
	return &Coordinator{
		accounts: accounts,
		ledger:   ledger,
		turns:    turns,
		metrics:  metrics,
		log:      log.Named("paired"),
	}
}

// Engage runs the paired-mode side effects for one turn. Returns nil when the
// account has no partner or the partner cannot be loaded; a nil return means
// the turn proceeds exactly as in solo mode. The partner debit is independent
// and best-effort: insufficiency or failure is logged, never propagated.
func (c *Coordinator) Engage(ctx context.Context, primary *domain.Account, cost int64) *PartnerContext {
	if !primary.HasPartner() {
		return nil
	}

	partner, err := c.accounts.GetAccount(ctx, primary.PartnerID)
	if err != nil {
		c.log.Warn("partner lookup failed",
			zap.String("account", primary.ID),
			zap.String("partner", primary.PartnerID),
			zap.Error(err))
		return nil
	}

	pc := &PartnerContext{Profile: partner.Profile}

	if partner.Credits >= cost {
		if _, err := c.ledger.Debit(ctx, partner.ID, cost, "paired turn"); err != nil {
			// Lost the race or store failure; either way the primary turn
			// is unaffected.
			c.metrics.PartnerDebitSkips.Inc()
			if !errors.Is(err, domain.ErrInsufficientCredits) {
				c.log.Error("partner debit failed", zap.String("partner", partner.ID), zap.Error(err))
			}
		} else {
			pc.Debited = true
			c.metrics.PartnerDebits.Inc()
		}
	} else {
		c.metrics.PartnerDebitSkips.Inc()
	}

	pc.TopicSummary = c.summarize(ctx, partner.ID)
	return pc
}

// ─── Topic Summary ──────────────────────────────────────────────────────────
// The summary is assembled from a keyword → topic-label table, never from
// quoted text, preserving the one-way information barrier between partners.

var topicLabels = []struct {
	keyword string
	label   string
}{
	{"argu", "recurring arguments"},
	{"fight", "recurring arguments"},
	{"communicat", "how you two communicate"},
	{"talk", "how you two communicate"},
	{"trust", "trust"},
	{"jealous", "trust"},
	{"future", "where the relationship is heading"},
	{"marry", "where the relationship is heading"},
	{"distan", "distance and time apart"},
	{"family", "family expectations"},
	{"parent", "family expectations"},
	{"space", "personal space"},
	{"alone", "personal space"},
}

// summarize folds the partner's recent prompts into one redacted line.
// Empty string when there is nothing to say.
func (c *Coordinator) summarize(ctx context.Context, partnerID string) string {
	prompts, err := c.turns.RecentUserTurns(ctx, partnerID, SummaryWindow)
	if err != nil {
		c.log.Warn("partner history read failed", zap.String("partner", partnerID), zap.Error(err))
		return ""
	}
	if len(prompts) == 0 {
		return ""
	}

	seen := make(map[string]bool)
	var topics []string
	for _, p := range prompts {
		text := strings.ToLower(p.Text)
		for _, tl := range topicLabels {
			if strings.Contains(text, tl.keyword) && !seen[tl.label] {
				seen[tl.label] = true
				topics = append(topics, tl.label)
			}
		}
	}
	if len(topics) == 0 {
		return "your partner has been reflecting on the relationship lately"
	}
	return "your partner has recently been concerned with " + strings.Join(topics, ", ")
}
