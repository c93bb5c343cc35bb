package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heartlink/heartlink/internal/app/paired"
	"github.com/heartlink/heartlink/internal/domain"
	"github.com/heartlink/heartlink/internal/infra/observability"
)

// Generation budgets per tier.
const (
	maxTokensDefault   = 600
	maxTokensDiagnosis = 800
)

// InsufficientCreditsError carries the exact shortfall so the caller can
// render a top-up affordance instead of a generic error. It wraps
// domain.ErrInsufficientCredits.
type InsufficientCreditsError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Balance)
}

func (e *InsufficientCreditsError) Unwrap() error { return domain.ErrInsufficientCredits }

// CreditEvent describes one balance movement, published to live feeds.
type CreditEvent struct {
	Kind      string `json:"kind"` // "debit" | "refund"
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
	Timestamp int64  `json:"timestamp"`
}

// Orchestrator sequences one conversational turn. One instance serves all
// requests; each Run call is an independent lifecycle with no cross-request
// lock — the ledger's conditional update is the only shared-state guard.
type Orchestrator struct {
	accounts domain.AccountStore
	ledger   domain.Ledger
	backend  domain.GenerationBackend
	recorder *Recorder
	paired   *paired.Coordinator // nil disables paired mode
	metrics  *observability.Metrics
	log      *zap.Logger

	now    func() time.Time  // Injected for night-window tests
	notify func(CreditEvent) // Optional live-feed hook
}

// NewOrchestrator creates the turn orchestrator.
func NewOrchestrator(
	accounts domain.AccountStore,
	ledger domain.Ledger,
	backend domain.GenerationBackend,
	recorder *Recorder,
	pairedCoord *paired.Coordinator,
	metrics *observability.Metrics,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		accounts: accounts,
		ledger:   ledger,
		backend:  backend,
		recorder: recorder,
		paired:   pairedCoord,
		metrics:  metrics,
		log:      log.Named("turn"),
		now:      time.Now,
	}
}

// SetClock overrides the clock used for the night-hours window.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// SetNotifier installs the live credit-event hook.
func (o *Orchestrator) SetNotifier(fn func(CreditEvent)) { o.notify = fn }

// Run executes one turn: classify → debit → generate+relay → record, with a
// single compensating credit on any failure after the debit. The reply is
// streamed to sink as it is generated; the returned receipt carries the
// out-of-band metadata. Errors:
//   - *InsufficientCreditsError: rejected before any state change
//   - domain.ErrGenerationFailed / ErrStreamInterrupted (wrapped): debit
//     already refunded, balance confirmed unchanged
func (o *Orchestrator) Run(ctx context.Context, req domain.TurnRequest, sink io.Writer) (*domain.Receipt, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.ErrEmptyMessage
	}
	if len([]rune(message)) > domain.MaxMessageChars {
		return nil, domain.ErrMessageTooLong
	}

	account, err := o.accounts.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	// Classified
	night := domain.NightHours(o.now())
	tariff := domain.ClassifyTariff(message, req.DeepMode, req.Diagnosis, night)

	// Classified → Debited, or → Rejected with the exact shortfall
	balance, err := o.ledger.Debit(ctx, account.ID, tariff.Cost, "turn "+string(tariff.Tier))
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			o.metrics.TurnsTotal.WithLabelValues(observability.OutcomeRejected).Inc()
			return nil, &InsufficientCreditsError{Required: tariff.Cost, Balance: balance}
		}
		return nil, err
	}
	pending := domain.NewPendingDebit(account.ID, tariff.Cost, "turn "+string(tariff.Tier))
	o.metrics.CreditsDebited.Add(float64(tariff.Cost))
	o.publish(CreditEvent{Kind: "debit", AccountID: account.ID, Amount: tariff.Cost, Balance: balance})

	o.log.Info("turn debited",
		zap.String("account", account.ID),
		zap.String("tier", string(tariff.Tier)),
		zap.Int64("cost", tariff.Cost),
		zap.Int64("balance", balance),
		zap.Bool("night", tariff.NightSurcharge),
		zap.Bool("paired", req.PairedMode))

	// The prompt row is written before generation starts; a failure here
	// aborts the turn and refunds.
	if err := o.recorder.RecordPrompt(ctx, account.ID, message, req.PairedMode); err != nil {
		return nil, o.fail(ctx, pending, fmt.Errorf("record prompt: %w", err))
	}

	// Paired mode is fully isolated: nil partner context degrades to solo.
	var partnerCtx *paired.PartnerContext
	if req.PairedMode && o.paired != nil {
		partnerCtx = o.paired.Engage(ctx, account, tariff.Cost)
	}

	receipt := &domain.Receipt{
		Cost:           tariff.Cost,
		Balance:        balance,
		Tier:           tariff.Tier,
		NightSurcharge: tariff.NightSurcharge,
		PairedApplied:  partnerCtx != nil && partnerCtx.Debited,
	}
	// Out-of-band metadata goes to the sink before the first reply byte so
	// HTTP callers can carry it in headers.
	if ms, ok := sink.(MetaSink); ok {
		ms.TurnMeta(*receipt)
	}

	genReq := o.assemble(account, partnerCtx, &req, message, tariff, night)

	started := o.now()
	tokens, err := o.backend.Generate(ctx, genReq)
	if err != nil {
		return nil, o.fail(ctx, pending, err)
	}

	// Generating: forward live while accumulating for persistence.
	reply, err := Relay(ctx, tokens, sink)
	if err != nil {
		return nil, o.fail(ctx, pending, err)
	}
	o.metrics.GenerationSeconds.Observe(o.now().Sub(started).Seconds())
	o.metrics.StreamChars.Add(float64(len(reply)))

	// Generating → Recorded. The debit is kept from here on even if the
	// reply write fails — the user already received the content. The write
	// is detached from the request so a hang-up right after the last token
	// cannot void it.
	pending.Settle()
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelWrite()
	o.recorder.RecordReply(writeCtx, account.ID, reply, tariff.Cost, req.PairedMode)
	o.metrics.TurnsTotal.WithLabelValues(observability.OutcomeCompleted).Inc()

	return receipt, nil
}

// MetaSink is an output sink that also accepts the turn's out-of-band
// metadata, delivered after the debit and before the first reply byte.
type MetaSink interface {
	io.Writer
	TurnMeta(receipt domain.Receipt)
}

// fail routes Debited/Generating → Failed → Refunded: exactly one
// compensating credit for the pending amount, then the error propagates.
func (o *Orchestrator) fail(ctx context.Context, pending *domain.PendingDebit, cause error) error {
	if !pending.Settle() {
		return cause
	}

	// The refund must run even when the failure is the caller's own
	// disconnect, so it is detached from the request's cancellation.
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	balance, err := o.ledger.Credit(refundCtx, pending.AccountID, pending.Amount, domain.TxRefund, pending.Reason)
	if err != nil {
		// A paid-for turn with no refund is the one state we never accept
		// silently; log loudly enough to reconcile from the ledger.
		o.log.Error("compensating credit failed",
			zap.String("account", pending.AccountID),
			zap.Int64("amount", pending.Amount),
			zap.Error(err))
	} else {
		o.metrics.CreditsRefunded.Add(float64(pending.Amount))
		o.publish(CreditEvent{Kind: "refund", AccountID: pending.AccountID, Amount: pending.Amount, Balance: balance})
	}

	o.metrics.TurnsTotal.WithLabelValues(observability.OutcomeFailed).Inc()
	o.log.Warn("turn failed after debit",
		zap.String("account", pending.AccountID),
		zap.Int64("refunded", pending.Amount),
		zap.Error(cause))
	return cause
}

func (o *Orchestrator) publish(evt CreditEvent) {
	if o.notify == nil {
		return
	}
	evt.Timestamp = o.now().Unix()
	o.notify(evt)
}

// ─── Prompt Assembly ────────────────────────────────────────────────────────

// assemble builds the generation request: system framing from the profile
// (plus the redacted partner context in paired mode), the trimmed history
// window, and the new message.
func (o *Orchestrator) assemble(account *domain.Account, partnerCtx *paired.PartnerContext, req *domain.TurnRequest, message string, tariff domain.Tariff, night bool) domain.GenerationRequest {
	var sys strings.Builder
	sys.WriteString("You are a warm, perceptive relationship companion. ")
	sys.WriteString("You have read this person's compatibility report and speak like a trusted friend, not a lecture.\n")
	fmt.Fprintf(&sys, "Their profile: type %s; pace %d, social %d, taste %d, values %d, attachment %d.\n",
		account.Profile.TypeName, account.Profile.Pace, account.Profile.Social,
		account.Profile.Taste, account.Profile.Values, account.Profile.Attachment)

	if partnerCtx != nil {
		fmt.Fprintf(&sys, "They are here with their partner in mind. Partner profile: type %s; pace %d, social %d, taste %d, values %d, attachment %d.\n",
			partnerCtx.Profile.TypeName, partnerCtx.Profile.Pace, partnerCtx.Profile.Social,
			partnerCtx.Profile.Taste, partnerCtx.Profile.Values, partnerCtx.Profile.Attachment)
		if partnerCtx.TopicSummary != "" {
			sys.WriteString("Background you may draw on, but never quote or attribute: ")
			sys.WriteString(partnerCtx.TopicSummary)
			sys.WriteString(".\n")
		}
	}

	switch tariff.Tier {
	case domain.TierDiagnosis:
		sys.WriteString("They asked for a full relationship diagnosis: go from root cause to concrete pattern to one core direction, grounded in the profile data.\n")
	case domain.TierDeep:
		sys.WriteString("They asked for deep analysis: be specific and grounded in the profile data, not generic advice.\n")
	}
	if night {
		sys.WriteString("It is late at night for them; keep the tone soft and companionable.\n")
	}
	sys.WriteString("Keep answers conversational and end with one sincere follow-up question.")

	maxTokens := maxTokensDefault
	if tariff.Tier == domain.TierDiagnosis {
		maxTokens = maxTokensDiagnosis
	}

	messages := append([]domain.ChatMessage{}, req.RecentHistory()...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})

	return domain.GenerationRequest{
		System:    sys.String(),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
}
