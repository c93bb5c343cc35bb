package turn

import (
	"context"

	"go.uber.org/zap"

	"github.com/heartlink/heartlink/internal/domain"
	"github.com/heartlink/heartlink/internal/infra/observability"
)

// Recorder persists the two rows of a billing turn. The prompt write is
// synchronous and fatal to the turn; the reply write is best-effort — by the
// time it runs the user has already received the content, so its failure is
// logged and counted, never refunded or surfaced.
type Recorder struct {
	turns   domain.TurnStore
	metrics *observability.Metrics
	log     *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(turns domain.TurnStore, metrics *observability.Metrics, log *zap.Logger) *Recorder {
	return &Recorder{turns: turns, metrics: metrics, log: log.Named("recorder")}
}

// RecordPrompt writes the user's message before generation starts.
// Zero charge; an error here aborts the turn.
func (r *Recorder) RecordPrompt(ctx context.Context, accountID, text string, paired bool) error {
	return r.turns.InsertTurn(ctx, &domain.ConversationTurn{
		AccountID:  accountID,
		Role:       domain.RoleUser,
		Text:       text,
		PairedMode: paired,
	})
}

// RecordReply writes the assistant's full reply after the relay completes,
// carrying the tier cost and the paired flag that was in effect.
func (r *Recorder) RecordReply(ctx context.Context, accountID, text string, cost int64, paired bool) {
	err := r.turns.InsertTurn(ctx, &domain.ConversationTurn{
		AccountID:      accountID,
		Role:           domain.RoleAssistant,
		Text:           text,
		CreditsCharged: cost,
		PairedMode:     paired,
	})
	if err != nil {
		r.metrics.ReplyWriteFailures.Inc()
		r.log.Error("assistant reply not persisted",
			zap.String("account", accountID),
			zap.Int64("cost", cost),
			zap.Int("reply_chars", len(text)),
			zap.Error(err))
	}
}
