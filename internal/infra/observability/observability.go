// Package observability holds the prometheus metric set for the metered
// conversation engine: turn outcomes, credit movement, and stream health.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected" // Insufficient funds, no debit kept
	OutcomeFailed    = "failed"   // Debited then refunded
)

// Metrics is the engine's metric set. One instance is shared by the
// orchestrator and recorder; register with a custom registry in tests.
type Metrics struct {
	TurnsTotal         *prometheus.CounterVec
	CreditsDebited     prometheus.Counter
	CreditsRefunded    prometheus.Counter
	PartnerDebits      prometheus.Counter
	PartnerDebitSkips  prometheus.Counter
	ReplyWriteFailures prometheus.Counter
	StreamChars        prometheus.Counter
	GenerationSeconds  prometheus.Histogram
}

// New creates and registers the metric set on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates and registers the metric set on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartlink_turns_total",
			Help: "Conversation turns by outcome.",
		}, []string{"outcome"}),
		CreditsDebited: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartlink_credits_debited_total",
			Help: "Credits debited for turns, including later-refunded ones.",
		}),
		CreditsRefunded: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartlink_credits_refunded_total",
			Help: "Credits returned by compensating credits.",
		}),
		PartnerDebits: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartlink_partner_debits_total",
			Help: "Successful paired-mode partner debits.",
		}),
		PartnerDebitSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartlink_partner_debit_skips_total",
			Help: "Paired-mode partner debits skipped or failed.",
		}),
		ReplyWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartlink_turn_reply_write_failures_total",
			Help: "Assistant replies delivered but not persisted.",
		}),
		StreamChars: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartlink_stream_chars_total",
			Help: "Reply characters relayed live to clients.",
		}),
		GenerationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "heartlink_generation_seconds",
			Help:    "Wall time from stream open to completion.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}
