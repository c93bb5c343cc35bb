package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/heartlink/heartlink/internal/app/turn"
	"github.com/heartlink/heartlink/internal/domain"
)

// ─── Chat Endpoint ──────────────────────────────────────────────────────────
// POST /api/chat — the single entry point of the metered conversation engine.
//
// Success: 200 with a live text/plain reply stream; out-of-band metadata in
// X-Credits-Cost, X-Credits-Left, X-Night-Surcharge (set before the first
// byte). Insufficient funds: 402 with the structured shortfall so the front
// end renders a top-up prompt, not an error page.

type chatRequest struct {
	Token     string               `json:"token"`
	Message   string               `json:"message"`
	History   []domain.ChatMessage `json:"history"`
	Paired    bool                 `json:"paired_mode"`
	Deep      bool                 `json:"deep_mode"`
	Diagnosis bool                 `json:"diagnosis_mode"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusUnauthorized, "missing identity credential")
		return
	}

	accountID, err := s.identity.Resolve(req.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, credentialMessage(err))
		return
	}

	sink := &turnStream{w: w}
	receipt, err := s.orch.Run(r.Context(), domain.TurnRequest{
		AccountID:  accountID,
		Message:    req.Message,
		History:    req.History,
		PairedMode: req.Paired,
		DeepMode:   req.Deep,
		Diagnosis:  req.Diagnosis,
	}, sink)
	if err != nil {
		s.writeTurnError(w, sink, accountID, err)
		return
	}

	s.log.Debug("turn completed",
		zap.String("account", accountID),
		zap.Int64("cost", receipt.Cost),
		zap.Int64("left", receipt.Balance))
}

// writeTurnError maps orchestrator failures onto the response, provided the
// stream has not started. A mid-stream failure can only be signalled by
// closing the connection early; the refund has already been applied.
func (s *Server) writeTurnError(w http.ResponseWriter, sink *turnStream, accountID string, err error) {
	if sink.started {
		s.log.Warn("turn failed mid-stream", zap.String("account", accountID), zap.Error(err))
		return
	}
	sink.clearMeta()

	var shortfall *turn.InsufficientCreditsError
	switch {
	case errors.As(err, &shortfall):
		writeJSON(w, http.StatusPaymentRequired, struct {
			Error string `json:"error"`
			domain.Shortfall
		}{
			Error:     "insufficient_credits",
			Shortfall: domain.Shortfall{Required: shortfall.Required, Balance: shortfall.Balance},
		})
	case errors.Is(err, domain.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is empty")
	case errors.Is(err, domain.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, "message exceeds the 500 character cap")
	case errors.Is(err, domain.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, domain.ErrGenerationFailed), errors.Is(err, domain.ErrStreamInterrupted):
		// Distinct from insufficient funds: the debit has been reversed and
		// the caller may simply retry.
		s.log.Warn("generation failed, turn refunded", zap.String("account", accountID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "generation failed, credits refunded")
	default:
		s.log.Error("turn failed", zap.String("account", accountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func credentialMessage(err error) string {
	if errors.Is(err, domain.ErrCredentialExpired) {
		return "credential expired, reopen your report page"
	}
	return "credential invalid"
}

// turnStream adapts the ResponseWriter into the orchestrator's sink. It
// implements turn.MetaSink: the receipt arrives before the first reply byte
// and is carried as response headers.
type turnStream struct {
	w       http.ResponseWriter
	started bool
	hasMeta bool
}

// TurnMeta stages the out-of-band metadata headers.
func (t *turnStream) TurnMeta(receipt domain.Receipt) {
	h := t.w.Header()
	h.Set("X-Credits-Cost", strconv.FormatInt(receipt.Cost, 10))
	h.Set("X-Credits-Left", strconv.FormatInt(receipt.Balance, 10))
	h.Set("X-Night-Surcharge", strconv.FormatBool(receipt.NightSurcharge))
	t.hasMeta = true
}

// clearMeta drops staged headers when the turn fails before streaming, so
// error responses do not carry stale turn metadata.
func (t *turnStream) clearMeta() {
	if !t.hasMeta || t.started {
		return
	}
	h := t.w.Header()
	h.Del("X-Credits-Cost")
	h.Del("X-Credits-Left")
	h.Del("X-Night-Surcharge")
}

func (t *turnStream) Write(p []byte) (int, error) {
	if !t.started {
		t.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		t.w.WriteHeader(http.StatusOK)
		t.started = true
	}
	return t.w.Write(p)
}

// Flush lets the relay push each chunk to the client immediately.
func (t *turnStream) Flush() {
	if f, ok := t.w.(http.Flusher); ok {
		f.Flush()
	}
}
