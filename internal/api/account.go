package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/heartlink/heartlink/internal/domain"
)

// ─── Account Endpoints ──────────────────────────────────────────────────────
// Read-only views for the report front end: balance, profile, partner link,
// and recent conversation history. Authenticated with the same credential
// as the chat endpoint.

// HandleAccount returns the caller's balance and profile.
// GET /api/account
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.resolveCredential(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, credentialMessage(err))
		return
	}

	account, err := s.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          account.ID,
		"credits":     account.Credits,
		"has_partner": account.HasPartner(),
		"profile":     account.Profile,
		"created_at":  account.CreatedAt.Format(time.RFC3339),
	})
}

// HandleHistory returns the caller's most recent conversation rows.
// GET /api/account/history?limit=20
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.resolveCredential(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, credentialMessage(err))
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	rows, err := s.turns.RecentTurns(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type turnResponse struct {
		Role           string `json:"role"`
		Text           string `json:"text"`
		CreditsCharged int64  `json:"credits_charged"`
		PairedMode     bool   `json:"paired_mode"`
		CreatedAt      string `json:"created_at"`
	}

	out := make([]turnResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, turnResponse{
			Role:           string(row.Role),
			Text:           row.Text,
			CreditsCharged: row.CreditsCharged,
			PairedMode:     row.PairedMode,
			CreatedAt:      row.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"turns": out,
	})
}
