package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/heartlink/heartlink/internal/app/turn"
)

// ─── Live Credit Feed ───────────────────────────────────────────────────────
// The recharge page subscribes here to show balance movement as it happens:
// {kind: "debit"|"refund", account_id, amount, balance, timestamp}.
// Delivered via Server-Sent Events for HTTP/2 friendliness.

// CreditsHub fans credit events out to connected SSE clients.
type CreditsHub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

// NewCreditsHub creates a new broadcast hub.
func NewCreditsHub() *CreditsHub {
	return &CreditsHub{
		clients: make(map[chan []byte]struct{}),
	}
}

// Broadcast sends a credit event to all connected clients.
func (h *CreditsHub) Broadcast(event turn.CreditEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client too slow — drop message
		}
	}
}

// Subscribe registers a new client. Returns the channel and an unsubscribe func.
func (h *CreditsHub) Subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (h *CreditsHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleCreditsSSE serves the live credit feed.
// GET /api/credits/live
func (h *CreditsHub) HandleCreditsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, unsub := h.Subscribe()
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
