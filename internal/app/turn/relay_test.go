package turn

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/heartlink/heartlink/internal/domain"
)

func tokenStream(tokens ...domain.Token) <-chan domain.Token {
	ch := make(chan domain.Token, len(tokens))
	for _, t := range tokens {
		ch <- t
	}
	close(ch)
	return ch
}

// failWriter fails after n successful writes, like a client that disconnects
// mid-stream.
type failWriter struct {
	strings.Builder
	failAfter int
	writes    int
}

func (w *failWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.failAfter {
		return 0, errors.New("broken pipe")
	}
	return w.Builder.Write(p)
}

func TestRelay_ForwardsAndAccumulates(t *testing.T) {
	var sink strings.Builder
	full, err := Relay(context.Background(), tokenStream(
		domain.Token{Text: "Hel"},
		domain.Token{Text: "lo"},
		domain.Token{Done: true},
	), &sink)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if full != "Hello" {
		t.Errorf("accumulated = %q, want Hello", full)
	}
	if sink.String() != full {
		t.Errorf("sink %q differs from accumulator %q — stored record would not match what the user saw", sink.String(), full)
	}
}

func TestRelay_BareChannelCloseCompletes(t *testing.T) {
	var sink strings.Builder
	full, err := Relay(context.Background(), tokenStream(domain.Token{Text: "ok"}), &sink)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if full != "ok" {
		t.Errorf("accumulated = %q, want ok", full)
	}
}

func TestRelay_TokenErrorDiscardsPartial(t *testing.T) {
	var sink strings.Builder
	full, err := Relay(context.Background(), tokenStream(
		domain.Token{Text: "par"},
		domain.Token{Err: domain.ErrStreamInterrupted},
	), &sink)
	if !errors.Is(err, domain.ErrStreamInterrupted) {
		t.Fatalf("err = %v, want ErrStreamInterrupted", err)
	}
	if full != "" {
		t.Errorf("accumulated = %q, want empty on failure", full)
	}
	// The partial made it to the sink — that is unavoidable — but the
	// caller must never persist it.
	if sink.String() != "par" {
		t.Errorf("sink = %q, want the partial that was already forwarded", sink.String())
	}
}

func TestRelay_SinkFailureIsStreamInterruption(t *testing.T) {
	w := &failWriter{failAfter: 1}
	_, err := Relay(context.Background(), tokenStream(
		domain.Token{Text: "a"},
		domain.Token{Text: "b"},
		domain.Token{Done: true},
	), w)
	if !errors.Is(err, domain.ErrStreamInterrupted) {
		t.Errorf("err = %v, want ErrStreamInterrupted", err)
	}
}

func TestRelay_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan domain.Token) // Never delivers
	_, err := Relay(ctx, ch, &strings.Builder{})
	if !errors.Is(err, domain.ErrStreamInterrupted) {
		t.Errorf("err = %v, want ErrStreamInterrupted", err)
	}
}
