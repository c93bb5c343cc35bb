// Package turn implements the metered conversation engine: the stream relay,
// the conversation recorder, and the orchestrator that sequences
// classify → debit → generate → record with a compensating credit on failure.
package turn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/heartlink/heartlink/internal/domain"
)

// Relay forwards a live token stream to sink while accumulating the full
// text in one pass, so the stored record is exactly what the client saw.
// On clean stream end it returns the accumulated text. On a token error, a
// sink write failure (client disconnect), or context cancellation it returns
// an error and the partial text must be discarded by the caller — the
// completion path is the nil-error return, nothing else.
func Relay(ctx context.Context, tokens <-chan domain.Token, sink io.Writer) (string, error) {
	flusher, _ := sink.(http.Flusher)
	var full strings.Builder

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, ctx.Err())
		case tok, ok := <-tokens:
			if !ok {
				// Channel closed without an explicit Done marker; the backend
				// client only does this after Done or Err, so treat a bare
				// close as completion.
				return full.String(), nil
			}
			if tok.Err != nil {
				return "", tok.Err
			}
			if tok.Done {
				return full.String(), nil
			}
			if tok.Text == "" {
				continue
			}
			if _, err := sink.Write([]byte(tok.Text)); err != nil {
				return "", fmt.Errorf("%w: client sink: %v", domain.ErrStreamInterrupted, err)
			}
			if flusher != nil {
				flusher.Flush()
			}
			full.WriteString(tok.Text)
		}
	}
}
