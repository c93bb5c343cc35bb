// Package genai implements domain.GenerationBackend against an
// OpenAI-compatible chat completions endpoint, relaying the SSE response
// as a channel of tokens.
package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heartlink/heartlink/internal/domain"
)

// Config controls the backend client.
type Config struct {
	BaseURL     string        // e.g. https://dashscope.aliyuncs.com/compatible-mode/v1
	APIKey      string
	Model       string        // e.g. qwen-plus
	Temperature float64
	Timeout     time.Duration // Whole-stream deadline
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Model:       "qwen-plus",
		Temperature: 0.8,
		Timeout:     3 * time.Minute,
	}
}

// Client streams chat completions from the configured backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
}

// New creates a backend client.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.Named("genai"),
	}
}

// httpError is a non-2xx response from the backend.
type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("generation backend http %d: %s", e.StatusCode, e.Body)
}

// ─── Wire Types ─────────────────────────────────────────────────────────────

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// ─── Streaming ──────────────────────────────────────────────────────────────

// Generate opens the completion stream. The returned channel is closed when
// the stream ends; a mid-stream failure is delivered as a Token with Err set
// before the close. Cancelling ctx aborts the stream.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (<-chan domain.Token, error) {
	body := chatRequest{
		Model:       c.cfg.Model,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		herr := &httpError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(slurp))}
		c.log.Error("backend rejected request", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, herr)
	}

	out := make(chan domain.Token)
	go c.relay(ctx, resp.Body, out)
	return out, nil
}

// relay parses SSE data lines into tokens until [DONE] or failure. Every
// send races ctx so a consumer that stops receiving cannot strand this
// goroutine; cancellation also aborts the body read, closing the
// connection.
func (c *Client) relay(ctx context.Context, body io.ReadCloser, out chan<- domain.Token) {
	defer close(out)
	defer body.Close()

	send := func(tok domain.Token) bool {
		select {
		case out <- tok:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			send(domain.Token{Done: true})
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.log.Warn("skipping malformed chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			if !send(domain.Token{Text: text}) {
				return
			}
		}
		if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
			send(domain.Token{Done: true})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		send(domain.Token{Err: fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, err)})
		return
	}
	// Stream ended without [DONE]; treat as interrupted so no completion
	// callback fires on a possibly truncated reply.
	send(domain.Token{Err: domain.ErrStreamInterrupted})
}
