// Package push delivers mobile push notifications through the Expo push
// service.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// DefaultEndpoint is the Expo push API endpoint.
const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

// maxBatchSize is the Expo per-request message limit.
const maxBatchSize = 100

var tokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\]]+\]$`)

// IsValidToken reports whether t looks like an Expo push token.
func IsValidToken(t string) bool {
	return tokenPattern.MatchString(t)
}

// Message is a single Expo push message.
type Message struct {
	To       string            `json:"to"`
	Sound    string            `json:"sound"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority"`
}

// Sender sends a push notification to a set of device tokens.
type Sender interface {
	SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// Client is an HTTP client for the Expo push API.
type Client struct {
	endpoint string
	http     *http.Client
	logger   zerolog.Logger
}

func NewClient(endpoint string, logger zerolog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// SendToTokens filters out empty and malformed tokens, then posts the
// message in batches of at most 100 recipients.
func (c *Client) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if !IsValidToken(t) {
			c.logger.Debug().Str("token", t).Msg("push: skipping malformed token")
			continue
		}
		valid = append(valid, t)
	}
	if len(valid) == 0 {
		return nil
	}

	var firstErr error
	for start := 0; start < len(valid); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(valid) {
			end = len(valid)
		}

		batch := make([]Message, 0, end-start)
		for _, t := range valid[start:end] {
			batch = append(batch, Message{
				To:       t,
				Sound:    "default",
				Title:    title,
				Body:     body,
				Data:     data,
				Priority: "high",
			})
		}

		if err := c.post(ctx, batch); err != nil {
			c.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("push: batch send failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Client) post(ctx context.Context, batch []Message) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send push batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push endpoint returned status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// Mock records push sends for tests.
type Mock struct {
	Calls []MockCall
	Err   error
}

// MockCall captures one SendToTokens invocation.
type MockCall struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

func (m *Mock) SendToTokens(_ context.Context, tokens []string, title, body string, data map[string]string) error {
	m.Calls = append(m.Calls, MockCall{Tokens: tokens, Title: title, Body: body, Data: data})
	return m.Err
}
