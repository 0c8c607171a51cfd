// Package genai is a thin HTTP client for Google's Generative Language API.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Part is one inline document fed to the model alongside the instruction.
type Part struct {
	Data     []byte
	MIMEType string
}

// Client generates text from a set of inline documents and an instruction
// prompt.
type Client interface {
	Generate(ctx context.Context, parts []Part, instruction string) (string, error)
}

// GeminiClient calls the generateContent endpoint over REST.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewGeminiClient(apiKey, model, baseURL string) *GeminiClient {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 90 * time.Second},
	}
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []requestPart `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate posts the documents plus instruction and returns the concatenated
// text of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, parts []Part, instruction string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	reqParts := make([]requestPart, 0, len(parts)+1)
	for _, p := range parts {
		reqParts = append(reqParts, requestPart{
			InlineData: &inlineData{
				MIMEType: p.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			},
		})
	}
	reqParts = append(reqParts, requestPart{Text: instruction})

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: reqParts}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model returned status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("model error %d: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("model returned no candidates")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
