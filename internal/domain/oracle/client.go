// Package oracle adapts an external natural-language negotiation assistant.
// Its output is purely advisory: the pricing service clamps every suggestion
// and never trusts a suggested price.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds assistant API configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	config     Config
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// Context is the conversational state handed to the assistant. The floor is
// deliberately absent: the assistant must never learn or reveal it.
type Context struct {
	Topic      string
	Message    string
	PriceCents int64
	Attempts   int
}

// Suggestion is the assistant's raw proposal. The action is an unvalidated
// string and the price carries no guarantee; the pricing policy decides what
// actually happens.
type Suggestion struct {
	Action     string `json:"action"`
	Message    string `json:"message"`
	PriceCents int64  `json:"price_cents"`
}

const systemPrompt = `You are a price negotiation assistant for a paid content service.
The backend controls all prices; you only choose a conversational move and phrase a reply.
Respond with a single JSON object and nothing else:
{"action": one of "quote", "pushback", "discount", "floor", "chat", "message": string, "price_cents": integer}
Rules: suggest "discount" only after the buyer has already complained at least once.
Never promise a specific price; the backend decides it.`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Suggest asks the assistant for a negotiation move.
func (c *Client) Suggest(ctx context.Context, nctx Context) (*Suggestion, error) {
	if c == nil || strings.TrimSpace(c.config.BaseURL) == "" {
		return nil, fmt.Errorf("oracle is not configured")
	}

	user := fmt.Sprintf(
		"Topic: %s\nCurrent price: %d cents\nComplaint turns so far: %d\nBuyer says: %s",
		nctx.Topic, nctx.PriceCents, nctx.Attempts, nctx.Message,
	)

	reqBody := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode oracle request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("oracle call failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("oracle call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oracle call failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("oracle returned non-2xx status: %d, body: %s", resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse oracle response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}

	return ParseSuggestion(out.Choices[0].Message.Content)
}

// ParseSuggestion extracts a structured suggestion from assistant output.
// Malformed JSON is an error so callers can fall back to the deterministic
// negotiation policy.
func ParseSuggestion(content string) (*Suggestion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var sugg Suggestion
	if err := json.Unmarshal([]byte(content), &sugg); err != nil {
		return nil, fmt.Errorf("unparseable oracle suggestion: %w", err)
	}
	return &sugg, nil
}
