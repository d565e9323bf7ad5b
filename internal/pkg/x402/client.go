package x402

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

// Config holds facilitator API configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the external settlement facilitator that verifies payment
// authorizations and executes transfers on the value-transfer network.
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a facilitator client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// VerifyRequest asks the facilitator to check an authorization against requirements.
type VerifyRequest struct {
	Payload      *PaymentPayload     `json:"payment_payload"`
	Requirements PaymentRequirements `json:"payment_requirements"`
}

// VerifyResponse is the facilitator's verification verdict.
type VerifyResponse struct {
	IsValid       bool   `json:"is_valid"`
	InvalidReason string `json:"invalid_reason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// TransferEvent is the decoded transfer log attached to a settlement receipt.
type TransferEvent struct {
	Topic string `json:"topic"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// SettleResponse is the facilitator's settlement result.
type SettleResponse struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	TxHash   string         `json:"tx_hash,omitempty"`
	Network  string         `json:"network,omitempty"`
	Transfer *TransferEvent `json:"transfer,omitempty"`
}

// Verify checks a payment authorization against the requirements.
func (c *Client) Verify(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, "/verify", VerifyRequest{Payload: payload, Requirements: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle executes the transfer on the external network and returns the
// receipt, including the decoded transfer event.
func (c *Client) Settle(ctx context.Context, payload *PaymentPayload, req PaymentRequirements) (*SettleResponse, error) {
	var out SettleResponse
	if err := c.post(ctx, "/settle", VerifyRequest{Payload: payload, Requirements: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("facilitator client is not initialized")
	}
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return fmt.Errorf("facilitator config error: base_url is empty")
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode facilitator request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("facilitator call failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("facilitator call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("facilitator call failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("facilitator returned non-2xx status: %d, body: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse facilitator response: %w", err)
	}
	return nil
}
