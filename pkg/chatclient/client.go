/**
 * @description
 * This package provides a client for communicating with the chat-service.
 * The ledger posts system messages into an account's chat thread when a
 * payment is recorded or confirmed, so both organizations see settlement
 * activity inline with their conversation.
 */
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a client for the chat service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new chat service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// PostSystemMessageRequest defines the request payload for posting a system message.
type PostSystemMessageRequest struct {
	AccountID string `json:"account_id"`
	Text      string `json:"text"`
}

// PostSystemMessage posts a system-authored message into the chat thread for the account pair.
func (c *Client) PostSystemMessage(ctx context.Context, accountID uuid.UUID, text string) error {
	if c.baseURL == "" {
		return fmt.Errorf("chat service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/threads/system-message", c.baseURL)

	payload := PostSystemMessageRequest{
		AccountID: accountID.String(),
		Text:      text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to chat service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("chat service returned error status %d", resp.StatusCode)
	}

	return nil
}
