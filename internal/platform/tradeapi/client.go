// Package tradeapi is the HTTP boundary to the trading core's internal API.
// The engine only needs one operation from it: closing a position
// automatically when its stop-loss or take-profit is crossed. The close
// transaction itself (margin release, P&L booking, wallet updates) lives on
// the other side of this boundary.
package tradeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/triggerd/internal/domain"
)

// Client calls the trading core's internal close endpoint.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a trade API client. timeout bounds each close request;
// zero selects a 10s default.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type closeRequest struct {
	Price          float64 `json:"price"`
	Reason         string  `json:"reason"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type apiError struct {
	Error string `json:"error"`
}

// CloseAutomatic asks the trading core to close the position at the crossed
// price. A 409 from the core means the position was already closed through
// another path and is reported as domain.ErrCloseConflict.
func (c *Client) CloseAutomatic(ctx context.Context, positionID string, price float64, reason domain.TriggerReason) error {
	body, err := json.Marshal(closeRequest{
		Price:          price,
		Reason:         string(reason),
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("tradeapi: marshal close request: %w", err)
	}

	url := fmt.Sprintf("%s/internal/positions/%s/close", c.baseURL, positionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tradeapi: build close request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tradeapi: close position %s: %w", positionID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("tradeapi: close position %s: %w", positionID, domain.ErrCloseConflict)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("tradeapi: close position %s: %w", positionID, domain.ErrNotFound)
	default:
		return fmt.Errorf("tradeapi: close position %s: status %d: %s",
			positionID, resp.StatusCode, readErrorBody(resp.Body))
	}
}

// readErrorBody extracts a short error message from a failed response
// without ever failing itself.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no body"
	}
	var e apiError
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(data)
}

// Compile-time interface check.
var _ domain.PositionCloser = (*Client)(nil)
