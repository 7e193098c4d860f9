// Package trigger fires the external document-generation side effect.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docflow/internal/pkg/httpclient"
)

var (
	// ErrConfiguration marks a missing endpoint; never retried.
	ErrConfiguration = errors.New("trigger endpoint not configured")
	// ErrExternalCall marks a failure of both the primary and fallback endpoints.
	ErrExternalCall = errors.New("external trigger call failed")
)

// Request carries the generation context posted to the endpoint. Primary and
// fallback URLs are per-client overrides; empty values fall back to the
// environment-level endpoints.
type Request struct {
	CorrelationID string
	Email         string
	SubjectID     uint
	PrimaryURL    string
	FallbackURL   string
}

type triggerBody struct {
	ResponseID string `json:"responseId"`
	Email      string `json:"email"`
	ClientID   uint   `json:"clientId"`
}

// Client posts generation requests with a two-endpoint fallback: any non-2xx
// or network failure on the primary endpoint is retried once against the
// fallback with the identical body.
type Client struct {
	http        *httpclient.Client
	primaryURL  string
	fallbackURL string
	logger      *zap.Logger
}

func NewClient(primaryURL, fallbackURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		http:        httpclient.New().WithTimeout(timeout),
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		logger:      logger,
	}
}

// Trigger fires the generation request. It returns nil as soon as either
// endpoint answers 2xx and an error only when both attempts fail.
func (c *Client) Trigger(ctx context.Context, req Request) error {
	primary := req.PrimaryURL
	if primary == "" {
		primary = c.primaryURL
	}
	if primary == "" {
		return fmt.Errorf("%w: no primary URL for client %d", ErrConfiguration, req.SubjectID)
	}

	body := triggerBody{
		ResponseID: req.CorrelationID,
		Email:      req.Email,
		ClientID:   req.SubjectID,
	}

	primaryErr := c.post(ctx, primary, body)
	if primaryErr == nil {
		return nil
	}

	fallback := req.FallbackURL
	if fallback == "" {
		fallback = c.fallbackURL
	}
	if fallback == "" {
		return fmt.Errorf("%w: %v", ErrExternalCall, primaryErr)
	}

	c.logger.Warn("Primary trigger endpoint failed, trying fallback",
		zap.Uint("subject_id", req.SubjectID),
		zap.Error(primaryErr))

	if fallbackErr := c.post(ctx, fallback, body); fallbackErr != nil {
		return fmt.Errorf("%w: primary: %v; fallback: %v", ErrExternalCall, primaryErr, fallbackErr)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body triggerBody) error {
	resp, err := c.http.PostJSON(ctx, url, body)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode())
	}
	return nil
}
