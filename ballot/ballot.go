// Package ballot talks to the external voting service that runs election
// ballots. The core never counts votes itself; it opens a ballot, waits for
// the results webhook, and closes the ballot out.
package ballot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"arbflow/fault"
)

// Service is the command surface the election coordinator needs.
type Service interface {
	CreateBallot(ctx context.Context, ref, category string, options []string) error
	SetDetails(ctx context.Context, ref, title, description, infoLink string) error
	SetMinMax(ctx context.Context, ref string, min, max int) error
	ToggleStakeWeight(ctx context.Context, ref string) error
	OpenVoting(ctx context.Context, ref string, endsAt time.Time) error
	CloseVoting(ctx context.Context, ref string) error
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ballot: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("ballot: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Dependencyf("ballot: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fault.Dependencyf("ballot: %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (c *Client) CreateBallot(ctx context.Context, ref, category string, options []string) error {
	return c.post(ctx, "/v1/ballots", map[string]any{
		"ref":      ref,
		"category": category,
		"options":  options,
	})
}

func (c *Client) SetDetails(ctx context.Context, ref, title, description, infoLink string) error {
	return c.post(ctx, "/v1/ballots/"+ref+"/details", map[string]any{
		"title":       title,
		"description": description,
		"info_link":   infoLink,
	})
}

func (c *Client) SetMinMax(ctx context.Context, ref string, min, max int) error {
	return c.post(ctx, "/v1/ballots/"+ref+"/minmax", map[string]any{
		"min": min,
		"max": max,
	})
}

func (c *Client) ToggleStakeWeight(ctx context.Context, ref string) error {
	return c.post(ctx, "/v1/ballots/"+ref+"/settings/stake_weight", map[string]any{
		"enabled": true,
	})
}

func (c *Client) OpenVoting(ctx context.Context, ref string, endsAt time.Time) error {
	return c.post(ctx, "/v1/ballots/"+ref+"/open", map[string]any{
		"ends_at": endsAt.UTC().Format(time.RFC3339),
	})
}

func (c *Client) CloseVoting(ctx context.Context, ref string) error {
	return c.post(ctx, "/v1/ballots/"+ref+"/close", map[string]any{})
}

// Nop is used when no voting service is configured; commands still travel
// through the outbox for audit, only the synchronous calls are skipped.
type Nop struct{}

func (Nop) CreateBallot(context.Context, string, string, []string) error     { return nil }
func (Nop) SetDetails(context.Context, string, string, string, string) error { return nil }
func (Nop) SetMinMax(context.Context, string, int, int) error                { return nil }
func (Nop) ToggleStakeWeight(context.Context, string) error                  { return nil }
func (Nop) OpenVoting(context.Context, string, time.Time) error              { return nil }
func (Nop) CloseVoting(context.Context, string) error                        { return nil }
