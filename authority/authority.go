// Package authority mirrors the seated roster onto the shared signing
// authority. Whenever the roster changes, the full signer list is replaced
// with the seated accounts and a two-thirds threshold.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"arbflow/fault"
)

// Registry is the surface the election coordinator and admin operations use.
type Registry interface {
	ReplaceSigners(ctx context.Context, signers []string, threshold int) error
}

// Threshold computes the signing threshold for n seated arbitrators: floor of
// two thirds plus one, except that three or fewer signers need only one.
func Threshold(n int) int {
	if n <= 3 {
		return 1
	}
	return n*2/3 + 1
}

// Client is the HTTP implementation of Registry.
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

// ReplaceSigners swaps in the new signer set. Signers must already be sorted;
// each carries weight 1.
func (c *Client) ReplaceSigners(ctx context.Context, signers []string, threshold int) error {
	type signer struct {
		Account string `json:"account"`
		Weight  int    `json:"weight"`
	}
	weighted := make([]signer, len(signers))
	for i, s := range signers {
		weighted[i] = signer{Account: s, Weight: 1}
	}

	raw, err := json.Marshal(map[string]any{
		"signers":   weighted,
		"threshold": threshold,
	})
	if err != nil {
		return fmt.Errorf("authority: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/authority/signers", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("authority: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Dependencyf("authority: replace signers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fault.Dependencyf("authority: replace signers: status %d", resp.StatusCode)
	}
	return nil
}

// Nop skips the synchronous call; the outbox update message still records the
// intended signer set.
type Nop struct{}

func (Nop) ReplaceSigners(context.Context, []string, int) error { return nil }
