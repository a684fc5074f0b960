// Package oracle resolves the reference-currency price used to convert USD
// denominated fees and costs into escrowed amounts.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"arbflow/fault"
)

// PriceOracle yields the median USD rate of the reference currency, as int64
// at four decimal places.
type PriceOracle interface {
	MedianRate(ctx context.Context) (int64, error)
}

// Client reads the median from the datapoints feed of an oracle service.
type Client struct {
	baseURL string
	pair    string
	http    *http.Client
}

func NewClient(baseURL, pair string) *Client {
	return &Client{
		baseURL: baseURL,
		pair:    pair,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type medianResponse struct {
	Pair   string `json:"pair"`
	Median int64  `json:"median"`
}

func (c *Client) MedianRate(ctx context.Context) (int64, error) {
	url := fmt.Sprintf("%s/v1/datapoints/%s/median", c.baseURL, c.pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fault.Dependencyf("oracle: fetch median: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fault.Dependencyf("oracle: fetch median: status %d", resp.StatusCode)
	}

	var body medianResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fault.Dependencyf("oracle: decode median: %w", err)
	}
	if body.Median <= 0 {
		return 0, fault.Dependency("oracle: no datapoints for " + c.pair)
	}
	return body.Median, nil
}

// Static returns a fixed rate; used by tests and local runs.
type Static struct {
	Rate int64
}

func (s Static) MedianRate(context.Context) (int64, error) {
	if s.Rate <= 0 {
		return 0, fault.Dependency("oracle: no datapoints configured")
	}
	return s.Rate, nil
}
