package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/noah-isme/kasir-pos/internal/resilience"
)

// Client fetches the raw product list from the upstream catalog source.
type Client struct {
	Fetcher  resilience.Fetcher
	Endpoint string
	Limit    int
}

type productsResponse struct {
	Products []RawProduct `json:"products"`
}

// Fetch retrieves the raw product list. Failures leave the caller's previous
// catalog untouched.
func (c Client) Fetch(ctx context.Context) ([]RawProduct, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse endpoint: %w", err)
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 100
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	body, err := c.Fetcher.Get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch: %w", err)
	}
	var parsed productsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return parsed.Products, nil
}
