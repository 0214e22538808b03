package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/noah-isme/kasir-pos/internal/resilience"
)

// Client fetches exchange rates for the configured base currency.
type Client struct {
	Fetcher  resilience.Fetcher
	Endpoint string
	Base     string
}

type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// Fetch retrieves the latest rate table. Any failure leaves the caller's
// previous table untouched; this method never partially applies data.
func (c Client) Fetch(ctx context.Context) (Table, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return Table{}, fmt.Errorf("rates: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("base", c.Base)
	u.RawQuery = q.Encode()

	body, err := c.Fetcher.Get(ctx, u.String())
	if err != nil {
		return Table{}, fmt.Errorf("rates: fetch: %w", err)
	}
	var parsed ratesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Table{}, fmt.Errorf("rates: decode: %w", err)
	}
	if parsed.Rates == nil {
		return Table{}, fmt.Errorf("rates: response missing rates object")
	}
	return Load(parsed.Rates, c.Base), nil
}
