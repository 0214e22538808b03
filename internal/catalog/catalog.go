package catalog

import (
	"strings"

	"github.com/noah-isme/kasir-pos/internal/money"
)

// DefaultPriceMultiplier converts upstream catalog prices into base-currency
// minor units. The product source quotes USD-like prices; one unit is worth
// roughly this many rupiah. Injectable via config so a source change does not
// touch pricing logic.
const DefaultPriceMultiplier = 16000

// Product is a normalized, immutable catalog entry. Prices are stored in
// integer minor units of the base currency.
type Product struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	UnitPriceBase int64  `json:"unitPriceBase"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	Stock         int    `json:"stock"`
}

// RawProduct mirrors the upstream product representation before
// normalization.
type RawProduct struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Thumbnail   string   `json:"thumbnail"`
	Images      []string `json:"images"`
	Stock       int      `json:"stock"`
}

// Catalog is a read-only, searchable view of the fetched products. It is
// replaced wholesale on each successful refresh.
type Catalog struct {
	products []Product
	byID     map[int64]Product
}

// Load normalizes raw products into a Catalog, converting upstream prices to
// base minor units via the multiplier.
func Load(raw []RawProduct, multiplier int64) Catalog {
	if multiplier <= 0 {
		multiplier = DefaultPriceMultiplier
	}
	products := make([]Product, 0, len(raw))
	byID := make(map[int64]Product, len(raw))
	for _, rp := range raw {
		p := Product{
			ID:            rp.ID,
			Title:         rp.Title,
			Description:   rp.Description,
			UnitPriceBase: money.RoundHalfUp(rp.Price * float64(multiplier)),
			Thumbnail:     rp.Thumbnail,
			Stock:         rp.Stock,
		}
		if p.Stock < 0 {
			p.Stock = 0
		}
		products = append(products, p)
		byID[p.ID] = p
	}
	return Catalog{products: products, byID: byID}
}

// Products returns all products in their original order.
func (c Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Get looks a product up by id.
func (c Catalog) Get(id int64) (Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Len returns the number of products in the catalog.
func (c Catalog) Len() int { return len(c.products) }

// Search filters products by a case-insensitive substring match against
// title and description. An empty query returns the full catalog in its
// original order.
func (c Catalog) Search(query string) []Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.Products()
	}
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if strings.Contains(strings.ToLower(p.Title), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	return out
}
