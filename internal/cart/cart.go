package cart

import (
	"errors"
	"fmt"

	"github.com/noah-isme/kasir-pos/internal/catalog"
)

// ErrInvalidQuantity is returned when a caller violates the positive-quantity
// contract on AddItem.
var ErrInvalidQuantity = errors.New("cart: quantity must be a positive integer")

// Line is a single cart entry. At most one line exists per product id; adds
// for an existing product merge into its line.
type Line struct {
	ProductID     int64  `json:"productId"`
	Name          string `json:"name"`
	UnitPriceBase int64  `json:"unitPriceBase"`
	Quantity      int    `json:"quantity"`
}

// Cart holds the cashier's current line items in insertion order. Mutators
// are synchronous and touch nothing but the cart's own state; persistence and
// recomputation are the caller's responsibility.
type Cart struct {
	lines []Line
	index map[int64]int
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{index: make(map[int64]int)}
}

// FromLines rebuilds a cart from persisted lines, dropping malformed entries
// and merging duplicates so restored state honours the cart invariants.
func FromLines(lines []Line) *Cart {
	c := New()
	for _, l := range lines {
		if l.Quantity <= 0 || l.UnitPriceBase < 0 {
			continue
		}
		if i, ok := c.index[l.ProductID]; ok {
			c.lines[i].Quantity += l.Quantity
			continue
		}
		c.index[l.ProductID] = len(c.lines)
		c.lines = append(c.lines, l)
	}
	return c
}

// AddItem appends a new line or increments the quantity of the existing line
// for the product.
func (c *Cart) AddItem(p catalog.Product, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("add %d of product %d: %w", qty, p.ID, ErrInvalidQuantity)
	}
	if i, ok := c.index[p.ID]; ok {
		c.lines[i].Quantity += qty
		return nil
	}
	c.index[p.ID] = len(c.lines)
	c.lines = append(c.lines, Line{
		ProductID:     p.ID,
		Name:          p.Title,
		UnitPriceBase: p.UnitPriceBase,
		Quantity:      qty,
	})
	return nil
}

// ChangeQuantity adds delta to the line's quantity. A resulting quantity of
// zero or less removes the line. Unknown product ids are a no-op.
func (c *Cart) ChangeQuantity(productID int64, delta int) {
	i, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines[i].Quantity += delta
	if c.lines[i].Quantity <= 0 {
		c.remove(i)
	}
}

// RemoveItem deletes the line for the product if present.
func (c *Cart) RemoveItem(productID int64) {
	if i, ok := c.index[productID]; ok {
		c.remove(i)
	}
}

// Lines returns a snapshot of the cart contents in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int { return len(c.lines) }

// Clear removes every line.
func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[int64]int)
}

func (c *Cart) remove(i int) {
	id := c.lines[i].ProductID
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].ProductID] = j
	}
}
