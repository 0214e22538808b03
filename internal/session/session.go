package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-pos/internal/cart"
	"github.com/noah-isme/kasir-pos/internal/catalog"
	"github.com/noah-isme/kasir-pos/internal/checkout"
	"github.com/noah-isme/kasir-pos/internal/common"
	"github.com/noah-isme/kasir-pos/internal/events"
	"github.com/noah-isme/kasir-pos/internal/obs"
	"github.com/noah-isme/kasir-pos/internal/pricing"
	"github.com/noah-isme/kasir-pos/internal/rates"
	"github.com/noah-isme/kasir-pos/internal/store"
)

// ErrNotFound indicates the requested product is not in the catalog.
var ErrNotFound = errors.New("session: product not found")

// CatalogSource fetches raw products from the upstream catalog.
type CatalogSource interface {
	Fetch(ctx context.Context) ([]catalog.RawProduct, error)
}

// RateSource fetches a fresh exchange rate table.
type RateSource interface {
	Fetch(ctx context.Context) (rates.Table, error)
}

// Config groups Session dependencies.
type Config struct {
	Catalog         CatalogSource
	Rates           RateSource
	Cache           *catalog.Cache
	Store           store.Adapter
	Bus             *events.Bus
	Processor       checkout.Processor
	BaseCurrency    string
	TaxBps          int
	PriceMultiplier int64
	Logger          zerolog.Logger
}

// Session owns the single cashier session: the fetched catalog and rate
// table, the cart and the selected display currency. All operations are
// synchronous and atomic with respect to each other; the only suspending
// work is the joined catalog+rates refresh.
type Session struct {
	mu sync.Mutex

	cfg      Config
	catalog  catalog.Catalog
	rates    rates.Table
	cart     *cart.Cart
	currency string

	loaded      bool
	lastRefresh time.Time
	refreshGen  uint64
}

// New constructs a Session with an empty cart and the base currency selected.
func New(cfg Config) *Session {
	return &Session{
		cfg:      cfg,
		rates:    rates.Empty(cfg.BaseCurrency),
		cart:     cart.New(),
		currency: cfg.BaseCurrency,
	}
}

// Restore applies the persisted snapshot. Called once at startup, before the
// session serves requests.
func (s *Session) Restore(ctx context.Context) {
	snap := s.cfg.Store.Restore(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = cart.FromLines(snap.CartLines)
	if snap.SelectedCurrency != "" {
		s.currency = snap.SelectedCurrency
	}
	s.cfg.Logger.Info().
		Int("lines", s.cart.Len()).
		Str("currency", s.currency).
		Msg("session restored")
}

// WarmFromCache loads the last cached raw catalog so the cashier can sell
// before the first upstream fetch completes. Rates stay base-only until a
// refresh succeeds.
func (s *Session) WarmFromCache(ctx context.Context) {
	raw, ok, err := s.cfg.Cache.Get(ctx)
	if err != nil {
		s.cfg.Logger.Warn().Err(err).Msg("warm catalog from cache")
		return
	}
	if !ok || len(raw) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.catalog = catalog.Load(raw, s.cfg.PriceMultiplier)
	s.loaded = true
	s.cfg.Logger.Info().Int("products", s.catalog.Len()).Msg("catalog warmed from cache")
}

// Refresh fetches the catalog and rate table concurrently and applies both,
// or neither. A failed refresh keeps the last good snapshot. A refresh
// superseded by a newer one discards its result.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshGen++
	gen := s.refreshGen
	s.mu.Unlock()

	type catalogResult struct {
		raw []catalog.RawProduct
		err error
	}
	type ratesResult struct {
		table rates.Table
		err   error
	}
	catalogCh := make(chan catalogResult, 1)
	ratesCh := make(chan ratesResult, 1)

	go func() {
		raw, err := s.cfg.Catalog.Fetch(ctx)
		catalogCh <- catalogResult{raw: raw, err: err}
	}()
	go func() {
		table, err := s.cfg.Rates.Fetch(ctx)
		ratesCh <- ratesResult{table: table, err: err}
	}()

	cres := <-catalogCh
	rres := <-ratesCh

	if cres.err != nil || rres.err != nil {
		err := errors.Join(cres.err, rres.err)
		s.cfg.Logger.Warn().Err(err).Msg("refresh failed, retaining previous state")
		observeRefresh("failure")
		return common.NewAppError(common.CodeFetchFailed,
			"failed to refresh catalog and rates", http.StatusBadGateway, err)
	}

	s.mu.Lock()
	if gen != s.refreshGen {
		s.mu.Unlock()
		s.cfg.Logger.Debug().Uint64("gen", gen).Msg("discarding stale refresh result")
		observeRefresh("stale")
		return nil
	}
	s.catalog = catalog.Load(cres.raw, s.cfg.PriceMultiplier)
	s.rates = rres.table
	s.loaded = true
	s.lastRefresh = time.Now()
	products := s.catalog.Len()
	currencies := s.rates.Len()
	s.mu.Unlock()

	if err := s.cfg.Cache.Set(ctx, cres.raw); err != nil {
		s.cfg.Logger.Warn().Err(err).Msg("cache raw catalog")
	}
	observeRefresh("success")
	s.cfg.Logger.Info().
		Int("products", products).
		Int("currencies", currencies).
		Msg("catalog and rates refreshed")
	s.cfg.Bus.Emit(ctx, events.TopicRefreshApplied, nil)
	return nil
}

// Search returns catalog products matching the query.
func (s *Session) Search(query string) []catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Search(query)
}

// Currencies lists the selectable currency codes and the current selection.
func (s *Session) Currencies() (codes []string, selected string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rates.Currencies(), s.currency
}

// SelectCurrency changes the display currency. Cart contents are untouched;
// only displayed figures change. Unknown codes are accepted and degrade to
// base-equivalent display.
func (s *Session) SelectCurrency(ctx context.Context, code string) error {
	if code == "" {
		return common.NewAppError(common.CodeValidation, "currency is required", http.StatusBadRequest, nil)
	}
	s.mu.Lock()
	s.currency = code
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.cfg.Bus.Emit(ctx, events.TopicCurrencyChanged, snap)
	return nil
}

// AddToCart adds qty of the product to the cart.
func (s *Session) AddToCart(ctx context.Context, productID int64, qty int) error {
	s.mu.Lock()
	p, ok := s.catalog.Get(productID)
	if !ok {
		s.mu.Unlock()
		return common.NewAppError(common.CodeNotFound,
			fmt.Sprintf("product %d not in catalog", productID), http.StatusNotFound, ErrNotFound)
	}
	if err := s.cart.AddItem(p, qty); err != nil {
		s.mu.Unlock()
		return common.NewAppError(common.CodeValidation, "quantity must be positive", http.StatusBadRequest, err)
	}
	snap := s.snapshotLocked()
	lines := s.cart.Len()
	s.mu.Unlock()

	observeCartLines(lines)
	s.cfg.Bus.Emit(ctx, events.TopicCartChanged, snap)
	return nil
}

// ChangeQuantity adjusts a line's quantity by delta, removing the line at or
// below zero. Unknown ids are a no-op.
func (s *Session) ChangeQuantity(ctx context.Context, productID int64, delta int) {
	s.mu.Lock()
	s.cart.ChangeQuantity(productID, delta)
	snap := s.snapshotLocked()
	lines := s.cart.Len()
	s.mu.Unlock()

	observeCartLines(lines)
	s.cfg.Bus.Emit(ctx, events.TopicCartChanged, snap)
}

// RemoveFromCart removes the product's line if present.
func (s *Session) RemoveFromCart(ctx context.Context, productID int64) {
	s.mu.Lock()
	s.cart.RemoveItem(productID)
	snap := s.snapshotLocked()
	lines := s.cart.Len()
	s.mu.Unlock()

	observeCartLines(lines)
	s.cfg.Bus.Emit(ctx, events.TopicCartChanged, snap)
}

// View is the priced cart in the selected display currency.
type View struct {
	Lines    []cart.Line    `json:"lines"`
	Pricing  pricing.Result `json:"pricing"`
	Currency string         `json:"currency"`
}

// CartView computes the current totals for display. Results are derived on
// demand and never cached.
func (s *Session) CartView() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.cart.Lines()
	totals := pricing.Compute(lines, s.cfg.TaxBps)
	return View{
		Lines:    lines,
		Pricing:  pricing.ToDisplay(totals, s.currency, s.rates),
		Currency: s.currency,
	}
}

// Checkout runs one checkout attempt against the current cart and rates.
// The cart is left untouched either way; starting the next sale is an
// explicit ClearCart.
func (s *Session) Checkout(ctx context.Context, paid float64) checkout.Result {
	s.mu.Lock()
	lines := s.cart.Lines()
	totals := pricing.Compute(lines, s.cfg.TaxBps)
	in := checkout.Input{
		Lines:   lines,
		Pricing: pricing.ToDisplay(totals, s.currency, s.rates),
		Paid:    paid,
	}
	s.mu.Unlock()

	res := s.cfg.Processor.Process(in)
	observeCheckout(res)
	if res.State == checkout.Settled {
		s.cfg.Bus.Emit(ctx, events.TopicCheckoutSettled, res)
	}
	return res
}

// ClearCart empties the cart, typically after a settled checkout.
func (s *Session) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.cart.Clear()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	observeCartLines(0)
	s.cfg.Bus.Emit(ctx, events.TopicCartChanged, snap)
}

// Snapshot returns the persistable session state.
func (s *Session) Snapshot() store.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// BaseCurrency returns the currency all catalog prices are stored in.
func (s *Session) BaseCurrency() string {
	return s.cfg.BaseCurrency
}

// DataLoaded reports whether a catalog has been applied at least once.
func (s *Session) DataLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// LastRefresh returns the time of the last applied refresh.
func (s *Session) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

func (s *Session) snapshotLocked() store.Snapshot {
	return store.Snapshot{
		CartLines:        s.cart.Lines(),
		SelectedCurrency: s.currency,
	}
}

func observeRefresh(result string) {
	if obs.RefreshTotal != nil {
		obs.RefreshTotal.WithLabelValues(result).Inc()
	}
}

func observeCartLines(n int) {
	if obs.CartLines != nil {
		obs.CartLines.Set(float64(n))
	}
}

func observeCheckout(res checkout.Result) {
	if obs.CheckoutTotal == nil {
		return
	}
	result := "settled"
	if res.State != checkout.Settled {
		result = string(res.Reason)
	}
	obs.CheckoutTotal.WithLabelValues(result).Inc()
	if res.Payload != "" && obs.PayloadBytes != nil {
		obs.PayloadBytes.Observe(float64(len(res.Payload)))
	}
}
