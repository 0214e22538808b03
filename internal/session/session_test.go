package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-pos/internal/cart"
	"github.com/noah-isme/kasir-pos/internal/catalog"
	"github.com/noah-isme/kasir-pos/internal/checkout"
	"github.com/noah-isme/kasir-pos/internal/common"
	"github.com/noah-isme/kasir-pos/internal/events"
	"github.com/noah-isme/kasir-pos/internal/rates"
	"github.com/noah-isme/kasir-pos/internal/session"
	"github.com/noah-isme/kasir-pos/internal/store"
)

type fakeCatalogSource struct {
	mu    sync.Mutex
	raw   []catalog.RawProduct
	err   error
	calls int
	// gate blocks the first Fetch until closed; started is closed when the
	// gated call has begun waiting
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeCatalogSource) Fetch(ctx context.Context) ([]catalog.RawProduct, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	started := f.started
	first := f.calls == 1
	f.mu.Unlock()
	if first && gate != nil {
		if started != nil {
			close(started)
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw, f.err
}

func (f *fakeCatalogSource) set(raw []catalog.RawProduct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = raw
}

type fakeRateSource struct {
	table rates.Table
	err   error
}

func (f *fakeRateSource) Fetch(context.Context) (rates.Table, error) {
	return f.table, f.err
}

func sampleRaw() []catalog.RawProduct {
	return []catalog.RawProduct{
		{ID: 1, Title: "Bayam Segar", Price: 1.25, Stock: 10},
		{ID: 2, Title: "Wortel Organik", Price: 0.99, Stock: 5},
	}
}

func sampleRates() rates.Table {
	return rates.Load(map[string]float64{"USD": 0.000065, "EUR": 0.00006}, "IDR")
}

type env struct {
	sess    *session.Session
	catalog *fakeCatalogSource
	rates   *fakeRateSource
	bus     *events.Bus
	adapter store.Adapter
	mr      *miniredis.Miniredis
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cs := &fakeCatalogSource{raw: sampleRaw()}
	rs := &fakeRateSource{table: sampleRates()}
	bus := events.NewBus()
	adapter := store.Adapter{
		Client:          client,
		Key:             store.DefaultKey,
		DefaultCurrency: "IDR",
		Logger:          zerolog.Nop(),
	}
	sess := session.New(session.Config{
		Catalog:         cs,
		Rates:           rs,
		Cache:           catalog.NewCache(client, "kasir:catalog", time.Hour),
		Store:           adapter,
		Bus:             bus,
		Processor:       checkout.Processor{Merchant: "UMKM SAYUR SEHAT"},
		BaseCurrency:    "IDR",
		TaxBps:          1000,
		PriceMultiplier: 16000,
		Logger:          zerolog.Nop(),
	})
	return &env{sess: sess, catalog: cs, rates: rs, bus: bus, adapter: adapter, mr: mr}
}

func TestRefreshAppliesCatalogAndRates(t *testing.T) {
	e := newEnv(t)
	require.False(t, e.sess.DataLoaded())

	require.NoError(t, e.sess.Refresh(context.Background()))

	require.True(t, e.sess.DataLoaded())
	require.Len(t, e.sess.Search(""), 2)
	codes, selected := e.sess.Currencies()
	require.Equal(t, "IDR", selected)
	require.Contains(t, codes, "USD")
}

func TestRefreshFailureKeepsPreviousState(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.sess.Refresh(context.Background()))

	e.catalog.set([]catalog.RawProduct{{ID: 9, Title: "Tomat", Price: 2, Stock: 1}})
	e.rates.err = errors.New("upstream down")

	err := e.sess.Refresh(context.Background())
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeFetchFailed, appErr.Code)

	// both legs failed together: the old catalog survives intact
	products := e.sess.Search("")
	require.Len(t, products, 2)
	require.Equal(t, "Bayam Segar", products[0].Title)
}

func TestRefreshDiscardsSupersededResult(t *testing.T) {
	e := newEnv(t)
	gate := make(chan struct{})
	started := make(chan struct{})
	e.catalog.gate = gate
	e.catalog.started = started

	done := make(chan error, 1)
	go func() { done <- e.sess.Refresh(context.Background()) }()
	<-started

	// second refresh overtakes the gated first one
	e.catalog.set([]catalog.RawProduct{{ID: 7, Title: "Kangkung", Price: 1, Stock: 3}})
	require.NoError(t, e.sess.Refresh(context.Background()))

	// the late first result carries the old products and must be dropped
	e.catalog.set(sampleRaw())
	close(gate)
	require.NoError(t, <-done)

	products := e.sess.Search("")
	require.Len(t, products, 1)
	require.Equal(t, "Kangkung", products[0].Title)
}

func TestAddToCartUnknownProduct(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.sess.Refresh(context.Background()))

	err := e.sess.AddToCart(context.Background(), 404, 1)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestCartViewPricesInSelectedCurrency(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.sess.Refresh(context.Background()))
	require.NoError(t, e.sess.AddToCart(context.Background(), 1, 1))

	view := e.sess.CartView()
	require.Equal(t, "IDR", view.Currency)
	require.EqualValues(t, 20000, view.Pricing.Subtotal)
	require.EqualValues(t, 2000, view.Pricing.Tax)
	require.EqualValues(t, 22000, view.Pricing.Total)
	require.InDelta(t, 22000, view.Pricing.TotalDisplay, 1e-9)

	require.NoError(t, e.sess.SelectCurrency(context.Background(), "USD"))
	view = e.sess.CartView()
	require.Equal(t, "USD", view.Currency)
	require.InDelta(t, 1.43, view.Pricing.TotalDisplay, 1e-9)
	// base totals are untouched by the currency switch
	require.EqualValues(t, 22000, view.Pricing.Total)
	require.Len(t, view.Lines, 1)
}

func TestCurrencyChangeDoesNotMutateCart(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.sess.Refresh(context.Background()))
	require.NoError(t, e.sess.AddToCart(context.Background(), 1, 3))

	before := e.sess.CartView().Lines
	require.NoError(t, e.sess.SelectCurrency(context.Background(), "EUR"))
	require.Equal(t, before, e.sess.CartView().Lines)
}

func TestCartMutationsEmitSnapshots(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.sess.Refresh(context.Background()))

	var (
		mu    sync.Mutex
		snaps []store.Snapshot
	)
	e.bus.Subscribe(events.TopicCartChanged, events.NotifierFunc(func(_ context.Context, ev events.Event) {
		snap, ok := ev.Payload.(store.Snapshot)
		if !ok {
			return
		}
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	}))

	require.NoError(t, e.sess.AddToCart(context.Background(), 1, 2))
	e.sess.ChangeQuantity(context.Background(), 1, -1)
	e.sess.RemoveFromCart(context.Background(), 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snaps, 3)
	require.Len(t, snaps[0].CartLines, 1)
	require.Equal(t, 2, snaps[0].CartLines[0].Quantity)
	require.Equal(t, 1, snaps[1].CartLines[0].Quantity)
	require.Empty(t, snaps[2].CartLines)
}

func TestRestoreRehydratesCartAndCurrency(t *testing.T) {
	e := newEnv(t)
	snap := store.Snapshot{
		CartLines: []cart.Line{
			{ProductID: 1, Name: "Bayam Segar", UnitPriceBase: 20000, Quantity: 2},
		},
		SelectedCurrency: "USD",
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, e.mr.Set(store.DefaultKey, string(data)))

	e.sess.Restore(context.Background())

	view := e.sess.CartView()
	require.Equal(t, "USD", view.Currency)
	require.Len(t, view.Lines, 1)
	require.Equal(t, "Bayam Segar", view.Lines[0].Name)
}

func TestCheckoutSettlesAndCartSurvivesUntilCleared(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.sess.Refresh(context.Background()))
	require.NoError(t, e.sess.AddToCart(context.Background(), 1, 1))

	var settled []checkout.Result
	e.bus.Subscribe(events.TopicCheckoutSettled, events.NotifierFunc(func(_ context.Context, ev events.Event) {
		if res, ok := ev.Payload.(checkout.Result); ok {
			settled = append(settled, res)
		}
	}))

	res := e.sess.Checkout(context.Background(), 25000)
	require.Equal(t, checkout.Settled, res.State)
	require.InDelta(t, 22000, res.AmountDue, 1e-9)
	require.InDelta(t, 3000, res.Change, 1e-9)
	require.Len(t, settled, 1)

	// the cart is not cleared implicitly
	require.Len(t, e.sess.CartView().Lines, 1)
	e.sess.ClearCart(context.Background())
	require.Empty(t, e.sess.CartView().Lines)
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.sess.Refresh(context.Background()))

	res := e.sess.Checkout(context.Background(), 100)
	require.Equal(t, checkout.Rejected, res.State)
	require.Equal(t, checkout.ReasonEmptyCart, res.Reason)
}

func TestWarmFromCacheLoadsCatalogOnly(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.sess.Refresh(context.Background()))

	// a fresh session against the same redis warms from the cached products
	client := redis.NewClient(&redis.Options{Addr: e.mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	fresh := session.New(session.Config{
		Catalog:         &fakeCatalogSource{err: errors.New("unreachable")},
		Rates:           &fakeRateSource{err: errors.New("unreachable")},
		Cache:           catalog.NewCache(client, "kasir:catalog", time.Hour),
		Store:           store.Adapter{DefaultCurrency: "IDR", Logger: zerolog.Nop()},
		Bus:             events.NewBus(),
		Processor:       checkout.Processor{Merchant: "UMKM SAYUR SEHAT"},
		BaseCurrency:    "IDR",
		TaxBps:          1000,
		PriceMultiplier: 16000,
		Logger:          zerolog.Nop(),
	})
	fresh.WarmFromCache(context.Background())

	require.True(t, fresh.DataLoaded())
	require.Len(t, fresh.Search("bayam"), 1)
	codes, _ := fresh.Currencies()
	require.Equal(t, []string{"IDR"}, codes)
}
