package store_test

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-pos/internal/cart"
	"github.com/noah-isme/kasir-pos/internal/store"
)

func newAdapter(t *testing.T) (store.Adapter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return store.Adapter{
		Client:          client,
		DefaultCurrency: "IDR",
		Logger:          zerolog.Nop(),
	}, mr
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	adapter, _ := newAdapter(t)
	ctx := context.Background()

	snap := store.Snapshot{
		CartLines: []cart.Line{
			{ProductID: 1, Name: "Bayam", UnitPriceBase: 10000, Quantity: 2},
			{ProductID: 2, Name: "Wortel", UnitPriceBase: 8000, Quantity: 1},
		},
		SelectedCurrency: "USD",
	}
	adapter.Save(ctx, snap)

	got := adapter.Restore(ctx)
	require.Equal(t, snap, got)

	// reserializing an unmutated restore must be stable
	adapter.Save(ctx, got)
	require.Equal(t, snap, adapter.Restore(ctx))
}

func TestRestoreMissingKeyYieldsEmptySnapshot(t *testing.T) {
	adapter, _ := newAdapter(t)
	got := adapter.Restore(context.Background())
	require.Empty(t, got.CartLines)
	require.Equal(t, "IDR", got.SelectedCurrency)
}

func TestRestoreMalformedBlobYieldsEmptySnapshot(t *testing.T) {
	adapter, mr := newAdapter(t)
	require.NoError(t, mr.Set(store.DefaultKey, "{not json"))

	got := adapter.Restore(context.Background())
	require.Empty(t, got.CartLines)
	require.Equal(t, "IDR", got.SelectedCurrency)
}

func TestRestoreFillsMissingCurrency(t *testing.T) {
	adapter, mr := newAdapter(t)
	require.NoError(t, mr.Set(store.DefaultKey, `{"cartLines":[{"productId":1,"name":"Bayam","unitPriceBase":10000,"quantity":2}]}`))

	got := adapter.Restore(context.Background())
	require.Len(t, got.CartLines, 1)
	require.Equal(t, "IDR", got.SelectedCurrency)
}

func TestSaveSwallowsStorageFailure(t *testing.T) {
	adapter, mr := newAdapter(t)
	mr.Close()

	// must not panic or surface the error
	adapter.Save(context.Background(), store.Empty("IDR"))
	got := adapter.Restore(context.Background())
	require.Equal(t, "IDR", got.SelectedCurrency)
}
