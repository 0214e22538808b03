package store

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-pos/internal/cart"
	"github.com/noah-isme/kasir-pos/internal/obs"
)

// DefaultKey is the fixed blob-store key holding the session snapshot.
const DefaultKey = "kasir:session"

// Snapshot is the exact, minimal session state persisted between runs.
type Snapshot struct {
	CartLines        []cart.Line `json:"cartLines"`
	SelectedCurrency string      `json:"selectedCurrency"`
}

// Empty returns a snapshot with no lines and the given default currency.
func Empty(currency string) Snapshot {
	return Snapshot{SelectedCurrency: currency}
}

// Adapter persists the session snapshot as a JSON blob under one fixed key.
// A cashier must never be blocked by a storage fault: Save swallows every
// error after logging it, Restore degrades to an empty snapshot.
type Adapter struct {
	Client          *redis.Client
	Key             string
	DefaultCurrency string
	Logger          zerolog.Logger
}

func (a Adapter) key() string {
	if a.Key != "" {
		return a.Key
	}
	return DefaultKey
}

// Save overwrites the stored snapshot. Failures are logged and swallowed.
func (a Adapter) Save(ctx context.Context, snap Snapshot) {
	if a.Client == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		a.Logger.Error().Err(err).Msg("encode session snapshot")
		observeWrite("failure")
		return
	}
	if err := a.Client.Set(ctx, a.key(), data, 0).Err(); err != nil {
		a.Logger.Warn().Err(err).Str("key", a.key()).Msg("persist session snapshot")
		observeWrite("failure")
		return
	}
	observeWrite("success")
}

func observeWrite(result string) {
	if obs.SnapshotWriteTotal != nil {
		obs.SnapshotWriteTotal.WithLabelValues(result).Inc()
	}
}

// Restore reads the stored snapshot. Missing, malformed or partial values
// yield an empty snapshot with the default currency; it never fails.
func (a Adapter) Restore(ctx context.Context) Snapshot {
	empty := Empty(a.DefaultCurrency)
	if a.Client == nil {
		return empty
	}
	data, err := a.Client.Get(ctx, a.key()).Bytes()
	if err != nil {
		if err != redis.Nil {
			a.Logger.Warn().Err(err).Str("key", a.key()).Msg("restore session snapshot")
		}
		return empty
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		a.Logger.Warn().Err(err).Msg("decode session snapshot")
		return empty
	}
	if snap.SelectedCurrency == "" {
		snap.SelectedCurrency = a.DefaultCurrency
	}
	return snap
}
