package store

import (
	"context"
	"time"

	"github.com/noah-isme/kasir-pos/internal/events"
)

// saveTimeout bounds a background snapshot write so a stalled store cannot
// leak goroutines.
const saveTimeout = 3 * time.Second

// Notifier bridges session events to the snapshot store. Events carrying a
// Snapshot payload are written in the background; the emitting request never
// waits on storage.
func (a Adapter) Notifier() events.Notifier {
	return events.NotifierFunc(func(_ context.Context, event events.Event) {
		snap, ok := event.Payload.(Snapshot)
		if !ok {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()
			a.Save(ctx, snap)
		}()
	})
}
