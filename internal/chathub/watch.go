package chathub

import (
	"context"

	"travelquest/backend/internal/metrics"
)

// Snapshot is the full matching set of a live view at one point in time.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// Watch delivers load's result immediately and again after every change of
// topic, until ctx is done. A slow reader only ever sees the latest snapshot.
func Watch[T any](ctx context.Context, hub *ManagerService, kind, topic string, load func(context.Context) ([]T, error)) <-chan Snapshot[T] {
	out := make(chan Snapshot[T], 1)
	// Subscribe before the first load so no change can slip in between.
	sub := hub.Subscribe(topic)

	go func() {
		metrics.LiveViewsActive.WithLabelValues(kind).Inc()
		defer metrics.LiveViewsActive.WithLabelValues(kind).Dec()
		defer close(out)
		defer hub.Unsubscribe(sub)

		deliver := func() bool {
			items, err := load(ctx)
			if ctx.Err() != nil {
				return false
			}
			select {
			case <-out:
			default:
			}
			out <- Snapshot[T]{Items: items, Err: err}
			return true
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok || !deliver() {
					return
				}
			}
		}
	}()
	return out
}
