package chathub

import (
	"context"
	"sync"

	"travelquest/backend/internal/models"
)

// Broker carries change events between service instances.
type Broker interface {
	Publish(ctx context.Context, ev models.Event) error
	// Subscribe returns every event published after the call. The channel
	// closes when ctx is done.
	Subscribe(ctx context.Context) (<-chan models.Event, error)
}

// LocalBroker delivers events inside one process. Used when the service runs
// as a single instance without Redis.
type LocalBroker struct {
	mu   sync.Mutex
	subs map[chan models.Event]<-chan struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[chan models.Event]<-chan struct{})}
}

func (b *LocalBroker) Publish(ctx context.Context, ev models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, done := range b.subs {
		select {
		case ch <- ev:
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context) (<-chan models.Event, error) {
	ch := make(chan models.Event, 64)
	b.mu.Lock()
	b.subs[ch] = ctx.Done()
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}
