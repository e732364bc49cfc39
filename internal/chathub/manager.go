// Package chathub fans change events out to live views.
package chathub

import (
	"context"

	"travelquest/backend/internal/logger"
	"travelquest/backend/internal/models"

	"go.uber.org/zap"
)

// Subscription receives a signal whenever its topic changes. Signals
// coalesce: a subscriber that is busy sees one signal for many changes.
type Subscription struct {
	Topic string
	C     chan struct{}
}

// ManagerService routes broker events to the subscriptions of their topic.
type ManagerService struct {
	subs map[string]map[*Subscription]struct{}

	RegisterCh   chan *Subscription
	UnregisterCh chan *Subscription

	Broker Broker
	log    *logger.Logger
	done   chan struct{}
}

func NewManagerService(b Broker, log *logger.Logger) *ManagerService {
	return &ManagerService{
		subs:         make(map[string]map[*Subscription]struct{}),
		RegisterCh:   make(chan *Subscription),
		UnregisterCh: make(chan *Subscription),
		Broker:       b,
		log:          log,
		done:         make(chan struct{}),
	}
}

// Run is the hub's dispatcher loop. It returns when ctx is done or the
// broker subscription fails.
func (m *ManagerService) Run(ctx context.Context) error {
	defer close(m.done)

	events, err := m.Broker.Subscribe(ctx)
	if err != nil {
		m.log.Error("failed to subscribe to broker", zap.Error(err))
		return err
	}
	m.log.Info("chat hub started")

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return nil

		case sub := <-m.RegisterCh:
			topic, ok := m.subs[sub.Topic]
			if !ok {
				topic = make(map[*Subscription]struct{})
				m.subs[sub.Topic] = topic
			}
			topic[sub] = struct{}{}

		case sub := <-m.UnregisterCh:
			m.remove(sub)

		case ev, ok := <-events:
			if !ok {
				m.closeAll()
				return nil
			}
			for sub := range m.subs[ev.Topic] {
				select {
				case sub.C <- struct{}{}:
				default:
					// A signal is already queued for this subscriber.
				}
			}
		}
	}
}

// Subscribe registers a subscription for topic. If the hub has stopped the
// returned subscription is already closed.
func (m *ManagerService) Subscribe(topic string) *Subscription {
	sub := &Subscription{Topic: topic, C: make(chan struct{}, 1)}
	select {
	case m.RegisterCh <- sub:
	case <-m.done:
		close(sub.C)
	}
	return sub
}

func (m *ManagerService) Unsubscribe(sub *Subscription) {
	select {
	case m.UnregisterCh <- sub:
	case <-m.done:
	}
}

// Publish announces a change of ev.Topic to every instance.
func (m *ManagerService) Publish(ctx context.Context, ev models.Event) error {
	return m.Broker.Publish(ctx, ev)
}

func (m *ManagerService) remove(sub *Subscription) {
	topic, ok := m.subs[sub.Topic]
	if !ok {
		return
	}
	if _, ok := topic[sub]; !ok {
		return
	}
	delete(topic, sub)
	close(sub.C)
	if len(topic) == 0 {
		delete(m.subs, sub.Topic)
	}
}

func (m *ManagerService) closeAll() {
	for _, topic := range m.subs {
		for sub := range topic {
			close(sub.C)
		}
	}
	m.subs = make(map[string]map[*Subscription]struct{})
	m.log.Info("chat hub stopped")
}
