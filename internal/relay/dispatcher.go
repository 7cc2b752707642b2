package relay

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/internal/metrics"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/logging"
)

// Handler processes one push event.
type Handler func(ctx context.Context, ev PushEvent)

// Dispatcher routes push events to handlers by type. Unknown types are
// ignored. Every event is also recorded in the store for subscribers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	store    *store.Store
	metrics  *metrics.Metrics
	logger   *logrus.Entry
}

// NewDispatcher creates a Dispatcher. s and m may be nil.
func NewDispatcher(s *store.Store, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		store:    s,
		metrics:  m,
		logger:   logging.NewLogger("relay"),
	}
}

// Handle registers h for eventType. Handlers for the same type run in
// registration order.
func (d *Dispatcher) Handle(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Dispatch delivers ev synchronously. A panicking handler is logged and
// does not prevent the remaining handlers from running.
func (d *Dispatcher) Dispatch(ctx context.Context, ev PushEvent) {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[ev.Type]...)
	d.mu.RUnlock()

	if d.store != nil {
		d.store.Apply(store.EventRelayed{Type: ev.Type, Payload: ev.Payload})
	}
	d.metrics.IncRelayEvent(ev.Type, len(handlers) > 0)

	if len(handlers) == 0 {
		d.logger.WithField("type", ev.Type).Debug("Ignoring event without handler")
		return
	}
	for _, h := range handlers {
		d.call(ctx, h, ev)
	}
}

func (d *Dispatcher) call(ctx context.Context, h Handler, ev PushEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("type", ev.Type).Errorf("Event handler panicked: %v", r)
		}
	}()
	h(ctx, ev)
}
