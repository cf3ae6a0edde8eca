package memstore

import (
	"context"
	"sync"

	"github.com/nikolayk812/booksettle/internal/domain"
)

// EventRecorder keeps published events in memory.
type EventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *EventRecorder) Publish(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
	return nil
}

func (r *EventRecorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.Event(nil), r.events...)
}
