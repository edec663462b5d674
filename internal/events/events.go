// Package events defines the domain events emitted after catalog and stock writes.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/estoque-service/internal/model"
)

const (
	TypeStockAdjusted   = "stock.adjusted"
	TypeCatalogUpserted = "catalog.upserted"
)

// Event describes a persisted change to a product.
//
// Quantity is the stored quantity after the change; Delta is the signed change
// applied by this write.
type Event struct {
	ID         string    `json:"event_id"`
	Type       string    `json:"type"`
	ProductID  int64     `json:"product_id"`
	Name       string    `json:"name"`
	Quantity   int64     `json:"quantity"`
	Delta      int64     `json:"delta"`
	OccurredAt time.Time `json:"occurred_at"`
	// Sequence counts the events of one product, stamped by the dispatcher at enqueue time.
	Sequence uint64 `json:"sequence,omitempty"`
}

// Publisher hands events to a broker.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// New builds an event of type typ for product p after a change of delta.
func New(typ string, p model.Product, delta int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ProductID:  p.ID,
		Name:       p.Name,
		Quantity:   p.Quantity,
		Delta:      delta,
		OccurredAt: time.Now().UTC(),
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory; a non-nil Err fails every publish.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the events recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
