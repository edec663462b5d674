// Package queue dispatches domain events to a broker through per-worker lanes.
package queue

import (
	"context"
	"sync"

	"github.com/fairyhunter13/estoque-service/internal/events"
)

// Lane is an unbounded FIFO of events with a single consumer.
// Every event of a product is routed to the same lane, so a lane's
// order is the product's publication order.
type Lane struct {
	mu    sync.Mutex
	items []events.Event
	seq   productSeq
	ready chan struct{}
}

// NewLane creates a lane whose backlog starts with room for capHint events.
func NewLane(capHint int) *Lane {
	if capHint < 0 {
		capHint = 0
	}
	return &Lane{
		items: make([]events.Event, 0, capHint),
		seq:   productSeq{},
		ready: make(chan struct{}, 1),
	}
}

// Push stamps ev with the next sequence of its product, appends it and
// returns the stamped event. It never blocks.
func (l *Lane) Push(ev events.Event) events.Event {
	l.mu.Lock()
	ev.Sequence = l.seq.next(ev.ProductID)
	l.items = append(l.items, ev)
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
	return ev
}

// Pop removes the oldest event, waiting for one until ctx is done.
func (l *Lane) Pop(ctx context.Context) (events.Event, bool) {
	for {
		l.mu.Lock()
		if len(l.items) > 0 {
			ev := l.items[0]
			l.items[0] = events.Event{}
			l.items = l.items[1:]
			l.mu.Unlock()
			return ev, true
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return events.Event{}, false
		case <-l.ready:
		}
	}
}

// Len returns the number of events waiting in the lane.
func (l *Lane) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
