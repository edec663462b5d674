package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fairyhunter13/estoque-service/internal/events"
	"github.com/fairyhunter13/estoque-service/internal/metrics"
	"github.com/fairyhunter13/estoque-service/internal/obs"
)

// ErrClosed is returned by Publish after CloseIntake.
var ErrClosed = errors.New("event dispatcher closed")

const publishTimeout = 5 * time.Second

// Dispatcher is an events.Publisher that returns immediately and forwards
// events to the broker publisher from background workers. Each worker owns
// one lane and a product always maps to the same lane, so events of one
// product reach the broker in publication order.
type Dispatcher struct {
	lanes []*Lane
	pub   events.Publisher
	m     *metrics.Metrics

	closed    atomic.Bool
	enqueued  atomic.Uint64
	processed atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ events.Publisher = (*Dispatcher)(nil)

// NewDispatcher forwards to pub with one lane per worker; laneBuffer sizes
// each lane's initial backlog and m may be nil.
func NewDispatcher(pub events.Publisher, workers, laneBuffer int, m *metrics.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	lanes := make([]*Lane, workers)
	for i := range lanes {
		lanes[i] = NewLane(laneBuffer)
	}
	return &Dispatcher{lanes: lanes, pub: pub, m: m}
}

// Start launches one worker per lane.
func (d *Dispatcher) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	for _, l := range d.lanes {
		d.wg.Add(1)
		go d.worker(ctx, l)
	}
	obs.Logger.Info("dispatcher_started", zap.Int("worker_count", len(d.lanes)))
}

// Stop cancels the workers and waits for them to exit.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Publish stamps ev with its product sequence and enqueues it on the product's lane.
func (d *Dispatcher) Publish(_ context.Context, ev events.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.enqueued.Add(1)
	d.lanes[laneFor(ev.ProductID, len(d.lanes))].Push(ev)
	return nil
}

// CloseIntake rejects further events; queued ones are still delivered.
func (d *Dispatcher) CloseIntake() { d.closed.Store(true) }

// Pending reports events not yet handed to the broker.
func (d *Dispatcher) Pending() uint64 { return d.enqueued.Load() - d.processed.Load() }

// Backlog returns the events waiting across all lanes.
func (d *Dispatcher) Backlog() int {
	n := 0
	for _, l := range d.lanes {
		n += l.Len()
	}
	return n
}

// DrainUntil blocks until every enqueued event was processed or ctx is done.
func (d *Dispatcher) DrainUntil(ctx context.Context) bool {
	for {
		if d.Pending() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, l *Lane) {
	defer d.wg.Done()
	for {
		ev, ok := l.Pop(ctx)
		if !ok {
			return
		}
		d.deliver(ctx, ev)
		d.processed.Add(1)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev events.Event) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	outcome := "published"
	if err := d.pub.Publish(pctx, ev); err != nil {
		outcome = "failed"
		obs.Logger.Error("event_publish_failed",
			zap.String("event_id", ev.ID),
			zap.String("type", ev.Type),
			zap.Int64("product_id", ev.ProductID),
			zap.Uint64("sequence", ev.Sequence),
			zap.Error(err),
		)
	}
	if d.m != nil {
		d.m.EventsDispatched.WithLabelValues(outcome).Inc()
	}
}
