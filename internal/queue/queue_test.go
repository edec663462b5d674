package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fairyhunter13/estoque-service/internal/events"
	"github.com/fairyhunter13/estoque-service/internal/metrics"
	"github.com/fairyhunter13/estoque-service/internal/obs"
)

func TestLanePushNeverBlocks(t *testing.T) {
	l := NewLane(1)
	for i := 0; i < 1000; i++ {
		l.Push(events.Event{ProductID: int64(i % 3)})
	}
	if l.Len() != 1000 {
		t.Fatalf("expected 1000 queued, got %d", l.Len())
	}
	ev, ok := l.Pop(context.Background())
	if !ok || ev.ProductID != 0 || ev.Sequence != 1 {
		t.Fatalf("unexpected head: %+v ok=%v", ev, ok)
	}
}

func TestLaneSequencePerProduct(t *testing.T) {
	l := NewLane(0)
	a1 := l.Push(events.Event{ProductID: 1})
	b1 := l.Push(events.Event{ProductID: 2})
	a2 := l.Push(events.Event{ProductID: 1})
	if a1.Sequence != 1 || a2.Sequence != 2 || b1.Sequence != 1 {
		t.Fatalf("unexpected sequences a1=%d a2=%d b1=%d", a1.Sequence, a2.Sequence, b1.Sequence)
	}
}

func TestLanePopHonorsContext(t *testing.T) {
	l := NewLane(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := l.Pop(ctx); ok {
		t.Fatalf("expected empty pop to give up when ctx is done")
	}
}

func TestLaneForIsStable(t *testing.T) {
	if laneFor(7, 2) != laneFor(7, 2) || laneFor(7, 2) != 1 {
		t.Fatalf("unexpected lane for product 7")
	}
	if got := laneFor(-3, 4); got < 0 || got >= 4 {
		t.Fatalf("lane out of range for negative id: %d", got)
	}
}

// slowFirst blocks the first event it sees for a while and records delivery order.
type slowFirst struct {
	mu    sync.Mutex
	seen  int
	order []events.Event
}

func (s *slowFirst) Publish(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	s.seen++
	first := s.seen == 1
	s.mu.Unlock()
	if first {
		time.Sleep(100 * time.Millisecond)
	}
	s.mu.Lock()
	s.order = append(s.order, ev)
	s.mu.Unlock()
	return nil
}

func (s *slowFirst) delivered() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.order...)
}

func TestDispatcherKeepsProductOrderWithSlowBroker(t *testing.T) {
	obs.InitLogger("error")
	pub := &slowFirst{}
	d := NewDispatcher(pub, 2, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	for _, delta := range []int64{-1, -2} {
		if err := d.Publish(ctx, events.Event{Type: events.TypeStockAdjusted, ProductID: 1, Delta: delta}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelDrain()
	if ok := d.DrainUntil(ctxDrain); !ok {
		t.Fatalf("drain timeout")
	}
	got := pub.delivered()
	if len(got) != 2 {
		t.Fatalf("expected 2 delivered, got %d", len(got))
	}
	if got[0].Delta != -1 || got[1].Delta != -2 || got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("events of product 1 delivered out of order: %+v", got)
	}
}

func TestDispatcherDeliversEveryProduct(t *testing.T) {
	obs.InitLogger("error")
	rec := &events.Recorder{}
	m := metrics.New()
	d := NewDispatcher(rec, 3, 16, m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	for i := 0; i < 100; i++ {
		if err := d.Publish(ctx, events.Event{Type: events.TypeStockAdjusted, ProductID: int64(i % 5), Delta: int64(i)}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelDrain()
	if ok := d.DrainUntil(ctxDrain); !ok {
		t.Fatalf("drain timeout")
	}
	got := rec.Events()
	if len(got) != 100 {
		t.Fatalf("expected 100 delivered, got %d", len(got))
	}
	last := map[int64]uint64{}
	for _, ev := range got {
		if ev.Sequence != last[ev.ProductID]+1 {
			t.Fatalf("product %d: sequence %d after %d", ev.ProductID, ev.Sequence, last[ev.ProductID])
		}
		last[ev.ProductID] = ev.Sequence
	}
	if d.Backlog() != 0 {
		t.Fatalf("expected empty backlog, got %d", d.Backlog())
	}
	if v := testutil.ToFloat64(m.EventsDispatched.WithLabelValues("published")); v != 100 {
		t.Fatalf("expected 100 published, got %v", v)
	}
}

func TestDispatcherCountsFailuresAndCloses(t *testing.T) {
	obs.InitLogger("error")
	rec := &events.Recorder{Err: errors.New("broker down")}
	m := metrics.New()
	d := NewDispatcher(rec, 2, 4, m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		_ = d.Publish(ctx, events.Event{ProductID: 1})
	}
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelDrain()
	if ok := d.DrainUntil(ctxDrain); !ok {
		t.Fatalf("drain timeout")
	}
	if v := testutil.ToFloat64(m.EventsDispatched.WithLabelValues("failed")); v != 5 {
		t.Fatalf("expected 5 failures, got %v", v)
	}
	d.CloseIntake()
	if err := d.Publish(ctx, events.Event{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
