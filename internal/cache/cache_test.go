package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/estoque-service/internal/model"
	"github.com/fairyhunter13/estoque-service/internal/store"
)

type countingStore struct {
	store.Store
	byName int
}

func (c *countingStore) FindByName(ctx context.Context, name string) (model.Product, error) {
	c.byName++
	return c.Store.FindByName(ctx, name)
}

func seeded(t *testing.T) (*countingStore, model.Product) {
	t.Helper()
	mem := store.NewMemory()
	p, err := mem.Save(context.Background(), model.Product{
		Name:        "Notebook",
		Description: "Notebook Gamer",
		Price:       decimal.RequireFromString("4500"),
		Quantity:    10,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &countingStore{Store: mem}, p
}

func TestFindByNameMissPopulatesCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing, p := seeded(t)
	s := New(backing, db, time.Minute)

	payload, err := encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	mock.ExpectGet(nameKey("Notebook")).RedisNil()
	mock.ExpectSetNX(nameKey("Notebook"), payload, time.Minute).SetVal(true)

	got, err := s.FindByName(context.Background(), "Notebook")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != p.ID || got.Quantity != 10 {
		t.Fatalf("unexpected product: %+v", got)
	}
	if backing.byName != 1 {
		t.Fatalf("expected one backing lookup, got %d", backing.byName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindByNameHitSkipsBackingStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing, p := seeded(t)
	s := New(backing, db, time.Minute)

	payload, _ := encode(p)
	mock.ExpectGet(nameKey("Notebook")).SetVal(string(payload))

	got, err := s.FindByName(context.Background(), "Notebook")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Description != "Notebook Gamer" || !got.Price.Equal(p.Price) {
		t.Fatalf("unexpected product: %+v", got)
	}
	if backing.byName != 0 {
		t.Fatalf("expected cache hit, backing store was queried %d times", backing.byName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindByNameRedisErrorFallsBack(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing, p := seeded(t)
	s := New(backing, db, time.Minute)

	payload, _ := encode(p)
	mock.ExpectGet(nameKey("Notebook")).SetErr(errors.New("connection refused"))
	mock.ExpectSetNX(nameKey("Notebook"), payload, time.Minute).SetErr(errors.New("connection refused"))

	got, err := s.FindByName(context.Background(), "Notebook")
	if err != nil {
		t.Fatalf("redis failure must not surface: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("unexpected product: %+v", got)
	}
}

func TestFindByNameNotFoundIsNotCached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing, _ := seeded(t)
	s := New(backing, db, time.Minute)

	mock.ExpectGet(nameKey("Mouse")).RedisNil()

	if _, err := s.FindByName(context.Background(), "Mouse"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveRefreshesName(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing, p := seeded(t)
	s := New(backing, db, time.Minute)

	p.Quantity = 30
	payload, _ := encode(p)
	mock.ExpectSet(nameKey("Notebook"), payload, time.Minute).SetVal("OK")

	if _, err := s.Save(context.Background(), p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := backing.Store.FindByID(context.Background(), p.ID)
	if got.Quantity != 30 {
		t.Fatalf("write-through failed: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveEvictsWhenRefreshFails(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing, p := seeded(t)
	s := New(backing, db, time.Minute)

	p.Quantity = 30
	payload, _ := encode(p)
	mock.ExpectSet(nameKey("Notebook"), payload, time.Minute).SetErr(errors.New("oom"))
	mock.ExpectDel(nameKey("Notebook")).SetVal(1)

	if _, err := s.Save(context.Background(), p); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// racingStore saves a restock through the cache while a miss is being served,
// then returns the record it read before the restock.
type racingStore struct {
	store.Store
	cache *Store
	stale model.Product
}

func (r *racingStore) FindByName(ctx context.Context, name string) (model.Product, error) {
	fresh := r.stale
	fresh.Quantity = 30
	if _, err := r.cache.Save(ctx, fresh); err != nil {
		return model.Product{}, err
	}
	return r.stale, nil
}

func TestMissRacingSaveKeepsSavedRecord(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing, p := seeded(t)
	rs := &racingStore{Store: backing.Store, stale: p}
	s := New(rs, db, time.Minute)
	rs.cache = s

	fresh := p
	fresh.Quantity = 30
	freshPayload, _ := encode(fresh)
	stalePayload, _ := encode(p)
	mock.ExpectGet(nameKey("Notebook")).RedisNil()
	mock.ExpectSet(nameKey("Notebook"), freshPayload, time.Minute).SetVal("OK")
	mock.ExpectSetNX(nameKey("Notebook"), stalePayload, time.Minute).SetVal(false)
	mock.ExpectGet(nameKey("Notebook")).SetVal(string(freshPayload))

	if _, err := s.FindByName(context.Background(), "Notebook"); err != nil {
		t.Fatalf("find: %v", err)
	}
	got, err := s.FindByName(context.Background(), "Notebook")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Quantity != 30 {
		t.Fatalf("expected saved quantity 30 after the race, got %d", got.Quantity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

type blockingStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) FindByName(ctx context.Context, name string) (model.Product, error) {
	close(b.entered)
	<-b.release
	if err := ctx.Err(); err != nil {
		return model.Product{}, err
	}
	return b.Store.FindByName(ctx, name)
}

func TestSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backing, p := seeded(t)
	bs := &blockingStore{Store: backing.Store, entered: make(chan struct{}), release: make(chan struct{})}
	s := New(bs, db, time.Minute)

	payload, _ := encode(p)
	mock.ExpectGet(nameKey("Notebook")).RedisNil()
	mock.ExpectSetNX(nameKey("Notebook"), payload, time.Minute).SetVal(true)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.FindByName(ctx, "Notebook")
		errc <- err
	}()
	<-bs.entered
	cancel()
	close(bs.release)

	if err := <-errc; err != nil {
		t.Fatalf("shared lookup failed after caller cancel: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
