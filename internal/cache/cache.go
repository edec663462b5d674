// Package cache decorates a product store with a Redis cache for name lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/estoque-service/internal/model"
	"github.com/fairyhunter13/estoque-service/internal/obs"
	"github.com/fairyhunter13/estoque-service/internal/store"
)

const keyPrefix = "estoque:product:name:"

func nameKey(name string) string {
	return keyPrefix + name
}

type entry struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
}

func encode(p model.Product) ([]byte, error) {
	return json.Marshal(entry{ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price, Quantity: p.Quantity})
}

func decode(data []byte) (model.Product, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return model.Product{}, err
	}
	return model.Product{ID: e.ID, Name: e.Name, Description: e.Description, Price: e.Price, Quantity: e.Quantity}, nil
}

// Store caches FindByName results of the wrapped store in Redis.
//
// Redis errors never surface to callers; the backing store answers instead.
type Store struct {
	next   store.Store
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

var _ store.Store = (*Store)(nil)

func New(next store.Store, client *redis.Client, ttl time.Duration) *Store {
	return &Store{next: next, client: client, ttl: ttl}
}

func (s *Store) FindByID(ctx context.Context, id int64) (model.Product, error) {
	return s.next.FindByID(ctx, id)
}

func (s *Store) List(ctx context.Context) ([]model.Product, error) {
	return s.next.List(ctx)
}

func (s *Store) FindByName(ctx context.Context, name string) (model.Product, error) {
	if p, ok := s.get(ctx, name); ok {
		return p, nil
	}
	// collapse concurrent misses for one name into a single backing lookup;
	// the shared call must not die with whichever caller started it
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(name, func() (any, error) {
		p, err := s.next.FindByName(shared, name)
		if err != nil {
			return model.Product{}, err
		}
		s.fill(shared, p)
		return p, nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return v.(model.Product), nil
}

// Save writes through and replaces the cached entry with the saved record.
// If the entry cannot be refreshed it is evicted instead.
func (s *Store) Save(ctx context.Context, p model.Product) (model.Product, error) {
	saved, err := s.next.Save(ctx, p)
	if err != nil {
		return model.Product{}, err
	}
	if err := s.refresh(ctx, saved); err != nil {
		obs.Logger.Warn("cache_refresh_failed", zap.String("name", saved.Name), zap.Error(err))
		if err := s.client.Del(ctx, nameKey(saved.Name)).Err(); err != nil {
			obs.Logger.Warn("cache_evict_failed", zap.String("name", saved.Name), zap.Error(err))
		}
	}
	return saved, nil
}

func (s *Store) get(ctx context.Context, name string) (model.Product, bool) {
	data, err := s.client.Get(ctx, nameKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Product{}, false
	}
	if err != nil {
		obs.Logger.Warn("cache_get_failed", zap.String("name", name), zap.Error(err))
		return model.Product{}, false
	}
	p, err := decode(data)
	if err != nil {
		obs.Logger.Warn("cache_entry_corrupt", zap.String("name", name), zap.Error(err))
		return model.Product{}, false
	}
	return p, true
}

// refresh stores p unconditionally; a save always holds the newest record.
func (s *Store) refresh(ctx context.Context, p model.Product) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, nameKey(p.Name), data, s.ttl).Err()
}

// fill stores a record read on a miss only when no entry exists yet, so a
// read that raced with a Save cannot overwrite the saved record.
func (s *Store) fill(ctx context.Context, p model.Product) {
	data, err := encode(p)
	if err != nil {
		obs.Logger.Warn("cache_encode_failed", zap.String("name", p.Name), zap.Error(err))
		return
	}
	if err := s.client.SetNX(ctx, nameKey(p.Name), data, s.ttl).Err(); err != nil {
		obs.Logger.Warn("cache_set_failed", zap.String("name", p.Name), zap.Error(err))
	}
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
