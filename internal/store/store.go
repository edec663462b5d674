// Package store defines the product persistence contract and an in-memory implementation.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fairyhunter13/estoque-service/internal/model"
)

// Store is the product persistence collaborator.
//
// Lookups return model.ErrNotFound (possibly wrapped) when nothing matches.
type Store interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindByName(ctx context.Context, name string) (model.Product, error)
	// Save inserts p when p.ID is zero and updates it otherwise.
	Save(ctx context.Context, p model.Product) (model.Product, error)
	List(ctx context.Context) ([]model.Product, error)
}

// Memory keeps products in process memory.
type Memory struct {
	mu     sync.RWMutex
	byID   map[int64]model.Product
	byName map[string]int64
	nextID int64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{byID: make(map[int64]model.Product), byName: make(map[string]int64)}
}

func (s *Memory) FindByID(ctx context.Context, id int64) (model.Product, error) {
	if err := ctx.Err(); err != nil {
		return model.Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return model.Product{}, fmt.Errorf("id %d: %w", id, model.ErrNotFound)
	}
	return p, nil
}

func (s *Memory) FindByName(ctx context.Context, name string) (model.Product, error) {
	if err := ctx.Err(); err != nil {
		return model.Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return model.Product{}, fmt.Errorf("name %q: %w", name, model.ErrNotFound)
	}
	return s.byID[id], nil
}

func (s *Memory) Save(ctx context.Context, p model.Product) (model.Product, error) {
	if err := ctx.Err(); err != nil {
		return model.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	} else if p.ID > s.nextID {
		s.nextID = p.ID
	}
	if prev, ok := s.byID[p.ID]; ok && prev.Name != p.Name && s.byName[prev.Name] == p.ID {
		delete(s.byName, prev.Name)
	}
	s.byID[p.ID] = p
	// first record wins the name slot
	if _, taken := s.byName[p.Name]; !taken {
		s.byName[p.Name] = p.ID
	}
	return p, nil
}

func (s *Memory) List(ctx context.Context) ([]model.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Product, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
