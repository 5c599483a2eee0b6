package cards

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Card
}

// NewMemoryRepository constructs an in-memory repository for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Card)}
}

func (r *memoryRepository) Create(_ context.Context, card Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[card.ID] = card
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.storage[id]
	if !ok {
		return Card{}, ErrNotFound
	}
	return card, nil
}

func (r *memoryRepository) List(_ context.Context) ([]Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Card, 0, len(r.storage))
	for _, c := range r.storage {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) Update(_ context.Context, card Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.storage[card.ID]; !ok {
		return ErrNotFound
	}
	r.storage[card.ID] = card
	return nil
}
