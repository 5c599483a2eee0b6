package verification

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]Verification
	// locks serializes Resolve per id without holding mu during fn.
	locks map[string]*sync.Mutex
}

// NewMemoryStore constructs an in-memory store for tests and local development.
func NewMemoryStore() Store {
	return &memoryStore{items: make(map[string]Verification), locks: make(map[string]*sync.Mutex)}
}

func (s *memoryStore) Create(_ context.Context, v Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[v.ID]; exists {
		return errors.New("verification exists")
	}
	s.items[v.ID] = clone(v)
	s.locks[v.ID] = &sync.Mutex{}
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[id]
	if !ok {
		return Verification{}, ErrNotFound
	}
	return clone(v), nil
}

func (s *memoryStore) Decide(_ context.Context, id string, status Status, at time.Time) (Verification, error) {
	s.mu.Lock()
	lock, ok := s.locks[id]
	s.mu.Unlock()
	if !ok {
		return Verification{}, ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.items[id]
	if v.Status != StatusPending {
		return Verification{}, ErrAlreadyDecided
	}
	v = decided(v, status, at)
	s.items[id] = v
	return clone(v), nil
}

func (s *memoryStore) Resolve(ctx context.Context, id string, at time.Time, fn ResolveFunc) (Verification, error) {
	s.mu.Lock()
	lock, ok := s.locks[id]
	s.mu.Unlock()
	if !ok {
		return Verification{}, ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	v := clone(s.items[id])
	s.mu.Unlock()

	status, err := fn(ctx, v)
	if status == "" {
		return v, err
	}

	s.mu.Lock()
	v = decided(v, status, at)
	s.items[id] = v
	s.mu.Unlock()
	return clone(v), err
}

func (s *memoryStore) List(_ context.Context, filter Filter) ([]Verification, int, error) {
	filter = filter.normalized()
	s.mu.Lock()
	matched := make([]Verification, 0, len(s.items))
	for _, v := range s.items {
		if matches(v, filter) {
			matched = append(matched, clone(v))
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Skip >= total {
		return []Verification{}, total, nil
	}
	end := filter.Skip + filter.Take
	if end > total {
		end = total
	}
	return matched[filter.Skip:end], total, nil
}

func matches(v Verification, f Filter) bool {
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if v.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if f.TargetID != "" && v.TargetID != f.TargetID {
		return false
	}
	if f.AssigneeID != "" && v.AssigneeID != f.AssigneeID {
		return false
	}
	if f.CreatedBy != "" && v.CreatedBy != f.CreatedBy {
		return false
	}
	q := strings.TrimSpace(f.Query)
	if q == "" {
		return true
	}
	if _, err := uuid.Parse(q); err == nil {
		return v.ID == q || v.TargetID == q || v.AssigneeID == q || v.CreatedBy == q
	}
	q = strings.ToLower(q)
	return strings.Contains(string(v.Action), q) || strings.Contains(string(v.Status), q)
}

func decided(v Verification, status Status, at time.Time) Verification {
	t := at.UTC()
	v.Status = status
	v.DecidedAt = &t
	return v
}

func clone(v Verification) Verification {
	if v.Payload != nil {
		p := make(map[string]string, len(v.Payload))
		for k, val := range v.Payload {
			p[k] = val
		}
		v.Payload = p
	}
	if v.DecidedAt != nil {
		t := *v.DecidedAt
		v.DecidedAt = &t
	}
	return v
}
