package taskstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded map store for tests and ephemeral
// runs. Listing is ordered by clock time then id so results are stable.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]Task)}
}

func (s *MemoryStore) List(ctx context.Context, date string) ([]Task, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Task, 0, 8)
	for _, t := range s.tasks {
		if t.Date == date {
			items = append(items, t)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ClockTime != items[j].ClockTime {
			return items[i].ClockTime < items[j].ClockTime
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) Insert(ctx context.Context, t Task) error {
	_ = ctx
	if t.ID == "" {
		return fmt.Errorf("taskstore: task id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("taskstore: duplicate task id %s", t.ID)
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *MemoryStore) Replace(ctx context.Context, old Task, updated Task) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[old.ID]; !exists {
		return ErrNotFound
	}
	if updated.ID == "" {
		updated.ID = old.ID
	}
	if updated.ID != old.ID {
		delete(s.tasks, old.ID)
	}
	s.tasks[updated.ID] = updated
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[id]; !exists {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// Len reports the stored task count across all dates.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
