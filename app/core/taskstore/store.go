package taskstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("taskstore: task not found")

// Task is the store's native representation. Entry lists are kept as a
// JSON blob whose shape is owned by the translator, not by the store.
type Task struct {
	ID            string
	Kind          string
	Title         string
	Date          string // YYYY-MM-DD
	ClockTime     string // HH:MM, 24h; empty means unscheduled
	Category      string
	Done          bool
	AIGenerated   bool
	Source        string
	Entries       []byte
	TotalDuration int
	TotalCalories int
	CreatedAt     int64
	UpdatedAt     int64
}

// Store is the narrow persistence collaborator the coordinator talks
// to. Single-task granularity only; there are no cross-task
// transactions, and Replace is last-write-wins.
type Store interface {
	List(ctx context.Context, date string) ([]Task, error)
	Insert(ctx context.Context, t Task) error
	Replace(ctx context.Context, old Task, updated Task) error
	Remove(ctx context.Context, id string) error
}
