package taskstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/LEOK66/Modo-sub004/app/core/db"
)

const taskColumns = `id, kind, title, date, clock_time, category, done, entries, total_duration, total_calories, ai_generated, source, created_at, updated_at`

// SQLiteStore is the durable Store implementation.
type SQLiteStore struct {
	db *db.DB
}

func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database}
}

func (s *SQLiteStore) List(ctx context.Context, date string) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE date = ? ORDER BY clock_time ASC, id ASC`
	rows, err := s.db.Conn().QueryContext(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0, 8)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, t Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("taskstore: task id is required")
	}
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Conn().ExecContext(ctx, query,
		t.ID, t.Kind, t.Title, t.Date, t.ClockTime, t.Category,
		boolToInt(t.Done), t.Entries, t.TotalDuration, t.TotalCalories,
		boolToInt(t.AIGenerated), t.Source, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) Replace(ctx context.Context, old Task, updated Task) error {
	if updated.ID == "" {
		updated.ID = old.ID
	}
	query := `UPDATE tasks SET id = ?, kind = ?, title = ?, date = ?, clock_time = ?, category = ?, done = ?, entries = ?, total_duration = ?, total_calories = ?, ai_generated = ?, source = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.Conn().ExecContext(ctx, query,
		updated.ID, updated.Kind, updated.Title, updated.Date, updated.ClockTime, updated.Category,
		boolToInt(updated.Done), updated.Entries, updated.TotalDuration, updated.TotalCalories,
		boolToInt(updated.AIGenerated), updated.Source, updated.UpdatedAt,
		old.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(rows *sql.Rows) (Task, error) {
	var (
		t           Task
		done        int
		aiGenerated int
		entries     []byte
	)
	if err := rows.Scan(
		&t.ID, &t.Kind, &t.Title, &t.Date, &t.ClockTime, &t.Category,
		&done, &entries, &t.TotalDuration, &t.TotalCalories,
		&aiGenerated, &t.Source, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	t.Done = done != 0
	t.AIGenerated = aiGenerated != 0
	t.Entries = entries
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
