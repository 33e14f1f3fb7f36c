package taskdto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
)

// ToDomain converts an agent-facing DTO into the store's native task.
// The DTO invariant is enforced here: a workout carries exercises, a
// nutrition task carries meals, a custom task carries neither.
func ToDomain(dto TaskDTO) (taskstore.Task, error) {
	kind := NormalizeKind(dto.Kind)
	if kind == "" {
		return taskstore.Task{}, fmt.Errorf("taskdto: unknown task type %q", dto.Kind)
	}
	if strings.TrimSpace(dto.Title) == "" {
		return taskstore.Task{}, fmt.Errorf("taskdto: title is required")
	}
	if !ValidDate(dto.Date) {
		return taskstore.Task{}, fmt.Errorf("taskdto: invalid date %q", dto.Date)
	}

	var (
		entries []byte
		err     error
	)
	switch kind {
	case KindWorkout:
		if len(dto.Meals) > 0 {
			return taskstore.Task{}, fmt.Errorf("taskdto: workout task cannot carry meals")
		}
		entries, err = json.Marshal(dto.Exercises)
	case KindNutrition:
		if len(dto.Exercises) > 0 {
			return taskstore.Task{}, fmt.Errorf("taskdto: nutrition task cannot carry exercises")
		}
		entries, err = json.Marshal(dto.Meals)
	case KindCustom:
		if len(dto.Exercises) > 0 || len(dto.Meals) > 0 {
			return taskstore.Task{}, fmt.Errorf("taskdto: custom task cannot carry entry lists")
		}
		entries = nil
	}
	if err != nil {
		return taskstore.Task{}, err
	}

	clock := strings.TrimSpace(dto.Time)
	if clock != "" {
		if _, parseErr := time.Parse(ClockLayout, clock); parseErr != nil {
			return taskstore.Task{}, fmt.Errorf("taskdto: invalid time %q", dto.Time)
		}
	}

	now := time.Now().Unix()
	return taskstore.Task{
		ID:            dto.ID,
		Kind:          kind,
		Title:         strings.TrimSpace(dto.Title),
		Date:          dto.Date,
		ClockTime:     clock,
		Category:      strings.TrimSpace(dto.Category),
		Done:          dto.IsDone,
		AIGenerated:   dto.IsAIGenerated,
		Source:        strings.TrimSpace(dto.Source),
		Entries:       entries,
		TotalDuration: dto.TotalDuration,
		TotalCalories: dto.TotalCalories,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ToDTO converts a stored task back to the agent-facing shape. Identity
// fields and entry lists round-trip exactly; the display time is
// regenerated from the stored clock value.
func ToDTO(t taskstore.Task) (TaskDTO, error) {
	dto := TaskDTO{
		ID:            t.ID,
		Kind:          t.Kind,
		Title:         t.Title,
		Date:          t.Date,
		Time:          t.ClockTime,
		DisplayTime:   FormatDisplayTime(t.ClockTime),
		Category:      t.Category,
		TotalDuration: t.TotalDuration,
		TotalCalories: t.TotalCalories,
		IsDone:        t.Done,
		IsAIGenerated: t.AIGenerated,
		Source:        t.Source,
	}

	switch t.Kind {
	case KindWorkout:
		if len(t.Entries) > 0 {
			if err := json.Unmarshal(t.Entries, &dto.Exercises); err != nil {
				return TaskDTO{}, fmt.Errorf("taskdto: decode exercises for %s: %w", t.ID, err)
			}
		}
	case KindNutrition:
		if len(t.Entries) > 0 {
			if err := json.Unmarshal(t.Entries, &dto.Meals); err != nil {
				return TaskDTO{}, fmt.Errorf("taskdto: decode meals for %s: %w", t.ID, err)
			}
		}
	case KindCustom:
	default:
		return TaskDTO{}, fmt.Errorf("taskdto: unknown stored kind %q", t.Kind)
	}
	return dto, nil
}
