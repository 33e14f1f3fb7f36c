package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
)

type UpdateParams struct {
	TaskID  string
	Date    string
	Updates string // raw JSON object; only fields present are applied
}

type UpdateHandler struct {
	bus   *bus.Bus
	store taskstore.Store
}

func NewUpdateHandler(b *bus.Bus, store taskstore.Store) *UpdateHandler {
	return &UpdateHandler{bus: b, store: store}
}

func (h *UpdateHandler) Command() string { return CommandUpdateTask }

func (h *UpdateHandler) Decode(raw string) (interface{}, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	taskID := strings.TrimSpace(gjson.Get(raw, "task_id").String())
	if taskID == "" {
		return nil, fmt.Errorf("task_id is required")
	}
	date := gjson.Get(raw, "date").String()
	if !taskdto.ValidDate(date) {
		return nil, fmt.Errorf("date is required as YYYY-MM-DD, got %q", date)
	}
	updates := gjson.Get(raw, "updates")
	if !updates.Exists() || !updates.IsObject() {
		return nil, fmt.Errorf("updates object is required")
	}
	return UpdateParams{TaskID: taskID, Date: date, Updates: updates.Raw}, nil
}

func (h *UpdateHandler) Handle(ctx context.Context, correlationID string, params interface{}) {
	p := params.(UpdateParams)

	old, ok, err := findTask(ctx, h.store, p.TaskID, p.Date)
	if err != nil {
		h.bus.Publish(bus.TopicTaskUpdateResponse, failure(correlationID, CodeStoreError, err.Error()))
		return
	}
	if !ok {
		h.bus.Publish(bus.TopicTaskUpdateResponse, failure(correlationID, CodeNotFound, fmt.Sprintf("task %s not found on %s", p.TaskID, p.Date)))
		return
	}

	updated, err := applySparseUpdates(old, p.Updates)
	if err != nil {
		h.bus.Publish(bus.TopicTaskUpdateResponse, failure(correlationID, CodeDecodeError, err.Error()))
		return
	}
	updated.UpdatedAt = time.Now().Unix()

	if err := h.store.Replace(ctx, old, updated); err != nil {
		code := CodeStoreError
		if err == taskstore.ErrNotFound {
			code = CodeNotFound
		}
		h.bus.Publish(bus.TopicTaskUpdateResponse, failure(correlationID, code, err.Error()))
		return
	}

	dto, err := taskdto.ToDTO(updated)
	if err != nil {
		h.bus.Publish(bus.TopicTaskUpdateResponse, failure(correlationID, CodeStoreError, err.Error()))
		return
	}
	data, _ := sjson.Set("{}", "task", dto)
	h.bus.Publish(bus.TopicTaskUpdateResponse, success(correlationID, data))
}

// applySparseUpdates copies old and overwrites only the fields present
// in the updates object. A time edit changes the clock value and the
// derived display string, never the date component.
func applySparseUpdates(old taskstore.Task, updates string) (taskstore.Task, error) {
	updated := old

	if field := gjson.Get(updates, "title"); field.Exists() {
		title := strings.TrimSpace(field.String())
		if title == "" {
			return taskstore.Task{}, fmt.Errorf("title cannot be blank")
		}
		updated.Title = title
	}
	if field := gjson.Get(updates, "time"); field.Exists() {
		clock := strings.TrimSpace(field.String())
		if clock != "" {
			if _, err := time.Parse(taskdto.ClockLayout, clock); err != nil {
				return taskstore.Task{}, fmt.Errorf("invalid time %q", clock)
			}
		}
		updated.ClockTime = clock
	}
	if field := gjson.Get(updates, "is_done"); field.Exists() {
		updated.Done = field.Bool()
	}
	if field := gjson.Get(updates, "category"); field.Exists() {
		updated.Category = strings.TrimSpace(field.String())
	}
	if field := gjson.Get(updates, "total_duration"); field.Exists() {
		updated.TotalDuration = int(field.Int())
	}
	if field := gjson.Get(updates, "total_calories"); field.Exists() {
		updated.TotalCalories = int(field.Int())
	}

	if field := gjson.Get(updates, "exercises"); field.Exists() {
		if updated.Kind != taskdto.KindWorkout {
			return taskstore.Task{}, fmt.Errorf("exercises only apply to workout tasks")
		}
		var entries []taskdto.Exercise
		if err := json.Unmarshal([]byte(field.Raw), &entries); err != nil {
			return taskstore.Task{}, fmt.Errorf("decode exercises: %w", err)
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return taskstore.Task{}, err
		}
		updated.Entries = raw
	}
	if field := gjson.Get(updates, "meals"); field.Exists() {
		if updated.Kind != taskdto.KindNutrition {
			return taskstore.Task{}, fmt.Errorf("meals only apply to nutrition tasks")
		}
		var entries []taskdto.Meal
		if err := json.Unmarshal([]byte(field.Raw), &entries); err != nil {
			return taskstore.Task{}, fmt.Errorf("decode meals: %w", err)
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return taskstore.Task{}, err
		}
		updated.Entries = raw
	}

	return updated, nil
}

func findTask(ctx context.Context, store taskstore.Store, id string, date string) (taskstore.Task, bool, error) {
	tasks, err := store.List(ctx, date)
	if err != nil {
		return taskstore.Task{}, false, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, true, nil
		}
	}
	return taskstore.Task{}, false, nil
}
