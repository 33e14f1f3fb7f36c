package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
)

type DeleteParams struct {
	TaskID    string
	Date      string
	Confirmed bool
}

type DeleteHandler struct {
	bus   *bus.Bus
	store taskstore.Store
}

func NewDeleteHandler(b *bus.Bus, store taskstore.Store) *DeleteHandler {
	return &DeleteHandler{bus: b, store: store}
}

func (h *DeleteHandler) Command() string { return CommandDeleteTask }

func (h *DeleteHandler) Decode(raw string) (interface{}, error) {
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
	return DeleteParams{
		TaskID:    taskID,
		Date:      date,
		Confirmed: gjson.Get(raw, "confirmed").Bool(),
	}, nil
}

func (h *DeleteHandler) Handle(ctx context.Context, correlationID string, params interface{}) {
	p := params.(DeleteParams)

	// The confirmation gate runs before any store access: one
	// hallucinated tool call must not cost data.
	if !p.Confirmed {
		h.bus.Publish(bus.TopicTaskDeleteResponse, failure(correlationID, CodeConfirmRequired,
			fmt.Sprintf("deleting task %s requires confirmed=true", p.TaskID)))
		return
	}

	_, ok, err := findTask(ctx, h.store, p.TaskID, p.Date)
	if err != nil {
		h.bus.Publish(bus.TopicTaskDeleteResponse, failure(correlationID, CodeStoreError, err.Error()))
		return
	}
	if !ok {
		h.bus.Publish(bus.TopicTaskDeleteResponse, failure(correlationID, CodeNotFound,
			fmt.Sprintf("task %s not found on %s", p.TaskID, p.Date)))
		return
	}

	if err := h.store.Remove(ctx, p.TaskID); err != nil {
		code := CodeStoreError
		if err == taskstore.ErrNotFound {
			code = CodeNotFound
		}
		h.bus.Publish(bus.TopicTaskDeleteResponse, failure(correlationID, code, err.Error()))
		return
	}

	data, _ := sjson.Set("{}", "deleted_id", p.TaskID)
	h.bus.Publish(bus.TopicTaskDeleteResponse, success(correlationID, data))
}
