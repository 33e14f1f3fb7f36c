package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
	"github.com/LEOK66/Modo-sub004/app/pkg/logger"
)

// SessionDedup is the idempotency guard for generated tasks. It lives
// for the conversation session and is only touched from the dispatch
// context, so it carries no lock. Entries are never evicted; session
// scope bounds the growth.
type SessionDedup struct {
	seen map[string]struct{}
}

func NewSessionDedup() *SessionDedup {
	return &SessionDedup{seen: make(map[string]struct{})}
}

// Seen reports whether key is already recorded, without recording it.
func (d *SessionDedup) Seen(key string) bool {
	_, dup := d.seen[key]
	return dup
}

// Mark records the key and reports whether it was already present.
// Callers record a key only once its task is durably stored; a failed
// insert leaves the key unmarked and the create retryable.
func (d *SessionDedup) Mark(key string) bool {
	if _, dup := d.seen[key]; dup {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

type CreateParams struct {
	Tasks  []taskdto.TaskDTO
	Source string
}

type CreateHandler struct {
	bus   *bus.Bus
	store taskstore.Store
	dedup *SessionDedup
}

func NewCreateHandler(b *bus.Bus, store taskstore.Store, dedup *SessionDedup) *CreateHandler {
	return &CreateHandler{bus: b, store: store, dedup: dedup}
}

func (h *CreateHandler) Command() string { return CommandCreateTask }

func (h *CreateHandler) Decode(raw string) (interface{}, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	tasksField := gjson.Get(raw, "tasks")
	if !tasksField.Exists() || !tasksField.IsArray() {
		return nil, fmt.Errorf("tasks array is required")
	}

	var tasks []taskdto.TaskDTO
	if err := json.Unmarshal([]byte(tasksField.Raw), &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("tasks array is empty")
	}
	return CreateParams{
		Tasks:  tasks,
		Source: gjson.Get(raw, "source").String(),
	}, nil
}

func (h *CreateHandler) Handle(ctx context.Context, correlationID string, params interface{}) {
	p := params.(CreateParams)

	type pendingTask struct {
		key    string
		domain taskstore.Task
	}

	// The whole batch translates before the first insert; a bad item
	// fails the request with the store untouched.
	pending := make([]pendingTask, 0, len(p.Tasks))
	for _, dto := range p.Tasks {
		if p.Source != "" && dto.Source == "" {
			dto.Source = p.Source
		}
		key := taskdto.DedupKey(dto)
		if dto.ID == "" {
			dto.ID = uuid.NewString()
		}
		domain, err := taskdto.ToDomain(dto)
		if err != nil {
			h.bus.Publish(bus.TopicTaskCreateResponse, failure(correlationID, CodeDecodeError, err.Error()))
			return
		}
		pending = append(pending, pendingTask{key: key, domain: domain})
	}

	createdIDs := make([]string, 0, len(pending))
	skipped := 0
	for _, item := range pending {
		if h.dedup.Seen(item.key) {
			logger.Info("[Create] duplicate task suppressed: %s on %s", item.domain.Title, item.domain.Date)
			skipped++
			continue
		}
		if err := h.store.Insert(ctx, item.domain); err != nil {
			// Unmarked key: an identical retry may still create the
			// task. The payload names what did land before the error.
			env := failure(correlationID, CodeStoreError, err.Error())
			env.Data, _ = sjson.Set("{}", "created_ids", createdIDs)
			h.bus.Publish(bus.TopicTaskCreateResponse, env)
			return
		}
		h.dedup.Mark(item.key)
		createdIDs = append(createdIDs, item.domain.ID)
	}

	data, _ := sjson.Set("{}", "created_ids", createdIDs)
	data, _ = sjson.Set(data, "skipped", skipped)
	h.bus.Publish(bus.TopicTaskCreateResponse, success(correlationID, data))
}
