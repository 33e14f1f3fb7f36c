package dispatch

import (
	"context"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/pkg/logger"
)

const (
	CommandReadTasks    = "read_tasks"
	CommandUpdateTask   = "update_task"
	CommandDeleteTask   = "delete_task"
	CommandCreateTask   = "create_task"
	CommandGeneratePlan = "generate_multi_day_plan"
)

const (
	CodeDecodeError     = "DECODE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConfirmRequired = "CONFIRM_REQUIRED"
	CodeStoreError      = "STORE_ERROR"
	CodeUnknownCommand  = "UNKNOWN_COMMAND"
)

var commandTopics = map[string]struct {
	request  bus.Topic
	response bus.Topic
}{
	CommandCreateTask:   {bus.TopicTaskCreateRequest, bus.TopicTaskCreateResponse},
	CommandReadTasks:    {bus.TopicTaskQueryRequest, bus.TopicTaskQueryResponse},
	CommandUpdateTask:   {bus.TopicTaskUpdateRequest, bus.TopicTaskUpdateResponse},
	CommandDeleteTask:   {bus.TopicTaskDeleteRequest, bus.TopicTaskDeleteResponse},
	CommandGeneratePlan: {bus.TopicPlanRequest, bus.TopicPlanResponse},
}

// RequestTopic resolves the bus request topic for a command name.
func RequestTopic(command string) (bus.Topic, bool) {
	topics, ok := commandTopics[command]
	return topics.request, ok
}

// ResponseTopic resolves the bus response topic for a command name.
func ResponseTopic(command string) (bus.Topic, bool) {
	topics, ok := commandTopics[command]
	return topics.response, ok
}

// Commands lists every registered command name.
func Commands() []string {
	return []string{
		CommandReadTasks,
		CommandUpdateTask,
		CommandDeleteTask,
		CommandCreateTask,
		CommandGeneratePlan,
	}
}

// Handler implements one command. Decode turns raw tool-call arguments
// into the handler's parameter type; Handle must publish exactly one
// response envelope carrying the given correlation id.
type Handler interface {
	Command() string
	Decode(raw string) (interface{}, error)
	Handle(ctx context.Context, correlationID string, params interface{})
}

// Dispatcher maps a decoded tool-call name to its handler. The
// registry makes adding a command an additive registration instead of
// an edit to a shared branch.
type Dispatcher struct {
	bus      *bus.Bus
	registry map[string]Handler
}

func NewDispatcher(b *bus.Bus) *Dispatcher {
	return &Dispatcher{
		bus:      b,
		registry: make(map[string]Handler),
	}
}

func (d *Dispatcher) Register(h Handler) {
	d.registry[h.Command()] = h
}

// Dispatch routes one request envelope. An unknown command is logged
// and produces no response; the caller's await observes a timeout. A
// decode failure publishes an immediate failure without invoking the
// handler.
func (d *Dispatcher) Dispatch(ctx context.Context, env bus.Envelope) {
	h, ok := d.registry[env.Command]
	if !ok {
		logger.Error("[Dispatch] unknown command %q (correlation=%s)", env.Command, env.CorrelationID)
		return
	}

	respTopic, _ := ResponseTopic(env.Command)
	params, err := h.Decode(env.Args)
	if err != nil {
		logger.Error("[Dispatch] decode failed command=%s: %v", env.Command, err)
		d.bus.Publish(respTopic, failure(env.CorrelationID, CodeDecodeError, err.Error()))
		return
	}
	h.Handle(ctx, env.CorrelationID, params)
}

func success(correlationID string, data string) bus.Envelope {
	return bus.Envelope{
		CorrelationID: correlationID,
		Success:       true,
		Data:          data,
	}
}

func failure(correlationID string, code string, message string) bus.Envelope {
	return bus.Envelope{
		CorrelationID: correlationID,
		Success:       false,
		ErrorCode:     code,
		ErrorMessage:  message,
	}
}
