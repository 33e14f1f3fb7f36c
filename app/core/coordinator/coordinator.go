package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/dispatch"
	"github.com/LEOK66/Modo-sub004/app/core/queue"
	"github.com/LEOK66/Modo-sub004/app/pkg/logger"
)

const DefaultResponseTimeout = 5 * time.Second

// Response is the outcome of one executed command. A failed response
// is a normal answer ("the system said no"); only a timeout surfaces
// as an error from Execute ("the system never answered").
type Response struct {
	CorrelationID string `json:"correlation_id"`
	Success       bool   `json:"success"`
	Data          string `json:"data,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

type Options struct {
	ResponseTimeout time.Duration
	DispatchBuffer  int
}

// Coordinator owns the bus, the dispatcher and the serialized dispatch
// queue, and exposes the one public entry point for task operations.
type Coordinator struct {
	bus        *bus.Bus
	dispatcher *dispatch.Dispatcher
	dispatchQ  *queue.Serial
	timeout    time.Duration

	mu      sync.Mutex
	subs    []bus.Subscription
	started bool
}

func New(b *bus.Bus, d *dispatch.Dispatcher, opts Options) *Coordinator {
	timeout := opts.ResponseTimeout
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	return &Coordinator{
		bus:        b,
		dispatcher: d,
		dispatchQ:  queue.NewSerial(opts.DispatchBuffer),
		timeout:    timeout,
	}
}

// Bus exposes the coordinator's bus for collaborators that publish or
// await directly (the conversation session does not need it; tests do).
func (c *Coordinator) Bus() *bus.Bus {
	return c.bus
}

// Start subscribes the dispatcher to every request topic and starts
// the dispatch context. Each inbound request envelope becomes one job
// on the serialized queue.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("coordinator: already started")
	}
	if err := c.dispatchQ.Start(ctx); err != nil {
		return err
	}

	for _, command := range dispatch.Commands() {
		reqTopic, ok := dispatch.RequestTopic(command)
		if !ok {
			continue
		}
		sub := c.bus.Subscribe(reqTopic, func(env bus.Envelope) {
			if _, err := c.dispatchQ.Enqueue(ctx, queue.Job{
				ID: env.CorrelationID,
				Run: func(runCtx context.Context) {
					c.dispatcher.Dispatch(runCtx, env)
				},
			}); err != nil {
				logger.Error("[Coordinator] enqueue failed command=%s: %v", env.Command, err)
			}
		})
		c.subs = append(c.subs, sub)
	}
	c.started = true
	return nil
}

func (c *Coordinator) Stop(timeout time.Duration) error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	started := c.started
	c.started = false
	c.mu.Unlock()

	if !started {
		return nil
	}
	for _, sub := range subs {
		c.bus.Unsubscribe(sub)
	}
	return c.dispatchQ.Stop(timeout)
}

// Execute runs one command: publish the request, await the correlated
// response. The returned error is non-nil only for a timeout.
func (c *Coordinator) Execute(ctx context.Context, command string, argsJSON string) (Response, error) {
	correlationID := uuid.NewString()

	respTopic, ok := dispatch.ResponseTopic(command)
	if !ok {
		// No registered family: nothing will ever answer. The caller
		// observes the same soft failure an unregistered dispatcher
		// entry produces.
		logger.Error("[Coordinator] no topic for command %q", command)
		return c.waitForNothing(ctx, correlationID)
	}
	reqTopic, _ := dispatch.RequestTopic(command)

	waiter := c.bus.NewWaiter(respTopic, correlationID)
	c.bus.Publish(reqTopic, bus.Envelope{
		CorrelationID: correlationID,
		Command:       command,
		Args:          argsJSON,
	})

	env, err := waiter.Wait(ctx, c.timeout)
	if err != nil {
		return Response{CorrelationID: correlationID}, err
	}
	return Response{
		CorrelationID: env.CorrelationID,
		Success:       env.Success,
		Data:          env.Data,
		ErrorCode:     env.ErrorCode,
		ErrorMessage:  env.ErrorMessage,
	}, nil
}

func (c *Coordinator) waitForNothing(ctx context.Context, correlationID string) (Response, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return Response{CorrelationID: correlationID}, bus.ErrTimeout
	case <-ctx.Done():
		return Response{CorrelationID: correlationID}, fmt.Errorf("%w: %v", bus.ErrTimeout, ctx.Err())
	}
}

// Stats reports the dispatch queue state.
func (c *Coordinator) Stats() queue.Stats {
	return c.dispatchQ.Stats()
}
