package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned by AwaitResponse when no matching envelope
// arrives within the bound. It is the only error the coordinator
// surfaces distinctly to its callers.
var ErrTimeout = errors.New("bus: response timeout")

// Topic is a typed channel name. One request and one response topic
// exist per command family; using constants instead of free strings
// keeps publisher and subscriber from drifting apart.
type Topic string

const (
	TopicTaskCreateRequest  Topic = "task.create.request"
	TopicTaskCreateResponse Topic = "task.create.response"
	TopicTaskQueryRequest   Topic = "task.query.request"
	TopicTaskQueryResponse  Topic = "task.query.response"
	TopicTaskUpdateRequest  Topic = "task.update.request"
	TopicTaskUpdateResponse Topic = "task.update.response"
	TopicTaskDeleteRequest  Topic = "task.delete.request"
	TopicTaskDeleteResponse Topic = "task.delete.response"
	TopicPlanRequest        Topic = "task.plan.request"
	TopicPlanResponse       Topic = "task.plan.response"
)

// Envelope is the single payload shape carried on every topic. Requests
// use Command and Args; responses use Success, Data and the error pair.
type Envelope struct {
	CorrelationID string `json:"correlation_id"`
	Command       string `json:"command,omitempty"`
	Args          string `json:"args,omitempty"` // raw JSON object
	Success       bool   `json:"success"`
	Data          string `json:"data,omitempty"` // raw JSON
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

type Handler func(Envelope)

// Subscription identifies one registered handler. It must be passed
// back to Unsubscribe; the bus never holds closures it cannot release.
type Subscription struct {
	topic Topic
	id    string
}

// Bus is an explicitly constructed publish/subscribe channel. It holds
// the subscriber table and nothing else; no business state lives here.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic]map[string]Handler
}

func New() *Bus {
	return &Bus{subs: make(map[Topic]map[string]Handler)}
}

func (b *Bus) Subscribe(topic Topic, handler Handler) Subscription {
	sub := Subscription{topic: topic, id: uuid.NewString()}
	if handler == nil {
		return sub
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers, ok := b.subs[topic]
	if !ok {
		handlers = make(map[string]Handler)
		b.subs[topic] = handlers
	}
	handlers[sub.id] = handler
	return sub
}

func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers, ok := b.subs[sub.topic]
	if !ok {
		return
	}
	delete(handlers, sub.id)
	if len(handlers) == 0 {
		delete(b.subs, sub.topic)
	}
}

// Publish delivers env to every subscriber registered at publish time.
// Publishing with no subscribers is a silent no-op. Delivery runs in
// the publisher's goroutine; handlers must not block.
func (b *Bus) Publish(topic Topic, env Envelope) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
}

// SubscriberCount reports how many handlers are registered for topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Waiter is a one-shot receiver for a single correlation id. The once
// guard makes a duplicate publish for the same id a no-op.
type Waiter struct {
	bus  *Bus
	sub  Subscription
	ch   chan Envelope
	once sync.Once
}

// NewWaiter subscribes for the envelope carrying correlationID on
// topic. It must be created before the request is published so a
// synchronous response cannot be missed.
func (b *Bus) NewWaiter(topic Topic, correlationID string) *Waiter {
	w := &Waiter{bus: b, ch: make(chan Envelope, 1)}
	w.sub = b.Subscribe(topic, func(env Envelope) {
		if env.CorrelationID != correlationID {
			return
		}
		w.once.Do(func() { w.ch <- env })
	})
	return w
}

// Wait blocks until the matching envelope arrives or timeout elapses.
// The subscription is released on every exit path.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (Envelope, error) {
	defer w.bus.Unsubscribe(w.sub)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-w.ch:
		return env, nil
	case <-timer.C:
		return Envelope{}, ErrTimeout
	case <-ctx.Done():
		return Envelope{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

// AwaitResponse is the subscribe/wait/unsubscribe sequence in one call.
func (b *Bus) AwaitResponse(ctx context.Context, topic Topic, correlationID string, timeout time.Duration) (Envelope, error) {
	w := b.NewWaiter(topic, correlationID)
	return w.Wait(ctx, timeout)
}
