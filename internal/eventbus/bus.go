package eventbus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	TopicLog                     = "log"
	TopicSystemStatus            = "systemStatus"
	TopicModuleStatus            = "moduleStatus"
	TopicModuleStatusUpdate      = "moduleStatusUpdate"
	TopicMacrosStatus            = "macrosStatus"
	TopicNewNetworkDataProcessed = "newNetworkDataProcessed"
)

// Handler receives a published payload. A returned error is logged and
// does not affect other handlers or the publisher.
type Handler func(payload any) error

type Publisher interface {
	Publish(topic string, payload any)
}

type Subscriber interface {
	Subscribe(topic string, handler Handler)
}

type Bus interface {
	Publisher
	Subscriber
	SubscriberCount(topic string) int
}

type eventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func New() Bus {
	return &eventBus{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers handler for the lifetime of the bus.
func (b *eventBus) Subscribe(topic string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish delivers payload synchronously, in registration order, to every
// handler subscribed to topic when Publish was called. Handlers may
// publish or subscribe from inside their callback.
func (b *eventBus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for i, h := range handlers {
		if err := dispatch(h, payload); err != nil {
			log.Error().Err(err).Str("topic", topic).Int("handler", i).Msg("Event handler failed")
		}
	}
}

func (b *eventBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

func dispatch(h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(payload)
}
