package eventbus_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairnode-agent/internal/eventbus"
)

func TestPublish_DeliversInRegistrationOrder(t *testing.T) {
	bus := eventbus.New()
	var order []string

	bus.Subscribe("topic", func(payload any) error {
		order = append(order, "first:"+payload.(string))
		return nil
	})
	bus.Subscribe("topic", func(payload any) error {
		order = append(order, "second:"+payload.(string))
		return nil
	})
	bus.Subscribe("other", func(payload any) error {
		order = append(order, "other")
		return nil
	})

	bus.Publish("topic", "a")
	bus.Publish("topic", "b")

	assert.Equal(t, []string{"first:a", "second:a", "first:b", "second:b"}, order)
	assert.Equal(t, 2, bus.SubscriberCount("topic"))
	assert.Equal(t, 0, bus.SubscriberCount("missing"))
}

func TestPublish_IsolatesFailingHandlers(t *testing.T) {
	bus := eventbus.New()
	var delivered []int

	bus.Subscribe("topic", func(payload any) error {
		panic("boom")
	})
	bus.Subscribe("topic", func(payload any) error {
		return errors.New("handler error")
	})
	bus.Subscribe("topic", func(payload any) error {
		delivered = append(delivered, payload.(int))
		return nil
	})

	require.NotPanics(t, func() { bus.Publish("topic", 7) })
	assert.Equal(t, []int{7}, delivered)
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := eventbus.New()
	assert.NotPanics(t, func() { bus.Publish("nobody", nil) })
}

func TestPublish_ReentrantPublishAndSubscribe(t *testing.T) {
	bus := eventbus.New()
	var got []string

	bus.Subscribe("outer", func(payload any) error {
		bus.Subscribe("inner", func(payload any) error {
			got = append(got, "inner")
			return nil
		})
		bus.Publish("inner", nil)
		got = append(got, "outer")
		return nil
	})

	bus.Publish("outer", nil)

	assert.Equal(t, []string{"inner", "outer"}, got)
}
