package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simforge/simforge/internal/lifecycle"
)

func TestBus_SubscribePriorityOrderWithinFrameworkChannel(t *testing.T) {
	bus := New(lifecycle.NewManager())

	var order []string
	mustSubscribe := func(priority int, owner string) {
		_, err := bus.Subscribe(ChannelTimeStep, priority, owner, func(ctx context.Context, e Event) error {
			order = append(order, owner)
			return nil
		})
		require.NoError(t, err)
	}
	mustSubscribe(5, "fertility")
	mustSubscribe(1, "logging")
	mustSubscribe(1, "metrics")
	mustSubscribe(9, "results")

	require.NoError(t, bus.EmitFramework(context.Background(), ChannelTimeStep, Event{}))
	assert.Equal(t, []string{"logging", "metrics", "fertility", "results"}, order)
}

func TestBus_SubscribeRejectsOutOfRangePriority(t *testing.T) {
	bus := New(lifecycle.NewManager())
	_, err := bus.Subscribe(ChannelTimeStep, 10, "fertility", func(ctx context.Context, e Event) error { return nil })
	require.Error(t, err)
}

func TestBus_EmitFrameworkRejectsNonReservedChannel(t *testing.T) {
	bus := New(lifecycle.NewManager())
	err := bus.EmitFramework(context.Background(), "custom.births", Event{})
	require.Error(t, err)
}

func TestBus_EmitRejectsReservedChannel(t *testing.T) {
	lc := lifecycle.NewManager()
	bus := New(lc)

	err := lc.EnterComponent("fertility", func() error {
		return bus.Emit(context.Background(), ChannelTimeStep, Event{})
	})
	require.Error(t, err)
}

func TestBus_EmitRejectsOutsideComponentScope(t *testing.T) {
	bus := New(lifecycle.NewManager())
	err := bus.Emit(context.Background(), "custom.births", Event{})
	require.Error(t, err)
}

func TestBus_EmitAllowedWithinEmittingComponentScope(t *testing.T) {
	lc := lifecycle.NewManager()
	bus := New(lc)

	var received bool
	_, err := bus.Subscribe("custom.births", 5, "logging", func(ctx context.Context, e Event) error {
		received = true
		return nil
	})
	require.NoError(t, err)

	err = lc.EnterComponent("fertility", func() error {
		return bus.Emit(context.Background(), "custom.births", Event{Payload: 42})
	})
	require.NoError(t, err)
	assert.True(t, received)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := New(lifecycle.NewManager())

	calls := 0
	sub, err := bus.Subscribe(ChannelTimeStep, 5, "fertility", func(ctx context.Context, e Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.EmitFramework(context.Background(), ChannelTimeStep, Event{}))
	sub.Unsubscribe()
	require.NoError(t, bus.EmitFramework(context.Background(), ChannelTimeStep, Event{}))

	assert.Equal(t, 1, calls)
}

func TestBus_HandlerErrorAbortsDispatch(t *testing.T) {
	bus := New(lifecycle.NewManager())

	var secondCalled bool
	_, err := bus.Subscribe(ChannelTimeStep, 1, "fertility", func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(ChannelTimeStep, 5, "mortality", func(ctx context.Context, e Event) error {
		secondCalled = true
		return nil
	})
	require.NoError(t, err)

	err = bus.EmitFramework(context.Background(), ChannelTimeStep, Event{})
	require.Error(t, err)
	assert.False(t, secondCalled)
}
