package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterBus_DeliversInRegistrationOrder(t *testing.T) {
	bus := NewRosterBus()
	var got []string
	bus.Subscribe(context.Background(), func(ev RosterEvent) { got = append(got, "first:"+string(ev.Kind)) })
	bus.Subscribe(context.Background(), func(ev RosterEvent) { got = append(got, "second:"+string(ev.Kind)) })

	bus.Publish(RosterEvent{Kind: EventFed})
	assert.Equal(t, []string{"first:fed", "second:fed"}, got)
}

func TestRosterBus_Unsubscribe(t *testing.T) {
	bus := NewRosterBus()
	calls := 0
	unsubscribe := bus.Subscribe(context.Background(), func(RosterEvent) { calls++ })
	bus.Publish(RosterEvent{Kind: EventLoaded})
	unsubscribe()
	unsubscribe()
	bus.Publish(RosterEvent{Kind: EventLoaded})

	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.Len())
}

func TestRosterBus_ContextCancelRemovesListener(t *testing.T) {
	bus := NewRosterBus()
	ctx, cancel := context.WithCancel(context.Background())
	bus.Subscribe(ctx, func(RosterEvent) {})
	require.Equal(t, 1, bus.Len())

	cancel()
	require.Eventually(t, func() bool { return bus.Len() == 0 }, time.Second, time.Millisecond)
}

func TestRosterBus_ListenerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := NewRosterBus()
	var unsubscribe func()
	calls := 0
	unsubscribe = bus.Subscribe(context.Background(), func(RosterEvent) {
		calls++
		unsubscribe()
	})
	bus.Publish(RosterEvent{})
	bus.Publish(RosterEvent{})
	assert.Equal(t, 1, calls)
}

func TestRosterBus_Close(t *testing.T) {
	bus := NewRosterBus()
	bus.Subscribe(context.Background(), func(RosterEvent) {})
	bus.Close()
	assert.Zero(t, bus.Len())

	bus.Subscribe(context.Background(), func(RosterEvent) { t.Fatal("closed bus delivered an event") })
	bus.Publish(RosterEvent{})
}
