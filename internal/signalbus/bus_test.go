package signalbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blackroad-os/edge-router/pkg/models"
)

func TestPublishInvokesHandlersSynchronously(t *testing.T) {
	bus := NewBus("")
	var received models.Signal
	bus.Subscribe(func(s models.Signal) { received = s })

	s := New("route.complete", "AI", "router", 1000, nil)
	bus.Publish(context.Background(), "signals", s)

	assert.Equal(t, s.ID, received.ID)
}

func TestJoinRoomReceivesPublishedSignal(t *testing.T) {
	bus := NewBus("")
	ch, leave := bus.JoinRoom("signals")
	defer leave()

	s := New("route.complete", "AI", "router", 1000, nil)
	bus.Publish(context.Background(), "signals", s)

	select {
	case got := <-ch:
		assert.Equal(t, s.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fan-out")
	}
}

func TestSlowSubscriberIsDisconnectedOnFullChannel(t *testing.T) {
	bus := NewBus("")
	ch, _ := bus.JoinRoom("signals")

	for i := 0; i < subscriberQueueDepth+5; i++ {
		bus.Publish(context.Background(), "signals", New("route.complete", "AI", "router", int64(i), nil))
	}

	// Channel should have been closed after overflowing; draining it must
	// not block forever.
	drained := 0
	for range ch {
		drained++
		if drained > subscriberQueueDepth+10 {
			t.Fatal("channel never closed")
		}
	}
	assert.LessOrEqual(t, drained, subscriberQueueDepth)
}

func TestDifferentRoomsAreIsolated(t *testing.T) {
	bus := NewBus("")
	chA, leaveA := bus.JoinRoom("signals")
	defer leaveA()
	chB, leaveB := bus.JoinRoom("audit")
	defer leaveB()

	bus.Publish(context.Background(), "signals", New("route.complete", "AI", "router", 1, nil))

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("room A did not receive")
	}

	select {
	case <-chB:
		t.Fatal("room B should not have received a signal published to room A")
	case <-time.After(50 * time.Millisecond):
	}
}
