package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/pkg/models"
)

func TestQueueTryEnqueueSucceedsWithinCapacity(t *testing.T) {
	q := NewQueue(2)
	assert.True(t, q.TryEnqueue(models.Signal{ID: "a"}))
	assert.True(t, q.TryEnqueue(models.Signal{ID: "b"}))
}

func TestQueueTryEnqueueFailsWhenFull(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.TryEnqueue(models.Signal{ID: "a"}))
	assert.False(t, q.TryEnqueue(models.Signal{ID: "b"}))
}

func TestQueueDefaultsCapacityWhenNonPositive(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < 1024; i++ {
		require.True(t, q.TryEnqueue(models.Signal{ID: "x"}))
	}
	assert.False(t, q.TryEnqueue(models.Signal{ID: "overflow"}))
}

func TestQueueRunDrainsUntilCancelled(t *testing.T) {
	q := NewQueue(4)
	require.True(t, q.TryEnqueue(models.Signal{ID: "a"}))
	require.True(t, q.TryEnqueue(models.Signal{ID: "b"}))

	var mu sync.Mutex
	var received []string

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(s models.Signal) {
			mu.Lock()
			received = append(received, s.ID)
			mu.Unlock()
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
