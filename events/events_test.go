package events

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/chainsync/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	eventBus := NewEventBus()

	id, eventChan := eventBus.Subscribe()
	assert.Equal(t, 1, eventBus.GetTotalSubscriptions())
	assert.True(t, eventBus.HasSubscriber(id))

	b := block.NewGenesis(1000, uint256.NewInt(1))
	require.NoError(t, eventBus.Handle(NewBlockConnected(b)))

	select {
	case received := <-eventChan:
		assert.Equal(t, EventBlockConnected, received.Type())
		connected, ok := received.(*BlockConnected)
		require.True(t, ok)
		assert.Equal(t, b.ID(), connected.Block.ID())
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}

	assert.True(t, eventBus.Unsubscribe(id))
	assert.False(t, eventBus.Unsubscribe(id))
	assert.Equal(t, 0, eventBus.GetTotalSubscriptions())
}

func TestHandleReportsFullSubscriber(t *testing.T) {
	eventBus := NewEventBus()
	_, _ = eventBus.Subscribe()

	b := block.NewGenesis(1000, uint256.NewInt(1))
	for i := 0; i < subscriberBufferSize; i++ {
		require.NoError(t, eventBus.Handle(NewBlockConnected(b)))
	}
	assert.ErrorIs(t, eventBus.Handle(NewBlockConnected(b)), ErrDeliveryFailed)
}

func TestHandleWithoutSubscribers(t *testing.T) {
	b := block.NewGenesis(1000, uint256.NewInt(1))
	assert.NoError(t, NewEventBus().Handle(NewBlockConnected(b)))
}
