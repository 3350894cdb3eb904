package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterFansOut(t *testing.T) {
	b := NewBroadcaster(4)
	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()

	b.Publish(Event{Turn: 3, State: StateDone})

	require.Equal(t, StateDone, (<-first).State)
	require.Equal(t, 3, (<-second).Turn)

	cancelFirst()
	cancelFirst()
	_, ok := <-first
	assert.False(t, ok)
	assert.Equal(t, 1, b.Subscribers())
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(1)
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Turn: 0, State: StateTranscribing})
	b.Publish(Event{Turn: 0, State: StateAwaitingGeneration})

	assert.Equal(t, StateTranscribing, (<-ch).State)
	select {
	case e := <-ch:
		t.Fatalf("unexpected buffered event %v", e.State)
	default:
	}
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster(0)
	ch, cancel := b.Subscribe()
	b.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	b.Publish(Event{})
}
