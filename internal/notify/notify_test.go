package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()

	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")

		return Event{}
	}
}

func TestBroadcaster_TopicFilter(t *testing.T) {
	b := NewBroadcaster()

	all := b.Subscribe("")
	dir := b.Subscribe("100/f1")
	other := b.Subscribe("200")

	defer b.Unsubscribe(all)
	defer b.Unsubscribe(dir)
	defer b.Unsubscribe(other)

	b.Notify("100/f1")

	assert.Equal(t, "100/f1", receive(t, all).Topic)
	assert.Equal(t, "100/f1", receive(t, dir).Topic)
	assert.Empty(t, other)
}

func TestBroadcaster_DropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(RootsTopic)

	for range subscriberBuffer + 10 {
		b.Notify(RootsTopic)
	}

	assert.Len(t, sub, subscriberBuffer)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("")
	require.Equal(t, 1, b.Count())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.Count())

	_, open := <-sub
	assert.False(t, open)

	b.Unsubscribe(sub)
	b.Notify("x")
}
