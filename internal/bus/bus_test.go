package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicFanOut(t *testing.T) {
	topic := NewTopic[int]("test", 4)
	a, cancelA := topic.Subscribe()
	b, cancelB := topic.Subscribe()
	defer cancelA()
	defer cancelB()

	require.NoError(t, topic.Publish(7))
	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-b)
}

func TestTopicDropsWhenSubscriberFull(t *testing.T) {
	topic := NewTopic[int]("test", 1)
	ch, cancel := topic.Subscribe()
	defer cancel()

	require.NoError(t, topic.Publish(1))
	require.NoError(t, topic.Publish(2)) // buffer full, dropped

	assert.Equal(t, uint64(1), topic.Dropped())
	assert.Equal(t, 1, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery %d", v)
	default:
	}
}

func TestTopicCancelDetaches(t *testing.T) {
	topic := NewTopic[string]("test", 2)
	ch, cancel := topic.Subscribe()
	cancel()
	cancel() // idempotent

	require.NoError(t, topic.Publish("x"))
	_, ok := <-ch
	assert.False(t, ok, "cancelled channel is closed")
	assert.Zero(t, topic.Dropped())
}

func TestTopicClose(t *testing.T) {
	topic := NewTopic[int]("test", 2)
	ch, _ := topic.Subscribe()
	topic.Close()

	assert.ErrorIs(t, topic.Publish(1), ErrTopicClosed)
	_, ok := <-ch
	assert.False(t, ok)

	late, _ := topic.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
}
