// Package bus is the in-memory typed event fan-out between the execution
// pipeline and its consumers (persistence, notifier, API stream). One topic
// per event kind; publishing never blocks the hot path.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"

	"riptide/internal/strategy"
	"riptide/internal/types"
)

var ErrTopicClosed = errors.New("topic closed")

// Topic is a bounded fan-out channel for one event kind. Each subscriber
// gets its own buffered channel; a subscriber that falls behind loses
// events (counted) rather than stalling publishers.
type Topic[T any] struct {
	name   string
	buffer int

	mu      sync.RWMutex
	subs    map[uint64]chan T
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

func NewTopic[T any](name string, buffer int) *Topic[T] {
	if buffer <= 0 {
		buffer = 64
	}
	return &Topic[T]{name: name, buffer: buffer, subs: make(map[uint64]chan T)}
}

func (t *Topic[T]) Name() string { return t.name }

// Subscribe registers a new consumer channel. The returned cancel func
// detaches and drains it; safe to call more than once.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan T, t.buffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
			t.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking. A full
// subscriber buffer drops the event for that subscriber only.
func (t *Topic[T]) Publish(v T) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTopicClosed
	}
	for _, ch := range t.subs {
		select {
		case ch <- v:
		default:
			t.dropped.Add(1)
		}
	}
	return nil
}

// Dropped reports how many deliveries were lost to full subscriber buffers.
func (t *Topic[T]) Dropped() uint64 { return t.dropped.Load() }

func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}

// Bus bundles the pipeline's three outbound topics.
type Bus struct {
	Signals    *Topic[strategy.Signal]
	Executions *Topic[types.ExecutionEvent]
	Alerts     *Topic[types.AlertEvent]
}

func New(buffer int) *Bus {
	return &Bus{
		Signals:    NewTopic[strategy.Signal]("signals", buffer),
		Executions: NewTopic[types.ExecutionEvent]("executions", buffer),
		Alerts:     NewTopic[types.AlertEvent]("alerts", buffer),
	}
}

func (b *Bus) Close() {
	b.Signals.Close()
	b.Executions.Close()
	b.Alerts.Close()
}
