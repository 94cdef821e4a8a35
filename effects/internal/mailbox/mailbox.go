// Package mailbox implements the unbounded FIFO queue that serializes
// dispatches into a loop.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("mailbox is closed")

// Mailbox accepts items from any goroutine without blocking and hands them
// to a single consumer in push order.
//
// Producers may run on the consumer goroutine itself, so Push must never
// wait for Pop.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		signal: make(chan struct{}, 1),
	}
}

// Push enqueues item. It reports false if the mailbox is closed, in which
// case the item is dropped.
func (m *Mailbox[T]) Push(item T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until an item is available, the mailbox is closed or ctx is
// done.
func (m *Mailbox[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			item := m.items[0]
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return item, nil
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return zero, ErrClosed
		}

		select {
		case <-m.signal:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close stops accepting items and discards the ones still queued. It returns
// how many were discarded. Close is idempotent.
func (m *Mailbox[T]) Close() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	m.closed = true
	dropped := len(m.items)
	m.items = nil

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return dropped
}

// Len returns how many items are waiting.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
