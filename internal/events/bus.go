package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("event bus closed")

const defaultBuffer = 64

// Bus is a small in-memory pub/sub for dispatch requests and tool events.
// Publish never blocks: a subscriber whose buffer is full misses the event and the
// drop is counted.
type Bus struct {
	mu      sync.Mutex
	subs    []chan any
	buffer  int
	closed  bool
	dropped atomic.Int64
}

func NewBus() *Bus {
	return NewBusSize(defaultBuffer)
}

// NewBusSize creates a bus whose subscribers buffer up to size events.
func NewBusSize(size int) *Bus {
	if size <= 0 {
		size = defaultBuffer
	}
	return &Bus{buffer: size}
}

func (b *Bus) Subscribe() <-chan any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan any)
		close(ch)
		return ch
	}
	ch := make(chan any, b.buffer)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(evt any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Warnf("event bus subscriber is full, %d event(s) dropped so far (%T)", n, evt)
			}
		}
	}
}

// PublishWait delivers evt to every subscriber, waiting for buffer space instead of
// dropping. It is meant for requests that must not be lost; the bus stays locked while
// it waits, so a subscriber must never publish from its receive loop.
func (b *Bus) PublishWait(ctx context.Context, evt any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		close(ch)
	}
	b.closed = true
}
