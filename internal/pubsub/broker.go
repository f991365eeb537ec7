package pubsub

import (
	"context"
	"errors"
	"sync"
)

const bufferSize = 64

// ErrClosed is returned by Deliver after Shutdown.
var ErrClosed = errors.New("pubsub: broker closed")

// Broker is an in-memory publish/subscribe hub with typed payloads.
type Broker[T any] struct {
	subs       map[chan Event[T]]*subscriber[T]
	mu         sync.RWMutex
	done       chan struct{}
	subCount   int
	bufferSize int
}

// subscriber is closed only after in-flight sends have returned, so senders
// can work outside the broker lock.
type subscriber[T any] struct {
	ch      chan Event[T]
	quit    chan struct{}
	senders sync.WaitGroup
}

// NewBroker creates a Broker with the default subscriber buffer.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithOptions[T](bufferSize)
}

// NewBrokerWithOptions creates a Broker with a custom subscriber buffer size.
func NewBrokerWithOptions[T any](channelBufferSize int) *Broker[T] {
	if channelBufferSize < 1 {
		channelBufferSize = 1
	}
	return &Broker[T]{
		subs:       make(map[chan Event[T]]*subscriber[T]),
		done:       make(chan struct{}),
		bufferSize: channelBufferSize,
	}
}

// Shutdown stops the broker and closes every subscriber channel.
func (b *Broker[T]) Shutdown() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	b.mu.Lock()
	removed := make([]*subscriber[T], 0, len(b.subs))
	for ch, sub := range b.subs {
		delete(b.subs, ch)
		close(sub.quit)
		removed = append(removed, sub)
	}
	b.subCount = 0
	b.mu.Unlock()

	for _, sub := range removed {
		sub.senders.Wait()
		close(sub.ch)
	}
}

// Subscribe registers a subscriber. The channel is closed when ctx is done
// or the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := &subscriber[T]{
		ch:   make(chan Event[T], b.bufferSize),
		quit: make(chan struct{}),
	}
	b.subs[sub.ch] = sub
	b.subCount++

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}

		b.mu.Lock()
		if _, ok := b.subs[sub.ch]; !ok {
			b.mu.Unlock()
			return
		}
		delete(b.subs, sub.ch)
		close(sub.quit)
		b.subCount--
		b.mu.Unlock()

		sub.senders.Wait()
		close(sub.ch)
	}()

	return sub.ch
}

// GetSubscriberCount returns the number of active subscribers.
func (b *Broker[T]) GetSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subCount
}

// acquire copies the current subscribers and marks a send in flight on each.
// Callers must call senders.Done on every returned subscriber.
func (b *Broker[T]) acquire() ([]*subscriber[T], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return nil, false
	default:
	}

	subs := make([]*subscriber[T], 0, len(b.subs))
	for _, sub := range b.subs {
		sub.senders.Add(1)
		subs = append(subs, sub)
	}
	return subs, true
}

// Publish sends an event to every subscriber without blocking. A subscriber
// whose buffer is full misses the event, so only use it for events where a
// later one supersedes an earlier one (progress).
func (b *Broker[T]) Publish(t EventType, payload T) {
	subs, ok := b.acquire()
	if !ok {
		return
	}

	event := Event[T]{Type: t, Payload: payload}
	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
		}
		sub.senders.Done()
	}
}

// Deliver sends an event to every subscriber, waiting for buffer space.
// A subscriber that goes away meanwhile is skipped. It gives up when ctx is
// done or the broker shuts down.
func (b *Broker[T]) Deliver(ctx context.Context, t EventType, payload T) error {
	subs, ok := b.acquire()
	if !ok {
		return ErrClosed
	}

	var err error
	event := Event[T]{Type: t, Payload: payload}
	for _, sub := range subs {
		if err == nil {
			select {
			case sub.ch <- event:
			case <-sub.quit:
			case <-ctx.Done():
				err = ctx.Err()
			case <-b.done:
				err = ErrClosed
			}
		}
		sub.senders.Done()
	}
	return err
}
