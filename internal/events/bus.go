// Package events provides a lightweight in-process pub-sub stream of journal
// events for local indexers and UIs. The durable record lives in the store;
// the bus is a best-effort mirror.
package events

import "github.com/custodia/escrowd/internal/model"

// Bus is backed by a buffered channel. Publishing never blocks the engine.
type Bus struct {
	ch chan model.Event
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan model.Event, buffer)}
}

// Publish attempts to enqueue the event without blocking.
// Returns true if published, false if the buffer is full.
func (b *Bus) Publish(evt model.Event) bool {
	select {
	case b.ch <- evt:
		return true
	default:
		return false
	}
}

// Subscribe returns a read-only channel for consumers.
func (b *Bus) Subscribe() <-chan model.Event {
	return b.ch
}
