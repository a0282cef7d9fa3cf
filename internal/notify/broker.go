// Package notify fans out "table changed" events to in-process subscribers.
//
// Events carry no payload a subscriber is expected to diff against: receiving
// one only means the table should be reloaded. Each subscription buffers a
// single pending event, so a slow subscriber sees bursts coalesced into one
// event and the publisher never blocks.
package notify

import (
	"sync"
	"time"
)

type Event struct {
	Table string
	At    time.Time
}

type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

type Subscription struct {
	broker *Broker
	ch     chan Event
	once   sync.Once
}

// C delivers events until the subscription is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close releases the listener. Safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s)
}

func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{broker: b, ch: make(chan Event, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// An event is already pending for this subscriber.
		}
	}
}

func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription; later Subscribe calls get a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
}
