package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPublish_FansOutToAllSubscribers(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe()
	c := b.Subscribe()
	defer a.Close()
	defer c.Close()

	b.Publish(Event{Table: "messages"})

	assert.Equal(t, "messages", receive(t, a).Table)
	ev := receive(t, c)
	assert.Equal(t, "messages", ev.Table)
	assert.False(t, ev.At.IsZero())
}

func TestPublish_CoalescesPendingEvents(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < 10; i++ {
		b.Publish(Event{Table: "messages"})
	}

	receive(t, sub)
	select {
	case <-sub.C():
		t.Fatal("expected bursts to coalesce into a single pending event")
	default:
	}
}

func TestSubscription_CloseReleasesListener(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.Subscribers())

	_, ok := <-sub.C()
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish(Event{Table: "messages"})
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Close()
	b.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())

	late := b.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
	late.Close()
}
