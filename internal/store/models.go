package store

import (
	"context"
	"sync"
	"time"
)

// AIAuthor is the fixed author of generated replies.
const AIAuthor = "AI Assistant"

// MessagesTable names the table in change notifications.
const MessagesTable = "messages"

type Message struct {
	ID        string    `json:"id"` // UUID, assigned on insert
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStore is the append-only message table. ListMessages returns every
// message, newest first.
type MessageStore interface {
	InsertMessage(ctx context.Context, author, body string) (*Message, error)
	ListMessages(ctx context.Context) ([]Message, error)
}

// clock hands out strictly increasing UTC timestamps so created_at is a total order.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now}
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
