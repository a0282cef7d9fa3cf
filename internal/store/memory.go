package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"talkwise.app/circles/internal/notify"
)

// MemoryStore keeps messages in process memory; they are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message // insertion order, oldest first
	broker   *notify.Broker
	clock    *clock
}

func NewMemoryStore(broker *notify.Broker) *MemoryStore {
	return &MemoryStore{broker: broker, clock: newClock(nil)}
}

func (s *MemoryStore) InsertMessage(ctx context.Context, author, body string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	msg := Message{
		ID:        uuid.NewString(),
		Author:    author,
		Body:      body,
		CreatedAt: s.clock.next(),
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	if s.broker != nil {
		s.broker.Publish(notify.Event{Table: MessagesTable, At: msg.CreatedAt})
	}
	return &msg, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.messages))
	for i := len(s.messages) - 1; i >= 0; i-- {
		out = append(out, s.messages[i])
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), nil
}
