package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"talkwise.app/circles/internal/notify"
)

type SQLiteStore struct {
	db     *sql.DB
	broker *notify.Broker
	clock  *clock
}

// NewSQLiteStore opens the database and creates the schema. Every successful
// insert is announced on broker, which may be nil.
func NewSQLiteStore(dataSourceName string, broker *notify.Broker) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, broker: broker, clock: newClock(nil)}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        author TEXT NOT NULL,
        body TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, author, body string) (*Message, error) {
	msg := &Message{
		ID:        uuid.NewString(),
		Author:    author,
		Body:      body,
		CreatedAt: s.clock.next(),
	}

	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO messages (id, author, body, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.ExecContext(ctx, msg.ID, msg.Author, msg.Body, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to execute message insert: %w", err)
	}

	if s.broker != nil {
		s.broker.Publish(notify.Event{Table: MessagesTable, At: msg.CreatedAt})
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, author, body, created_at FROM messages ORDER BY created_at DESC, seq DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Author, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// withClock swaps the timestamp source; tests use it to pin created_at.
func (s *SQLiteStore) withClock(now func() time.Time) {
	s.clock = newClock(now)
}
