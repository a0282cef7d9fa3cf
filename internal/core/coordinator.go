package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"talkwise.app/circles/internal/metrics"
	"talkwise.app/circles/internal/notify"
	"talkwise.app/circles/internal/store"
)

const (
	defaultGenerationTimeout = 30 * time.Second
	defaultReloadTimeout     = 10 * time.Second
)

// Generator is the external text-generation service. history holds recent
// messages oldest first and already includes the prompt's message.
type Generator interface {
	GenerateReply(ctx context.Context, prompt string, history []store.Message) (string, error)
}

type UpdateKind int

const (
	UpdateFeed UpdateKind = iota
	UpdateState
)

// Update is handed to the OnUpdate hook after the snapshot is replaced or the
// generating flag changes.
type Update struct {
	Kind       UpdateKind
	Messages   []store.Message
	Generating bool
}

type Option func(*Coordinator)

func WithContextSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.contextSize = n
		}
	}
}

func WithGenerationTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.generationTimeout = d
		}
	}
}

// Coordinator owns one client's view of the feed and lets at most one
// generation request per client be in flight.
type Coordinator struct {
	store     store.MessageStore
	broker    *notify.Broker
	generator Generator
	logger    *zap.Logger

	contextSize       int
	generationTimeout time.Duration

	// hookMu is taken before mu and held while the hook runs, so updates
	// reach the hook in the order they were applied.
	hookMu sync.Mutex

	mu         sync.Mutex
	messages   []store.Message
	generating bool
	onUpdate   func(Update)
	loadSeq    uint64 // last load started
	appliedSeq uint64 // load whose result is in messages

	sub       *notify.Subscription
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func NewCoordinator(s store.MessageStore, broker *notify.Broker, gen Generator, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		store:             s,
		broker:            broker,
		generator:         gen,
		logger:            logger,
		contextSize:       DefaultContextSize,
		generationTimeout: defaultGenerationTimeout,
		messages:          []store.Message{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUpdate registers the hook; set it before Start. The hook runs on the
// goroutine that caused the change, one call at a time, and must only use
// Messages and IsGenerating on the coordinator.
func (c *Coordinator) OnUpdate(fn func(Update)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// Start subscribes to insert notifications and reloads the feed on each one.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		if c.broker == nil {
			return
		}
		c.sub = c.broker.Subscribe()
		c.done = make(chan struct{})
		metrics.ActiveSessions.Inc()
		go c.listen(c.sub, c.done)
	})
}

func (c *Coordinator) listen(sub *notify.Subscription, done chan struct{}) {
	defer close(done)
	for range sub.C() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultReloadTimeout)
		if _, err := c.loadFeed(ctx, "notify"); err != nil {
			c.logger.Warn("reload after notification failed", zap.Error(err))
		}
		cancel()
	}
}

// Close releases the subscription and waits for the listener to exit.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		// Blocks a later Start from subscribing.
		c.startOnce.Do(func() {})
		if c.sub == nil {
			return
		}
		c.sub.Close()
		<-c.done
		metrics.ActiveSessions.Dec()
	})
}

// Messages returns a copy of the last fetched snapshot, newest first.
func (c *Coordinator) Messages() []store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.messages)
}

func (c *Coordinator) IsGenerating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// LoadFeed fetches every message newest first and replaces the snapshot. On
// failure the previous snapshot is kept.
func (c *Coordinator) LoadFeed(ctx context.Context) ([]store.Message, error) {
	return c.loadFeed(ctx, "client")
}

func (c *Coordinator) loadFeed(ctx context.Context, trigger string) ([]store.Message, error) {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	msgs, err := c.store.ListMessages(ctx)
	if err != nil {
		metrics.FeedReloads.WithLabelValues(trigger, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	metrics.FeedReloads.WithLabelValues(trigger, "ok").Inc()

	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	c.mu.Lock()
	// A slower, older load must not overwrite a newer snapshot.
	if seq < c.appliedSeq {
		c.mu.Unlock()
		return cloneMessages(msgs), nil
	}
	c.appliedSeq = seq
	c.messages = cloneMessages(msgs)
	update := Update{Kind: UpdateFeed, Messages: cloneMessages(msgs), Generating: c.generating}
	hook := c.onUpdate
	c.mu.Unlock()

	if hook != nil {
		hook(update)
	}
	return msgs, nil
}

// SubmitMessage validates and stores a message, then reloads the feed. The
// store's notification may trigger a second, equivalent reload.
func (c *Coordinator) SubmitMessage(ctx context.Context, author, body string) (*store.Message, error) {
	author = strings.TrimSpace(author)
	body = strings.TrimSpace(body)
	if author == "" || body == "" {
		return nil, fmt.Errorf("%w: author and body are required", ErrValidation)
	}

	msg, err := c.store.InsertMessage(ctx, author, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	metrics.MessagesSubmitted.WithLabelValues(authorKind(msg.Author)).Inc()

	if _, err := c.loadFeed(ctx, "local"); err != nil {
		c.logger.Warn("reload after submit failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return msg, nil
}

// RequestGeneratedReply asks the generator to answer the newest message and
// stores the reply as the AI author. The generating flag is cleared on every
// return path.
func (c *Coordinator) RequestGeneratedReply(ctx context.Context) (*store.Message, error) {
	snapshot, err := c.beginGenerating()
	if err != nil {
		return nil, err
	}
	defer c.setGenerating(false)

	prompt := snapshot[0].Body
	history := BuildContext(snapshot, c.contextSize)

	text, err := c.generate(ctx, prompt, history)
	if err != nil {
		metrics.Generations.WithLabelValues("failed").Inc()
		c.logger.Warn("generation failed", zap.String("prompt_id", snapshot[0].ID), zap.Error(err))
		return nil, err
	}

	msg, err := c.SubmitMessage(ctx, store.AIAuthor, text)
	if err != nil {
		metrics.Generations.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: storing reply: %w", ErrGenerationFailed, err)
	}
	metrics.Generations.WithLabelValues("ok").Inc()
	c.logger.Info("generated reply stored", zap.String("message_id", msg.ID), zap.String("prompt_id", snapshot[0].ID))
	return msg, nil
}

func (c *Coordinator) generate(ctx context.Context, prompt string, history []store.Message) (string, error) {
	if c.generator == nil {
		return "", fmt.Errorf("%w: no generation service configured", ErrGenerationFailed)
	}

	genCtx, cancel := context.WithTimeout(ctx, c.generationTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.generator.GenerateReply(genCtx, prompt, history)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	return text, nil
}

func (c *Coordinator) beginGenerating() ([]store.Message, error) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	c.mu.Lock()
	if len(c.messages) == 0 {
		c.mu.Unlock()
		return nil, ErrEmptyFeed
	}
	if c.generating {
		c.mu.Unlock()
		return nil, ErrAlreadyGenerating
	}
	c.generating = true
	snapshot := cloneMessages(c.messages)
	hook := c.onUpdate
	c.mu.Unlock()

	if hook != nil {
		hook(Update{Kind: UpdateState, Generating: true})
	}
	return snapshot, nil
}

func (c *Coordinator) setGenerating(generating bool) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	c.mu.Lock()
	c.generating = generating
	hook := c.onUpdate
	c.mu.Unlock()

	if hook != nil {
		hook(Update{Kind: UpdateState, Generating: generating})
	}
}

func authorKind(author string) string {
	if author == store.AIAuthor {
		return "ai"
	}
	return "human"
}

func cloneMessages(msgs []store.Message) []store.Message {
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	return out
}
