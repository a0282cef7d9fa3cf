package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"talkwise.app/circles/internal/core"
	"talkwise.app/circles/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 16 << 10

	// Generation outlives a disconnect; its result is then discarded.
	detachedTimeout = 2 * time.Minute
)

// Client -> server commands.
type ClientCommand struct {
	Type   string `json:"type"` // submit | generate | reload
	Author string `json:"author,omitempty"`
	Body   string `json:"body,omitempty"`
}

// Server -> client frames.
type FeedFrame struct {
	Type     string          `json:"type"` // "feed"
	Messages []store.Message `json:"messages"`
}

type StateFrame struct {
	Type       string `json:"type"` // "state"
	Generating bool   `json:"generating"`
}

type CreatedFrame struct {
	Type    string         `json:"type"` // "created"
	Message *store.Message `json:"message"`
}

type ErrorFrame struct {
	Type      string `json:"type"` // "error"
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func checkOrigin(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || (allowed != "" && strings.EqualFold(origin, allowed)) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

type feedSession struct {
	conn   *websocket.Conn
	coord  *core.Coordinator
	logger *zap.Logger

	writeMu sync.Mutex
	closed  bool
}

// FeedSocketHandler serves one client's live feed. The connection owns a
// coordinator and its notification subscription until it disconnects.
func (h *APIHandler) FeedSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &feedSession{
		conn:   conn,
		coord:  h.newCoordinator(),
		logger: h.logger.With(zap.String("remote", r.RemoteAddr)),
	}
	s.coord.OnUpdate(s.push)
	s.coord.Start()
	s.logger.Debug("feed session opened")

	defer func() {
		s.coord.Close()
		s.markClosed()
		conn.Close()
		s.logger.Debug("feed session closed")
	}()

	if _, err := s.coord.LoadFeed(r.Context()); err != nil {
		s.sendError(err)
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pingLoop(stopPing)

	s.readLoop()
}

func (s *feedSession) readLoop() {
	s.conn.SetReadLimit(maxCommandSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd ClientCommand
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("feed session read failed", zap.Error(err))
			}
			return
		}
		s.handle(cmd)
	}
}

func (s *feedSession) handle(cmd ClientCommand) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	switch cmd.Type {
	case "submit":
		msg, err := s.coord.SubmitMessage(ctx, cmd.Author, cmd.Body)
		if err != nil {
			s.sendError(err)
			return
		}
		s.send(CreatedFrame{Type: "created", Message: msg})
	case "reload":
		if _, err := s.coord.LoadFeed(ctx); err != nil {
			s.sendError(err)
		}
	case "generate":
		// Runs beside the read loop so a second request sees the in-flight one.
		go func() {
			genCtx, cancel := context.WithTimeout(context.Background(), detachedTimeout)
			defer cancel()
			msg, err := s.coord.RequestGeneratedReply(genCtx)
			if err != nil {
				s.sendError(err)
				return
			}
			s.send(CreatedFrame{Type: "created", Message: msg})
		}()
	default:
		s.send(ErrorFrame{Type: "error", Kind: "validation", Message: "unknown command type: " + cmd.Type})
	}
}

func (s *feedSession) push(u core.Update) {
	switch u.Kind {
	case core.UpdateFeed:
		s.send(FeedFrame{Type: "feed", Messages: u.Messages})
	case core.UpdateState:
		s.send(StateFrame{Type: "state", Generating: u.Generating})
	}
}

func (s *feedSession) sendError(err error) {
	s.send(ErrorFrame{
		Type:      "error",
		Kind:      core.Kind(err),
		Message:   err.Error(),
		Retryable: core.Retryable(err),
	})
}

func (s *feedSession) send(frame interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(frame); err != nil {
		s.logger.Debug("feed session write failed", zap.Error(err))
	}
}

func (s *feedSession) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			if s.closed {
				s.writeMu.Unlock()
				return
			}
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *feedSession) markClosed() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.closed = true
}
