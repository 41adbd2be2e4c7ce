// Package chat bridges user input and the duplex channel to a
// rendered message log.
package chat

import (
	"strings"
	"sync"

	"edgeblog/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Channel is the slice of the connection manager the session needs.
type Channel interface {
	Send(payload string)
	OnMessage(handler func(payload string))
}

// View is the DOM contract of the chat panel: append a message node
// and keep the box scrolled to the bottom (the view's concern), and
// clear the input field.
type View interface {
	AppendMessage(msg models.ChatMessage)
	ClearInput()
}

// Session owns the ordered, append-only message log. The server is
// the sole source of rendered entries: submitting does not echo
// locally, the sender sees its own message only when the channel
// delivers it back.
type Session struct {
	ch   Channel
	view View
	log  *zap.Logger

	mu   sync.Mutex
	msgs []models.ChatMessage
}

func NewSession(ch Channel, view View, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{ch: ch, view: view, log: logger}
	ch.OnMessage(s.receive)
	return s
}

// Submit sends the typed text verbatim. Input that is empty after
// trimming is rejected before any network call. The input field is
// cleared synchronously regardless of the send outcome; chat is
// fire-and-forget and no failure is surfaced.
func (s *Session) Submit(rawInput string) {
	if strings.TrimSpace(rawInput) == "" {
		return
	}
	s.ch.Send(rawInput)
	s.view.ClearInput()
}

// receive runs on the channel's read pump, so messages append and
// render in exactly the order delivered.
func (s *Session) receive(payload string) {
	msg := models.ChatMessage{
		ID:     uuid.NewString(),
		Text:   payload,
		Origin: models.OriginRemote,
	}

	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	total := len(s.msgs)
	s.mu.Unlock()

	s.view.AppendMessage(msg)
	s.log.Debug("chat frame rendered", zap.Int("log_size", total))
}

// Log returns a snapshot of the message log in display order.
func (s *Session) Log() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.msgs))
	copy(out, s.msgs)
	return out
}
