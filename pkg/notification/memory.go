package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Message is a recorded notification
type Message struct {
	ID       string
	To       string
	Template Template
	Data     map[string]string
}

// MemorySender records notifications in memory for tests and local runs
type MemorySender struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

// NewMemorySender creates an in-memory sender
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// FailWith makes every subsequent Send return err. Pass nil to clear.
func (s *MemorySender) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Send records the message
func (s *MemorySender) Send(_ context.Context, to string, template Template, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.messages = append(s.messages, Message{
		ID:       uuid.NewString(),
		To:       to,
		Template: template,
		Data:     data,
	})
	return nil
}

// Messages returns a snapshot of recorded messages
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
