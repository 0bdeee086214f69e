// Package client implements the chat session: a single ordered, deduplicated
// view of one group's conversation, backed by durable history plus the
// broker's live relay.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ridepool/chat-service/internal/domain"
)

var (
	ErrEmptyContent  = errors.New("cannot send an empty message")
	ErrSessionClosed = errors.New("session is closed")
)

// Transport is the live channel to the broker.
type Transport interface {
	// JoinGroup subscribes the channel to a group's relay. Membership takes
	// effect before JoinGroup returns.
	JoinGroup(ctx context.Context, groupID uint64) error

	// PublishMessage relays an already-persisted message to group peers.
	PublishMessage(ctx context.Context, msg *domain.Message) error

	// Incoming delivers relayed messages. The channel closes when the
	// transport disconnects.
	Incoming() <-chan domain.Message

	Close() error
}

// MessageStore is the durable-store collaborator.
type MessageStore interface {
	CreateMessage(ctx context.Context, groupID uint64, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, groupID uint64) ([]domain.Message, error)
}

// Session joins exactly one group for its lifetime. Messages render in
// history order followed by live arrival order; the server-assigned id is
// the deduplication key, so an envelope that races the history load still
// renders once.
type Session struct {
	transport Transport
	store     MessageStore
	groupID   uint64
	userID    uint64

	mu       sync.Mutex
	messages []domain.Message
	seen     map[uint64]struct{}
	closed   bool

	onMessage func(domain.Message)
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithOnMessage registers a callback invoked for every message appended to
// the view, live or optimistic. Not invoked for history loaded by Open.
func WithOnMessage(fn func(domain.Message)) Option {
	return func(s *Session) { s.onMessage = fn }
}

func NewSession(transport Transport, store MessageStore, groupID, userID uint64, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		store:     store,
		groupID:   groupID,
		userID:    userID,
		seen:      make(map[uint64]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open joins the group, then loads history. Join happens first so no relay
// published after the join is missed while history loads; any envelope that
// arrives mid-load is reconciled against the history by id.
func (s *Session) Open(ctx context.Context) error {
	if err := s.transport.JoinGroup(ctx, s.groupID); err != nil {
		return fmt.Errorf("failed to join group: %w", err)
	}

	go s.consumeIncoming()

	history, err := s.store.ListMessages(ctx, s.groupID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	s.mergeHistory(history)
	return nil
}

// Send persists the message, publishes the store's response to peers, and
// appends that same response locally. On a failed write nothing is relayed
// and nothing is appended: the message exists nowhere.
func (s *Session) Send(ctx context.Context, content string) (*domain.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	msg, err := s.store.CreateMessage(ctx, s.groupID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	// The broker never echoes a publish back to its sender, so the local
	// append below is the only time this message enters the view.
	if err := s.transport.PublishMessage(ctx, msg); err != nil {
		// Peers miss the live relay until they reload history; the durable
		// write already succeeded, so the sender's view stays consistent.
		s.append(*msg)
		return msg, nil
	}

	s.append(*msg)
	return msg, nil
}

// Messages returns a snapshot of the current ordered view.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Close tears the session down. After Close returns no further messages are
// appended or delivered to the OnMessage callback. Safe to call more than
// once and required on every exit path.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		err = s.transport.Close()
	})
	return err
}

func (s *Session) consumeIncoming() {
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.transport.Incoming():
			if !ok {
				return
			}
			// Drop malformed envelopes rather than poison the view.
			if err := msg.Validate(); err != nil {
				continue
			}
			s.append(msg)
		}
	}
}

func (s *Session) append(msg domain.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	cb := s.onMessage
	s.mu.Unlock()

	if cb != nil {
		cb(msg)
	}
}

// mergeHistory prepends the durable history to whatever live messages
// arrived while it loaded, dropping live entries the history already
// contains.
func (s *Session) mergeHistory(history []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	merged := make([]domain.Message, 0, len(history)+len(s.messages))
	seen := make(map[uint64]struct{}, len(history)+len(s.messages))

	for _, msg := range history {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		merged = append(merged, msg)
	}
	for _, msg := range s.messages {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		merged = append(merged, msg)
	}

	s.messages = merged
	s.seen = seen
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
