package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/chat-service/internal/domain"
)

type fakeTransport struct {
	mu        sync.Mutex
	joined    []uint64
	published []domain.Message
	incoming  chan domain.Message
	closed    bool

	joinErr    error
	publishErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{incoming: make(chan domain.Message, 16)}
}

func (f *fakeTransport) JoinGroup(ctx context.Context, groupID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = append(f.joined, groupID)
	return nil
}

func (f *fakeTransport) PublishMessage(ctx context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, *msg)
	return nil
}

func (f *fakeTransport) Incoming() <-chan domain.Message { return f.incoming }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeMessageStore struct {
	mu      sync.Mutex
	history []domain.Message
	nextID  uint64
	created []domain.Message

	createErr error
	listErr   error

	// listStarted/listRelease let a test inject live traffic mid-load.
	listStarted chan struct{}
	listRelease chan struct{}
}

func newFakeMessageStore(history ...domain.Message) *fakeMessageStore {
	nextID := uint64(100)
	for _, msg := range history {
		if msg.ID >= nextID {
			nextID = msg.ID + 1
		}
	}
	return &fakeMessageStore{history: history, nextID: nextID}
}

func (f *fakeMessageStore) CreateMessage(ctx context.Context, groupID uint64, content string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	msg := domain.Message{
		ID:        f.nextID,
		Content:   content,
		AuthorID:  1,
		GroupID:   groupID,
		CreatedAt: time.Now().UTC(),
	}
	f.nextID++
	f.created = append(f.created, msg)
	return &msg, nil
}

func (f *fakeMessageStore) ListMessages(ctx context.Context, groupID uint64) ([]domain.Message, error) {
	if f.listStarted != nil {
		close(f.listStarted)
		<-f.listRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Message, len(f.history))
	copy(out, f.history)
	return out, nil
}

func historyMessages() []domain.Message {
	return []domain.Message{
		{ID: 1, Content: "first", AuthorID: 2, GroupID: 42},
		{ID: 2, Content: "second", AuthorID: 1, GroupID: 42},
	}
}

func TestOpenJoinsThenLoadsHistory(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore(historyMessages()...)
	s := NewSession(transport, store, 42, 1)
	defer s.Close()

	require.NoError(t, s.Open(context.Background()))

	assert.Equal(t, []uint64{42}, transport.joined)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestOpenFailsWhenJoinFails(t *testing.T) {
	transport := newFakeTransport()
	transport.joinErr = errors.New("broker unavailable")
	store := newFakeMessageStore()
	s := NewSession(transport, store, 42, 1)
	defer s.Close()

	err := s.Open(context.Background())
	require.Error(t, err)
	assert.Empty(t, s.Messages())
}

func TestSendAppendsDurableRowOnce(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore()
	s := NewSession(transport, store, 42, 1)
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))

	msg, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotZero(t, msg.ID)

	// The persisted row, with its server-assigned id, is what peers got and
	// what the sender renders.
	require.Equal(t, 1, transport.publishedCount())
	assert.Equal(t, msg.ID, transport.published[0].ID)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestSendRejectsEmptyContent(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore()
	s := NewSession(transport, store, 42, 1)
	defer s.Close()

	_, err := s.Send(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, 0, transport.publishedCount())
}

func TestFailedWriteLeavesNoTrace(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore()
	store.createErr = errors.New("db down")
	s := NewSession(transport, store, 42, 1)
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))

	_, err := s.Send(context.Background(), "hello")
	require.Error(t, err)

	assert.Equal(t, 0, transport.publishedCount())
	assert.Empty(t, s.Messages())
}

func TestFailedPublishStillAppends(t *testing.T) {
	transport := newFakeTransport()
	transport.publishErr = errors.New("connection dropped")
	store := newFakeMessageStore()
	s := NewSession(transport, store, 42, 1)
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))

	msg, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
}

func TestIncomingMessagesAppendInArrivalOrder(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore()

	var delivered []uint64
	var mu sync.Mutex
	s := NewSession(transport, store, 42, 1, WithOnMessage(func(msg domain.Message) {
		mu.Lock()
		delivered = append(delivered, msg.ID)
		mu.Unlock()
	}))
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))

	transport.incoming <- domain.Message{ID: 10, Content: "a", AuthorID: 2, GroupID: 42}
	transport.incoming <- domain.Message{ID: 11, Content: "b", AuthorID: 3, GroupID: 42}

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 2
	}, time.Second, 10*time.Millisecond)

	msgs := s.Messages()
	assert.Equal(t, uint64(10), msgs[0].ID)
	assert.Equal(t, uint64(11), msgs[1].ID)

	mu.Lock()
	assert.Equal(t, []uint64{10, 11}, delivered)
	mu.Unlock()
}

func TestDuplicateIDRendersOnce(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore()
	s := NewSession(transport, store, 42, 1)
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))

	msg := domain.Message{ID: 10, Content: "a", AuthorID: 2, GroupID: 42}
	transport.incoming <- msg
	transport.incoming <- msg

	require.Eventually(t, func() bool {
		return len(s.Messages()) >= 1
	}, time.Second, 10*time.Millisecond)

	// The second copy is silently dropped.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, s.Messages(), 1)
}

func TestMalformedEnvelopeIsDropped(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore()
	s := NewSession(transport, store, 42, 1)
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))

	transport.incoming <- domain.Message{ID: 0, Content: "no id", AuthorID: 2, GroupID: 42}
	transport.incoming <- domain.Message{ID: 10, Content: "", AuthorID: 2, GroupID: 42}
	transport.incoming <- domain.Message{ID: 11, Content: "valid", AuthorID: 2, GroupID: 42}

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(11), s.Messages()[0].ID)
}

func TestLiveMessageRacingHistoryLoadRendersOnce(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore(historyMessages()...)
	store.listStarted = make(chan struct{})
	store.listRelease = make(chan struct{})

	s := NewSession(transport, store, 42, 1)
	defer s.Close()

	openDone := make(chan error, 1)
	go func() { openDone <- s.Open(context.Background()) }()

	<-store.listStarted

	// A relay for a message the history load is about to return, plus one
	// genuinely new message.
	transport.incoming <- domain.Message{ID: 2, Content: "second", AuthorID: 1, GroupID: 42}
	transport.incoming <- domain.Message{ID: 3, Content: "third", AuthorID: 2, GroupID: 42}

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 2
	}, time.Second, 10*time.Millisecond)

	close(store.listRelease)
	require.NoError(t, <-openDone)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, uint64(1), msgs[0].ID)
	assert.Equal(t, uint64(2), msgs[1].ID)
	assert.Equal(t, uint64(3), msgs[2].ID)
}

func TestCloseStopsDelivery(t *testing.T) {
	transport := newFakeTransport()
	store := newFakeMessageStore()

	var calls int
	var mu sync.Mutex
	s := NewSession(transport, store, 42, 1, WithOnMessage(func(domain.Message) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	require.NoError(t, s.Open(context.Background()))

	require.NoError(t, s.Close())
	assert.True(t, transport.closed)

	transport.incoming <- domain.Message{ID: 10, Content: "late", AuthorID: 2, GroupID: 42}
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, s.Messages())
	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()

	_, err := s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSessionClosed)

	// Close is idempotent.
	assert.NoError(t, s.Close())
}
