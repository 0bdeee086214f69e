package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ridepool/chat-service/internal/domain"
)

const joinTimeout = 10 * time.Second

// WSTransport is the gorilla/websocket implementation of Transport.
type WSTransport struct {
	conn     *websocket.Conn
	incoming chan domain.Message
	joined   chan uint64
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the broker's websocket endpoint. The access token rides
// the query string because browsers cannot set headers on upgrade requests.
func Dial(ctx context.Context, endpoint, token string) (*WSTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	t := &WSTransport{
		conn:     conn,
		incoming: make(chan domain.Message, 64),
		joined:   make(chan uint64, 1),
		done:     make(chan struct{}),
	}

	go t.readLoop()

	return t, nil
}

func (t *WSTransport) JoinGroup(ctx context.Context, groupID uint64) error {
	if err := t.writeJSON(&domain.JoinGroupEvent{
		Event:   domain.EventJoinGroup,
		GroupID: groupID,
	}); err != nil {
		return err
	}

	// Wait for the ack so membership is in effect before the caller starts
	// its history load.
	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return ErrSessionClosed
		case <-timer.C:
			return fmt.Errorf("timed out joining group %d", groupID)
		case joinedID := <-t.joined:
			if joinedID == groupID {
				return nil
			}
		}
	}
}

func (t *WSTransport) PublishMessage(ctx context.Context, msg *domain.Message) error {
	payload := domain.PayloadFromMessage(msg)
	return t.writeJSON(&domain.SendMessageEvent{
		Event: domain.EventSendMessage,
		Data:  payload,
	})
}

func (t *WSTransport) Incoming() <-chan domain.Message {
	return t.incoming
}

func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = t.conn.Close()
	})
	return err
}

func (t *WSTransport) writeJSON(event interface{}) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(event)
}

func (t *WSTransport) readLoop() {
	defer close(t.incoming)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}

		var base domain.BaseEvent
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}

		switch base.Event {
		case domain.EventReceiveMessage:
			var evt domain.ReceiveMessageEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				continue
			}
			select {
			case t.incoming <- evt.Payload:
			case <-t.done:
				return
			}

		case domain.EventGroupJoined:
			var evt domain.GroupJoinedEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				continue
			}
			select {
			case t.joined <- evt.GroupID:
			default:
			}
		}
	}
}
