package domain

import "time"

// Wire event names, client -> server.
const (
	EventJoinGroup   = "joinGroup"
	EventSendMessage = "sendMessage"
)

// Wire event names, server -> client.
const (
	EventReceiveMessage = "receiveMessage"
	EventGroupJoined    = "groupJoined"
	EventError          = "error"
)

// Error codes carried on error events.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseEvent is the envelope shared by all wire messages; Event selects the
// concrete payload shape.
type BaseEvent struct {
	Event string `json:"event"`
}

// JoinGroupEvent subscribes the channel to a group's relay.
type JoinGroupEvent struct {
	Event   string `json:"event"`
	GroupID uint64 `json:"groupId"`
}

// SendMessageEvent publishes an already-persisted message into the group.
// The data block mirrors the persisted row: the client performs the durable
// write first and forwards the store's response, ids and timestamps included.
type SendMessageEvent struct {
	Event string         `json:"event"`
	Data  MessagePayload `json:"data"`
}

// MessagePayload is the in-flight projection of a persisted message.
type MessagePayload struct {
	ID        uint64    `json:"id"`
	Content   string    `json:"content"`
	UserID    uint64    `json:"userId"`
	GroupID   uint64    `json:"groupId"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	Author    *User     `json:"author,omitempty"`
}

// Message converts the wire payload back into the persisted-row shape
// relayed to peers.
func (p *MessagePayload) Message() Message {
	return Message{
		ID:        p.ID,
		Content:   p.Content,
		AuthorID:  p.UserID,
		GroupID:   p.GroupID,
		CreatedAt: p.CreatedAt,
		Author:    p.Author,
	}
}

// PayloadFromMessage builds the wire payload for a persisted row.
func PayloadFromMessage(m *Message) MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		Content:   m.Content,
		UserID:    m.AuthorID,
		GroupID:   m.GroupID,
		CreatedAt: m.CreatedAt,
		Author:    m.Author,
	}
}

// GroupJoinedEvent acknowledges a join.
type GroupJoinedEvent struct {
	Event   string `json:"event"`
	GroupID uint64 `json:"groupId"`
}

// ReceiveMessageEvent fans a persisted message out to group peers.
type ReceiveMessageEvent struct {
	Event   string  `json:"event"`
	Payload Message `json:"payload"`
}

// ErrorEvent reports a rejected wire message back to its sender only.
type ErrorEvent struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorEvent builds an error event.
func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{
		Event:   EventError,
		Code:    code,
		Message: message,
	}
}
