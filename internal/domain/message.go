package domain

import (
	"errors"
	"time"
)

var (
	ErrEmptyContent  = errors.New("message content must not be empty")
	ErrMissingAuthor = errors.New("message author is required")
	ErrMissingGroup  = errors.New("message group is required")
	ErrUnpersisted   = errors.New("message has no server-assigned id")
)

// User is the minimal author projection joined onto messages for display.
// Full user records live in the account service; only display fields are
// denormalized here.
type User struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"size:128" json:"name"`
	AvatarURL string `gorm:"size:512" json:"avatarUrl,omitempty"`
}

// Message is a persisted chat message. Rows are immutable once created;
// there is no update or delete path in this service.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	AuthorID  uint64    `gorm:"index;not null" json:"authorId"`
	GroupID   uint64    `gorm:"index:idx_messages_group_id;not null" json:"groupId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Author *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

// Validate checks the invariants of a relayed message envelope. A message
// may only travel through the broker after its durable write completed, so
// a missing id is as much a protocol violation as missing content.
func (m *Message) Validate() error {
	if m.ID == 0 {
		return ErrUnpersisted
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	if m.AuthorID == 0 {
		return ErrMissingAuthor
	}
	if m.GroupID == 0 {
		return ErrMissingGroup
	}
	return nil
}
