package store

import (
	"context"

	"github.com/ridepool/chat-service/internal/domain"
)

type Direction string

const (
	DirectionBackward Direction = "backward" // DESC - from newest to oldest
	DirectionForward  Direction = "forward"  // ASC - from oldest to newest
)

func ParseDirection(s string) Direction {
	if s == "forward" {
		return DirectionForward
	}
	return DirectionBackward
}

// MessageStore is the durable append-only message store. Ids and timestamps
// are store-assigned; rows are never updated or deleted here.
type MessageStore interface {
	CreateMessage(ctx context.Context, groupID, authorID uint64, content string) (*domain.Message, error)

	// ListMessages returns a page of messages for the group ordered by id,
	// joined with minimal author display fields. A zero cursor starts from
	// the newest (backward) or oldest (forward) message.
	ListMessages(
		ctx context.Context,
		groupID uint64,
		cursor uint64,
		limit int,
		direction Direction,
	) (messages []domain.Message, nextCursor uint64, hasMore bool, err error)

	Close() error
}
