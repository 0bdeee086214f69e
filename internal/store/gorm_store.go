package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ridepool/chat-service/internal/domain"
)

// GormMessageStore persists messages through GORM. Message ids are
// auto-increment and therefore monotonic per store, which makes them usable
// as both pagination cursors and client-side deduplication keys.
type GormMessageStore struct {
	db *gorm.DB
}

func NewGormMessageStore(db *gorm.DB) *GormMessageStore {
	return &GormMessageStore{db: db}
}

func (s *GormMessageStore) CreateMessage(ctx context.Context, groupID, authorID uint64, content string) (*domain.Message, error) {
	if content == "" {
		return nil, domain.ErrEmptyContent
	}
	if authorID == 0 {
		return nil, domain.ErrMissingAuthor
	}
	if groupID == 0 {
		return nil, domain.ErrMissingGroup
	}

	msg := &domain.Message{
		Content:  content,
		AuthorID: authorID,
		GroupID:  groupID,
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	// Re-read with the author display fields the caller relays to peers.
	var created domain.Message
	if err := s.db.WithContext(ctx).Preload("Author").First(&created, msg.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load created message: %w", err)
	}

	return &created, nil
}

func (s *GormMessageStore) ListMessages(
	ctx context.Context,
	groupID uint64,
	cursor uint64,
	limit int,
	direction Direction,
) ([]domain.Message, uint64, bool, error) {
	// Query limit + 1 to determine if there are more results
	queryLimit := limit + 1

	q := s.db.WithContext(ctx).
		Preload("Author").
		Where("group_id = ?", groupID).
		Limit(queryLimit)

	if direction == DirectionBackward {
		q = q.Order("id DESC")
		if cursor > 0 {
			q = q.Where("id < ?", cursor)
		}
	} else {
		q = q.Order("id ASC")
		if cursor > 0 {
			q = q.Where("id > ?", cursor)
		}
	}

	var messages []domain.Message
	if err := q.Find(&messages).Error; err != nil {
		return nil, 0, false, fmt.Errorf("failed to list messages: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	var nextCursor uint64
	if len(messages) > 0 {
		nextCursor = messages[len(messages)-1].ID
	}

	return messages, nextCursor, hasMore, nil
}

func (s *GormMessageStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
