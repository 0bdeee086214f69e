package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ridepool/chat-service/internal/domain"
	"github.com/ridepool/chat-service/internal/store"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryPage is one cached page of group history.
type HistoryPage struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor uint64           `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

// HistoryCache caches pages of message history keyed by query shape.
type HistoryCache interface {
	Get(ctx context.Context, key string) (*HistoryPage, error)
	Set(ctx context.Context, key string, page *HistoryPage, ttl time.Duration) error
	BuildKey(groupID, cursor uint64, direction store.Direction, limit int) string
	Close() error
}
