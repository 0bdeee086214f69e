// Package history serves read paths over the durable message store with a
// redis page cache in front. Only complete pages are ever cached: the live
// tail of a group grows with every send and always reads through, so a
// freshly sent message shows up on the next reload.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ridepool/chat-service/internal/cache"
	"github.com/ridepool/chat-service/internal/store"
	"github.com/ridepool/chat-service/pkg/log"
)

type Service interface {
	GetHistory(ctx context.Context, groupID, cursor uint64, limit int, direction store.Direction) (*cache.HistoryPage, error)
}

type service struct {
	store    store.MessageStore
	cache    cache.HistoryCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewService(msgStore store.MessageStore, msgCache cache.HistoryCache, cacheTTL time.Duration) Service {
	return &service{
		store:    msgStore,
		cache:    msgCache,
		cacheTTL: cacheTTL,
	}
}

func (s *service) GetHistory(
	ctx context.Context,
	groupID, cursor uint64,
	limit int,
	direction store.Direction,
) (*cache.HistoryPage, error) {
	// Always fetch the latest page directly to avoid caching a stale tail.
	if cursor == 0 && direction == store.DirectionBackward {
		messages, nextCursor, hasMore, err := s.store.ListMessages(ctx, groupID, cursor, limit, direction)
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		return &cache.HistoryPage{
			Messages:   messages,
			NextCursor: nextCursor,
			HasMore:    hasMore,
		}, nil
	}

	cacheKey := s.cache.BuildKey(groupID, cursor, direction, limit)

	// Collapse concurrent identical reads onto one store round trip.
	result, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		return s.fetchWithCache(ctx, groupID, cursor, limit, direction, cacheKey)
	})
	if err != nil {
		return nil, err
	}

	page, ok := result.(*cache.HistoryPage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return page, nil
}

func (s *service) fetchWithCache(
	ctx context.Context,
	groupID, cursor uint64,
	limit int,
	direction store.Direction,
	cacheKey string,
) (*cache.HistoryPage, error) {
	cached, err := s.cache.Get(ctx, cacheKey)
	if err == nil {
		return cached, nil
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	messages, nextCursor, hasMore, err := s.store.ListMessages(ctx, groupID, cursor, limit, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &cache.HistoryPage{
		Messages:   messages,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}

	// Store in cache without blocking the response. A forward page that
	// reached the live tail grows as messages arrive; caching it would hide
	// them from the next history reload until the TTL expired, so only
	// complete pages go in.
	if direction == store.DirectionBackward || hasMore {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.cache.Set(cacheCtx, cacheKey, page, s.cacheTTL); err != nil {
				l := log.L()
				l.Warn().Err(err).Msg("cache set error")
			}
		}()
	}

	return page, nil
}
