package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ridepool/chat-service/internal/config"
	"github.com/ridepool/chat-service/pkg/log"
)

// RedisRelay bridges broker instances over redis pub/sub. Each publish is
// tagged with the origin instance id so the publishing instance skips its
// own envelopes when they come back around.
type RedisRelay struct {
	client     *redis.Client
	prefix     string
	instanceID string
	pubsub     *redis.PubSub
}

type envelope struct {
	Origin  string          `json:"origin"`
	GroupID uint64          `json:"group_id"`
	Data    json.RawMessage `json:"data"`
}

func NewRedisRelay(cfg config.RedisConfig) (*RedisRelay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRelay{
		client:     client,
		prefix:     cfg.RelayPrefix,
		instanceID: uuid.New().String(),
	}, nil
}

func (r *RedisRelay) channelFor(groupID uint64) string {
	return fmt.Sprintf("%s:group:%d", r.prefix, groupID)
}

func (r *RedisRelay) Publish(ctx context.Context, groupID uint64, data []byte) error {
	env := envelope{
		Origin:  r.instanceID,
		GroupID: groupID,
		Data:    data,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}

	return r.client.Publish(ctx, r.channelFor(groupID), payload).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, handler Handler) error {
	r.pubsub = r.client.PSubscribe(ctx, fmt.Sprintf("%s:group:*", r.prefix))

	go r.processMessages(ctx, handler)

	l := log.L()
	l.Info().Str("instance_id", r.instanceID).Msg("relay subscription started")
	return nil
}

func (r *RedisRelay) processMessages(ctx context.Context, handler Handler) {
	ch := r.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				l := log.L()
				l.Warn().Err(err).Msg("malformed relay envelope dropped")
				continue
			}
			if env.Origin == r.instanceID {
				continue
			}

			handler(env.GroupID, env.Data)
		}
	}
}

func (r *RedisRelay) Close() error {
	if r.pubsub != nil {
		r.pubsub.Close()
	}
	return r.client.Close()
}
