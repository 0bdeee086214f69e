package service

import (
	"context"

	"github.com/ridepool/chat-service/internal/domain"
	"github.com/ridepool/chat-service/internal/hub"
)

type ChatService interface {
	HandleJoinGroup(ctx context.Context, client *hub.Client, groupID uint64) error
	HandlePublish(ctx context.Context, client *hub.Client, payload domain.MessagePayload) error
	HandleDisconnect(ctx context.Context, client *hub.Client) error
	Start(ctx context.Context) error
	Stop() error
}
