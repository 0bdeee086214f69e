package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ridepool/chat-service/internal/domain"
	"github.com/ridepool/chat-service/internal/hub"
	"github.com/ridepool/chat-service/internal/relay"
	"github.com/ridepool/chat-service/pkg/log"
)

type chatService struct {
	hub   *hub.Hub
	relay relay.Relay
}

func NewChatService(h *hub.Hub, r relay.Relay) ChatService {
	return &chatService{
		hub:   h,
		relay: r,
	}
}

func (s *chatService) HandleJoinGroup(ctx context.Context, c *hub.Client, groupID uint64) error {
	if groupID == 0 {
		return c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "groupId is required"))
	}

	// Membership takes effect before the ack, so no relay published after
	// the join is missed while the client loads history.
	if !s.hub.JoinGroup(c, groupID) {
		// The broker already dropped this channel; its connection is on the
		// way down and there is no one to ack.
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldChannelID, c.ID).Uint64(log.FieldGroupID, groupID).Msg("join refused for dropped channel")
		return nil
	}

	return c.SendEvent(&domain.GroupJoinedEvent{
		Event:   domain.EventGroupJoined,
		GroupID: groupID,
	})
}

// HandlePublish relays an already-persisted message to the other members of
// its group. Envelopes without a server-assigned id are rejected: a relay
// must never carry a message whose durable write did not complete, or peers
// would see messages that vanish on the next history reload.
func (s *chatService) HandlePublish(ctx context.Context, c *hub.Client, payload domain.MessagePayload) error {
	msg := payload.Message()

	if err := msg.Validate(); err != nil {
		l := log.Ctx(ctx)
		l.Warn().
			Str(log.FieldChannelID, c.ID).
			Err(err).
			Msg("rejected publish")
		return c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, err.Error()))
	}

	if msg.AuthorID != c.Session.GetUserID() {
		return c.SendEvent(domain.NewErrorEvent(domain.ErrCodeUnauthorized, "author does not match authenticated user"))
	}

	event := &domain.ReceiveMessageEvent{
		Event:   domain.EventReceiveMessage,
		Payload: msg,
	}

	// Local fan-out excludes the sender: the sender already rendered the
	// message from its durable-write response.
	if err := s.hub.PublishJSON(msg.GroupID, event, c.ID); err != nil {
		return c.SendEvent(domain.NewErrorEvent(domain.ErrCodeInternalError, "failed to relay message"))
	}

	// Cross-instance fan-out. A relay failure only affects peers on other
	// instances; it is logged and never propagated back into the local loop.
	if data, err := json.Marshal(event); err == nil {
		if err := s.relay.Publish(ctx, msg.GroupID, data); err != nil {
			l := log.Ctx(ctx)
			l.Error().Uint64(log.FieldGroupID, msg.GroupID).Err(err).Msg("cross-instance relay failed")
		}
	}

	return nil
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	// Membership cleanup happens in the hub's unregister path; nothing else
	// to tear down per connection.
	return nil
}

// Start subscribes to the cross-instance relay. Envelopes from other
// instances reach every local group member; the original sender is excluded
// on its own instance.
func (s *chatService) Start(ctx context.Context) error {
	if err := s.relay.Subscribe(ctx, func(groupID uint64, data []byte) {
		s.hub.Publish(groupID, data, "")
	}); err != nil {
		return fmt.Errorf("failed to subscribe to relay: %w", err)
	}
	return nil
}

func (s *chatService) Stop() error {
	return s.relay.Close()
}
