package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ridepool/chat-service/internal/config"
	"github.com/ridepool/chat-service/internal/domain"
	"github.com/ridepool/chat-service/internal/hub"
	"github.com/ridepool/chat-service/internal/service"
	"github.com/ridepool/chat-service/pkg/auth"
	"github.com/ridepool/chat-service/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	verifier *auth.Verifier
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, verifier *auth.Verifier, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		service:  svc,
		verifier: verifier,
		wsCfg:    wsCfg,
	}
}

// HandleWebSocket authenticates the request, upgrades the connection, and
// starts the channel's pumps. Identity is fixed at upgrade time; the wire
// protocol carries no auth event.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, claims.UserID, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseEvent
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Event {
	case domain.EventJoinGroup:
		var evt domain.JoinGroupEvent
		if err := json.Unmarshal(message, &evt); err != nil {
			client.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "invalid joinGroup event"))
			return
		}
		if err := h.service.HandleJoinGroup(ctx, client, evt.GroupID); err != nil {
			l := log.L()
			l.Warn().Str(log.FieldChannelID, client.ID).Err(err).Msg("join group failed")
		}

	case domain.EventSendMessage:
		var evt domain.SendMessageEvent
		if err := json.Unmarshal(message, &evt); err != nil {
			client.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "invalid sendMessage event"))
			return
		}
		if err := h.service.HandlePublish(ctx, client, evt.Data); err != nil {
			l := log.L()
			l.Warn().Str(log.FieldChannelID, client.ID).Err(err).Msg("publish failed")
		}

	default:
		client.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "unknown event"))
	}
}
