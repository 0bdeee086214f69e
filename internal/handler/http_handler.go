package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ridepool/chat-service/internal/config"
	"github.com/ridepool/chat-service/internal/history"
	"github.com/ridepool/chat-service/internal/store"
	"github.com/ridepool/chat-service/internal/stream"
	"github.com/ridepool/chat-service/pkg/auth"
	"github.com/ridepool/chat-service/pkg/log"
	"github.com/ridepool/chat-service/pkg/response"
)

// HTTPHandler exposes the durable-store surface: message creation and
// history reads. The websocket broker never persists anything; clients write
// here first and only then publish the result over the channel.
type HTTPHandler struct {
	store   store.MessageStore
	history history.Service
	stream  stream.MessageProducer
	cfg     config.HistoryConfig
}

func NewHTTPHandler(msgStore store.MessageStore, historySvc history.Service, producer stream.MessageProducer, cfg config.HistoryConfig) *HTTPHandler {
	return &HTTPHandler{
		store:   msgStore,
		history: historySvc,
		stream:  producer,
		cfg:     cfg,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, verifier *auth.Verifier) {
	groups := r.Group("/groups", auth.RequireAuth(verifier))
	{
		groups.POST("/:group_id/messages", h.CreateMessage)
		groups.GET("/:group_id/messages", h.ListMessages)
	}
}

type createMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *HTTPHandler) CreateMessage(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("group_id"), 10, 64)
	if err != nil || groupID == 0 {
		response.BadRequest(c, "invalid group id")
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "content is required")
		return
	}

	// The author of record is always the authenticated user, regardless of
	// anything the body claims.
	authorID := auth.GetUserID(c)

	msg, err := h.store.CreateMessage(c.Request.Context(), groupID, authorID, req.Content)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Uint64(log.FieldGroupID, groupID).Err(err).Msg("failed to create message")
		response.InternalError(c, "failed to create message")
		return
	}

	// Emit to the event stream for downstream consumers. Best effort: the
	// message is already durable, a stream hiccup must not fail the write.
	if err := h.stream.ProduceMessage(c.Request.Context(), msg); err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Uint64(log.FieldMessageID, msg.ID).Err(err).Msg("failed to produce message event")
	}

	response.Created(c, msg)
}

func (h *HTTPHandler) ListMessages(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("group_id"), 10, 64)
	if err != nil || groupID == 0 {
		response.BadRequest(c, "invalid group id")
		return
	}

	direction := store.ParseDirection(c.DefaultQuery("direction", "backward"))

	var cursor uint64
	if cursorStr := c.Query("cursor"); cursorStr != "" {
		cursor, err = strconv.ParseUint(cursorStr, 10, 64)
		if err != nil {
			response.BadRequest(c, "cursor must be a message id")
			return
		}
	}

	limit := h.cfg.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > h.cfg.MaxLimit {
			limit = h.cfg.MaxLimit
		}
	}

	page, err := h.history.GetHistory(c.Request.Context(), groupID, cursor, limit, direction)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Uint64(log.FieldGroupID, groupID).Err(err).Msg("failed to get history")
		response.InternalError(c, "failed to get message history")
		return
	}

	response.Success(c, page)
}
