package hub

import (
	"encoding/json"
	"sync"

	"github.com/ridepool/chat-service/internal/config"
	"github.com/ridepool/chat-service/pkg/log"
)

// Hub is the room broker: it owns the mapping from group id to the set of
// currently connected channels and relays published messages to every other
// member. A room exists exactly as long as its membership set is non-empty.
//
// The hub is constructed once at process start and injected wherever relay
// access is needed; it never persists anything itself.
type Hub struct {
	clients    map[string]*Client            // channel id -> client
	rooms      map[uint64]map[string]*Client // group id -> channel id -> client
	unregister chan *Client
	broadcast  chan *groupMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type groupMessage struct {
	GroupID uint64
	Data    []byte
	Exclude string // channel id to exclude, normally the publisher
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[uint64]map[string]*Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *groupMessage, 256),
		config:     cfg,
	}
}

// Run processes unregister and broadcast events. Broadcasts are handled by
// this single goroutine, so messages published by one sender reach each peer
// in publish order.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for groupID, members := range h.rooms {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.rooms, groupID)
					}
				}
				delete(h.clients, client.ID)
				client.close()
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldChannelID, client.ID).Msg("channel unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if members, ok := h.rooms[msg.GroupID]; ok {
				for channelID, client := range members {
					if channelID == msg.Exclude {
						continue
					}
					if !client.trySend(msg.Data) {
						// Slow or dead channel: drop it, the message is
						// at-most-once for live delivery anyway.
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds the channel to the broker. Registration is synchronous and
// happens before the channel's pumps start, so it is in effect before any
// wire message from the channel is handled.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	l := log.L()
	l.Debug().Str(log.FieldChannelID, client.ID).Msg("channel registered")
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinGroup adds the channel to a group's membership set and reports whether
// it took effect. Joining twice is a no-op; a channel may belong to any
// number of groups. Membership takes effect before JoinGroup returns. A
// channel the broker already dropped is refused: its send queue is closed,
// and it must never re-enter a room behind one.
func (h *Hub) JoinGroup(client *Client, groupID uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = make(map[string]*Client)
	}
	h.rooms[groupID][client.ID] = client
	l := log.L()
	l.Info().Str(log.FieldChannelID, client.ID).Uint64(log.FieldGroupID, groupID).Msg("channel joined group")
	return true
}

// LeaveGroup removes the channel from a group's membership set. Removing a
// channel that is not a member is a no-op.
func (h *Hub) LeaveGroup(client *Client, groupID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[groupID]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, groupID)
		}
	}
}

// Publish relays raw bytes to every member of the group except the excluded
// channel. Pass an empty exclude to reach all members (cross-instance relay).
func (h *Hub) Publish(groupID uint64, data []byte, exclude string) {
	h.broadcast <- &groupMessage{
		GroupID: groupID,
		Data:    data,
		Exclude: exclude,
	}
}

// PublishJSON marshals the message and relays it to the group.
func (h *Hub) PublishJSON(groupID uint64, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.Publish(groupID, data, exclude)
	return nil
}

// GroupSize reports the current number of channels joined to a group.
func (h *Hub) GroupSize(groupID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[groupID])
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
