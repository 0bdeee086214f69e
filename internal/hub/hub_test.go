package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/chat-service/internal/config"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   time.Minute,
		PongWait:       time.Minute,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
	}
}

func newRunningHub() *Hub {
	h := NewHub(testWSConfig())
	go h.Run()
	return h
}

func newTestClient(h *Hub, id string, userID uint64) *Client {
	c := NewClient(id, h, nil, userID, testWSConfig())
	h.Register(c)
	return c
}

// waitClosed blocks until the client's send channel is closed by the hub.
func waitClosed(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.Send:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

// recv waits for one delivery on the client's send channel.
func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.Send:
		return data
	case <-time.After(time.Second):
		t.Fatal("expected a delivery, got none")
		return nil
	}
}

// expectNothing asserts no delivery arrives within a short window.
func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("expected no delivery, got %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishExcludesSender(t *testing.T) {
	h := newRunningHub()
	sender := newTestClient(h, "sender", 1)
	peer := newTestClient(h, "peer", 2)

	h.JoinGroup(sender, 42)
	h.JoinGroup(peer, 42)

	h.Publish(42, []byte("hello"), sender.ID)

	assert.Equal(t, []byte("hello"), recv(t, peer))
	expectNothing(t, sender)
}

func TestFanOutDeliversToEachPeerOnce(t *testing.T) {
	h := newRunningHub()
	sender := newTestClient(h, "sender", 1)
	peer1 := newTestClient(h, "peer1", 2)
	peer2 := newTestClient(h, "peer2", 3)

	h.JoinGroup(sender, 42)
	h.JoinGroup(peer1, 42)
	h.JoinGroup(peer2, 42)

	h.Publish(42, []byte("hello"), sender.ID)

	assert.Equal(t, []byte("hello"), recv(t, peer1))
	assert.Equal(t, []byte("hello"), recv(t, peer2))
	expectNothing(t, peer1)
	expectNothing(t, peer2)
}

func TestSingleSenderOrderingPerPeer(t *testing.T) {
	h := newRunningHub()
	sender := newTestClient(h, "sender", 1)
	peer := newTestClient(h, "peer", 2)

	h.JoinGroup(sender, 42)
	h.JoinGroup(peer, 42)

	h.Publish(42, []byte("first"), sender.ID)
	h.Publish(42, []byte("second"), sender.ID)
	h.Publish(42, []byte("third"), sender.ID)

	assert.Equal(t, []byte("first"), recv(t, peer))
	assert.Equal(t, []byte("second"), recv(t, peer))
	assert.Equal(t, []byte("third"), recv(t, peer))
}

func TestGroupIsolation(t *testing.T) {
	h := newRunningHub()
	c1 := newTestClient(h, "c1", 1)
	c2 := newTestClient(h, "c2", 2)

	h.JoinGroup(c1, 1)
	h.JoinGroup(c2, 2)

	h.Publish(1, []byte("for group one"), "")

	assert.Equal(t, []byte("for group one"), recv(t, c1))
	expectNothing(t, c2)
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := newRunningHub()
	c1 := newTestClient(h, "c1", 1)
	c2 := newTestClient(h, "c2", 2)

	h.JoinGroup(c1, 42)
	h.JoinGroup(c2, 42)

	h.LeaveGroup(c2, 42)
	// Removing a channel that already left is a no-op.
	h.LeaveGroup(c2, 42)

	h.Publish(42, []byte("after leave"), "")

	assert.Equal(t, []byte("after leave"), recv(t, c1))
	expectNothing(t, c2)
}

func TestJoinIsIdempotent(t *testing.T) {
	h := newRunningHub()
	c1 := newTestClient(h, "c1", 1)
	c2 := newTestClient(h, "c2", 2)

	h.JoinGroup(c1, 42)
	h.JoinGroup(c1, 42)
	h.JoinGroup(c2, 42)

	require.Equal(t, 2, h.GroupSize(42))

	h.Publish(42, []byte("once"), c2.ID)

	assert.Equal(t, []byte("once"), recv(t, c1))
	expectNothing(t, c1)
}

func TestUnregisterRemovesFromAllGroups(t *testing.T) {
	h := newRunningHub()
	c := newTestClient(h, "c", 1)
	other := newTestClient(h, "other", 2)

	h.JoinGroup(c, 1)
	h.JoinGroup(c, 2)
	h.JoinGroup(other, 1)

	h.Unregister(c)

	// The send channel closes once the unregister is processed.
	waitClosed(t, c)

	assert.Equal(t, 1, h.GroupSize(1))
	assert.Equal(t, 0, h.GroupSize(2))

	h.Publish(1, []byte("still flowing"), "")
	assert.Equal(t, []byte("still flowing"), recv(t, other))
}

func TestRoomLifecycleFollowsMembership(t *testing.T) {
	h := newRunningHub()
	c := newTestClient(h, "c", 1)

	require.Equal(t, 0, h.GroupSize(42))

	h.JoinGroup(c, 42)
	require.Equal(t, 1, h.GroupSize(42))

	h.LeaveGroup(c, 42)
	require.Equal(t, 0, h.GroupSize(42))
}

func TestJoinRequiresRegistration(t *testing.T) {
	h := newRunningHub()
	c := NewClient("ghost", h, nil, 1, testWSConfig())

	assert.False(t, h.JoinGroup(c, 42))
	assert.Equal(t, 0, h.GroupSize(42))
}

func TestJoinRefusedAfterDrop(t *testing.T) {
	h := newRunningHub()
	dropped := newTestClient(h, "dropped", 1)
	member := newTestClient(h, "member", 2)

	require.True(t, h.JoinGroup(dropped, 42))
	require.True(t, h.JoinGroup(member, 42))

	h.Unregister(dropped)
	waitClosed(t, dropped)

	// A dropped channel must not re-enter the room behind its closed send
	// queue; delivery to the remaining members keeps flowing.
	assert.False(t, h.JoinGroup(dropped, 42))
	require.Equal(t, 1, h.GroupSize(42))

	h.Publish(42, []byte("still flowing"), "")
	assert.Equal(t, []byte("still flowing"), recv(t, member))
}

func TestSendEventAfterDropIsDiscarded(t *testing.T) {
	h := newRunningHub()
	c := newTestClient(h, "c", 1)

	h.Unregister(c)
	waitClosed(t, c)

	assert.NoError(t, c.SendEvent(map[string]string{"event": "groupJoined"}))
}
