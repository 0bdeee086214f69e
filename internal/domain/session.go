package domain

// Session holds per-connection identity for one channel. Group membership
// itself lives in the hub; the session only remembers who the channel
// belongs to. Idle connections are bounded by the read deadline and pong
// handler, not tracked here.
type Session struct {
	ID     string
	UserID uint64
}

func NewSession(id string, userID uint64) *Session {
	return &Session{
		ID:     id,
		UserID: userID,
	}
}

func (s *Session) GetUserID() uint64 {
	return s.UserID
}
