// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/ziqiy-dream/werewolf-judge/session"
)

var (
	ErrPlayerOffline = errors.New("player offline")
)

// 基于 session 的广播器，实现 room.Broadcaster
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{
		sessionManager: sessionManager,
	}
}

// SendToPlayer delivers one event to the connection whose session id equals playerID.
func (b *SessionBroadcaster) SendToPlayer(playerID, event string, data interface{}) error {
	s, exists := b.sessionManager.Get(playerID)
	if !exists {
		return ErrPlayerOffline
	}
	return s.Send(event, data)
}
