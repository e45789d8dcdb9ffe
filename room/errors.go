package room

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomClosed     = errors.New("room closed")
	ErrPlayerNotFound = errors.New("player not found")
	ErrNotHost        = errors.New("only the host can do that")
	ErrGameStarted    = errors.New("game already started")
	ErrAlreadyInRoom  = errors.New("player already in room")
	ErrNoRoomID       = errors.New("could not allocate a room id")
)
