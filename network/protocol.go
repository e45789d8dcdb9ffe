package network

// Inbound events.
const (
	EventCreateRoom     = "create_room"
	EventJoinRoom       = "join_room"
	EventUpdateSettings = "update_settings"
	EventStartGame      = "start_game"
	EventGameAction     = "game_action"
	EventNextPhase      = "next_phase"
	EventLeaveRoom      = "leave_room"
	EventDisbandRoom    = "disband_room"
	EventHeartbeat      = "heartbeat"
)

// Outbound events.
const (
	EventRoomUpdate    = "room_update"
	EventPlayerJoined  = "player_joined"
	EventRoomLeft      = "room_left"
	EventRoomDisbanded = "room_disbanded"
	EventError         = "error"
)
