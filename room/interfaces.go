package room

// Broadcaster delivers one outbound event to one connected player.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	SendToPlayer(playerID, event string, data interface{}) error
}

// Metrics is the part of monitor.Monitor the manager reports to.
type Metrics interface {
	SetActiveRooms(count int)
	PhaseAdvanced(phase, trigger string)
	PlayerDied(cause string)
	ActionRejected()
	PersistFailed()
}

type nopBroadcaster struct{}

func (nopBroadcaster) SendToPlayer(playerID, event string, data interface{}) error { return nil }

type nopMetrics struct{}

func (nopMetrics) SetActiveRooms(int)           {}
func (nopMetrics) PhaseAdvanced(string, string) {}
func (nopMetrics) PlayerDied(string)            {}
func (nopMetrics) ActionRejected()              {}
func (nopMetrics) PersistFailed()               {}
