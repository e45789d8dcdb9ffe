// state/interfaces.go
package state

import (
	"math/rand"
	"time"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

// RoomContext defines what a phase state needs from the room that owns it.
// The room package implements it; every call happens under the room's lock.
type RoomContext interface {
	GetID() string
	Data() *models.Room
	Now() time.Time
	Rand() *rand.Rand
	Durations() Durations
	// SetPhaseTimer cancels the current phase timer, stamps the phase start and
	// duration, and arms a new timer when seconds > 0.
	SetPhaseTimer(seconds float64)
	// NightResolved is called once per night after casualties were applied.
	NightResolved(entry models.HistoryEntry, dead []string)
}

// Durations are phase lengths in seconds.
type Durations struct {
	Closing  float64
	Werewolf float64
	Seer     float64
	Witch    float64
	Guard    float64
	Day      float64
}

func DefaultDurations() Durations {
	return Durations{
		Closing:  5,
		Werewolf: 20,
		Seer:     15,
		Witch:    20,
		Guard:    15,
		Day:      10,
	}
}
