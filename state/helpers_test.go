package state

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

// fakeRoom is a RoomContext double with a fixed clock and seeded randomness.
type fakeRoom struct {
	data      *models.Room
	now       time.Time
	rng       *rand.Rand
	timers    []float64
	histories []models.HistoryEntry
	deaths    [][]string
}

func newFakeRoom(players int, settings models.GameSettings) *fakeRoom {
	now := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	host := &models.Player{ID: "p0", Nickname: "player0", IsAlive: true}
	data := models.NewRoom("ROOM01", host, now)
	for i := 1; i < players; i++ {
		data.Players = append(data.Players, &models.Player{
			ID:       fmt.Sprintf("p%d", i),
			Nickname: fmt.Sprintf("player%d", i),
			IsAlive:  true,
			RoomID:   data.ID,
		})
	}
	data.Settings = settings
	return &fakeRoom{data: data, now: now, rng: rand.New(rand.NewSource(7))}
}

func (f *fakeRoom) GetID() string        { return f.data.ID }
func (f *fakeRoom) Data() *models.Room   { return f.data }
func (f *fakeRoom) Now() time.Time       { return f.now }
func (f *fakeRoom) Rand() *rand.Rand     { return f.rng }
func (f *fakeRoom) Durations() Durations { return DefaultDurations() }

func (f *fakeRoom) SetPhaseTimer(seconds float64) {
	f.timers = append(f.timers, seconds)
	f.data.GameState.PhaseStartTime = f.now.UnixMilli()
	f.data.GameState.PhaseDuration = seconds
}

func (f *fakeRoom) NightResolved(entry models.HistoryEntry, dead []string) {
	f.histories = append(f.histories, entry)
	f.deaths = append(f.deaths, dead)
}

func (f *fakeRoom) lastTimer() float64 {
	if len(f.timers) == 0 {
		return -1
	}
	return f.timers[len(f.timers)-1]
}

// playerWith returns the first player holding role.
func (f *fakeRoom) playerWith(role models.Role) *models.Player {
	for _, p := range f.data.Players {
		if p.Role == role {
			return p
		}
	}
	return nil
}

// startedMachine deals roles and returns a machine sitting in setup.
func startedMachine(f *fakeRoom) *BaseStateMachine {
	sm := NewPhaseMachine(f, false)
	if err := sm.ChangeState(NewSetupState(f)); err != nil {
		panic(err)
	}
	return sm
}
