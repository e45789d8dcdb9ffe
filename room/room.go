// room/room.go
package room

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ziqiy-dream/werewolf-judge/events"
	"github.com/ziqiy-dream/werewolf-judge/logger"
	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/network"
	"github.com/ziqiy-dream/werewolf-judge/state"
	"github.com/ziqiy-dream/werewolf-judge/view"
)

// Room 是游戏房间的运行时结构：数据、状态机、计时器句柄。
// 所有字段都在 mutex 下访问。
type Room struct {
	mutex   sync.Mutex
	data    *models.Room
	sm      *state.BaseStateMachine
	rng     *rand.Rand
	timerID int64 // 0 表示没有计时器
	closed  bool
	mgr     *Manager
}

func newRoom(mgr *Manager, data *models.Room, restored bool) *Room {
	r := &Room{
		data: data,
		rng:  rand.New(rand.NewSource(mgr.seed())),
		mgr:  mgr,
	}
	r.sm = state.NewPhaseMachine(r, restored)
	return r
}

// --- 实现 state.RoomContext 接口 ---

// GetID 返回房间ID
func (r *Room) GetID() string {
	return r.data.ID
}

func (r *Room) Data() *models.Room {
	return r.data
}

func (r *Room) Now() time.Time {
	return r.mgr.now()
}

func (r *Room) Rand() *rand.Rand {
	return r.rng
}

func (r *Room) Durations() state.Durations {
	return r.mgr.durations
}

// SetPhaseTimer records the phase start and replaces the room's timer.
// A non-positive duration leaves the room without a timer.
func (r *Room) SetPhaseTimer(seconds float64) {
	gs := &r.data.GameState
	gs.PhaseStartTime = r.Now().UnixMilli()
	gs.PhaseDuration = seconds
	r.armTimer(seconds)
}

// NightResolved stores the history entry and reports the casualties.
func (r *Room) NightResolved(entry models.HistoryEntry, dead []string) {
	r.mgr.saveHistory(entry)

	for _, id := range dead {
		if p, ok := r.data.Player(id); ok {
			r.mgr.metrics.PlayerDied(string(p.DeathReason))
		}
	}
	r.mgr.publish(r.data.ID, events.NightResolved, map[string]interface{}{
		"day":  r.data.GameState.DayCount,
		"dead": dead,
	})
}

// --- 计时器 ---

// armTimer cancels the current timer and, for a positive duration, schedules
// a new one. It does not touch the persisted phase fields.
func (r *Room) armTimer(seconds float64) {
	r.cancelTimer()
	if seconds <= 0 {
		return
	}
	id := r.data.ID
	delay := time.Duration(seconds * float64(time.Second))
	r.timerID = r.mgr.timers.AddTimer(delay, func(timerID int64) {
		r.mgr.onTimer(id, timerID)
	})
}

func (r *Room) cancelTimer() {
	if r.timerID != 0 {
		r.mgr.timers.RemoveTimer(r.timerID)
		r.timerID = 0
	}
}

// --- 广播 ---

// broadcastUpdate sends every member its own projection of the room.
func (r *Room) broadcastUpdate() {
	for _, p := range r.data.Players {
		r.send(p.ID, network.EventRoomUpdate, view.Project(r.data, p.ID))
	}
}

func (r *Room) broadcast(event string, data interface{}) {
	for _, p := range r.data.Players {
		r.send(p.ID, event, data)
	}
}

func (r *Room) send(playerID, event string, data interface{}) {
	if err := r.mgr.broadcaster.SendToPlayer(playerID, event, data); err != nil {
		logger.Log.Debugf("Room %s: send %s to %s failed: %v", r.data.ID, event, playerID, err)
	}
}

// isHost reports whether playerID is seated and holds the host flag.
func (r *Room) isHost(playerID string) bool {
	p, ok := r.data.Player(playerID)
	return ok && p.IsHost
}

func (r *Room) removePlayer(playerID string) bool {
	for i, p := range r.data.Players {
		if p.ID == playerID {
			r.data.Players = append(r.data.Players[:i], r.data.Players[i+1:]...)
			return true
		}
	}
	return false
}

// promoteHost makes the first remaining player host when nobody is.
func (r *Room) promoteHost() {
	if len(r.data.Players) == 0 {
		return
	}
	if _, ok := r.data.Host(); ok {
		return
	}
	r.data.Players[0].IsHost = true
	logger.Log.Infof("Room %s: %s promoted to host", r.data.ID, r.data.Players[0].ID)
}
