package room

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/state"
)

func TestManager_Create(t *testing.T) {
	f := newFixture(t, state.Durations{})

	r, err := f.mgr.Create(player("host"))
	require.NoError(t, err)

	require.Len(t, r.ID, 6)
	for _, c := range r.ID {
		assert.True(t, strings.ContainsRune(roomIDAlphabet, c), "unexpected char %q", c)
	}
	require.Len(t, r.Players, 1)
	assert.True(t, r.Players[0].IsHost)
	assert.True(t, r.Players[0].IsAlive)
	assert.Equal(t, r.ID, r.Players[0].RoomID)
	assert.Equal(t, models.DefaultSettings(), r.Settings)
	assert.Equal(t, models.PhaseWaiting, r.GameState.Phase)
	assert.Equal(t, t0.UnixMilli(), r.CreatedAt)

	stored := f.stored(t)
	require.Len(t, stored, 1)
	assert.Equal(t, r.ID, stored[0].ID)
	assert.Equal(t, 1, f.bc.count("host", "room_update"))
	assert.Equal(t, 1, f.mgr.Count())
}

func TestManager_CreateRetriesOnCollision(t *testing.T) {
	f := newFixture(t, state.Durations{})

	// Predict the first id the manager's source will produce and occupy it.
	predict := rand.New(rand.NewSource(42))
	b := make([]byte, roomIDLength)
	for i := range b {
		b[i] = roomIDAlphabet[predict.Intn(len(roomIDAlphabet))]
	}
	taken := string(b)
	f.mgr.rooms[taken] = &Room{data: &models.Room{ID: taken}, mgr: f.mgr}

	r, err := f.mgr.Create(player("host"))
	require.NoError(t, err)
	assert.NotEqual(t, taken, r.ID)
	assert.Equal(t, 2, f.mgr.Count())
}

func TestManager_Join(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 1)

	r, err := f.mgr.Join(id, models.Player{ID: "p1", Nickname: "b", IsHost: true, Role: models.RoleSeer})
	require.NoError(t, err)
	require.Len(t, r.Players, 2)
	assert.False(t, r.Players[1].IsHost, "joining never grants host")
	assert.Empty(t, r.Players[1].Role)
	assert.Equal(t, id, r.Players[1].RoomID)

	assert.Equal(t, 1, f.bc.count("p0", "player_joined"))
	assert.Equal(t, 1, f.bc.count("p1", "player_joined"))

	_, err = f.mgr.Join(id, player("p1"))
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	_, err = f.mgr.Join("NOPE00", player("p2"))
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestManager_JoinRejectedAfterStart(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 6)
	_, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)

	_, err = f.mgr.Join(id, player("late"))
	assert.ErrorIs(t, err, ErrGameStarted)
}

func TestManager_RemovePromotesHost(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 3)

	r, err := f.mgr.Remove(id, "p0")
	require.NoError(t, err)
	require.Len(t, r.Players, 2)
	assert.Equal(t, "p1", r.Players[0].ID)
	assert.True(t, r.Players[0].IsHost)
	assert.False(t, r.Players[1].IsHost)
	stored, ok := f.mgr.Get(id)
	require.True(t, ok)
	assert.True(t, stored.Players[0].IsHost)

	// a non-host leaving keeps the host
	r, err = f.mgr.Remove(id, "p2")
	require.NoError(t, err)
	assert.True(t, r.Players[0].IsHost)

	_, err = f.mgr.Remove(id, "ghost")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestManager_RemoveLastPlayerDeletesRoom(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 1)

	r, err := f.mgr.Remove(id, "p0")
	require.NoError(t, err)
	assert.Nil(t, r)

	_, ok := f.mgr.Get(id)
	assert.False(t, ok)
	assert.Empty(t, f.stored(t))
	assert.Equal(t, 0, f.metrics.rooms)
}

func TestManager_UpdateSettings(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 2)
	settings := models.GameSettings{Roles: map[models.Role]int{models.RoleWerewolf: 1, models.RoleVillager: 1}}

	_, err := f.mgr.UpdateSettings(id, "p1", settings)
	assert.ErrorIs(t, err, ErrNotHost)

	r, err := f.mgr.UpdateSettings(id, "p0", settings)
	require.NoError(t, err)
	assert.Equal(t, settings, r.Settings)

	settings.Roles[models.RoleSeer] = 3
	got, _ := f.mgr.Get(id)
	assert.Equal(t, 0, got.Settings.Count(models.RoleSeer), "settings are copied")
}

func TestManager_StartGame(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 5)

	_, err := f.mgr.StartGame(id, "p0")
	assert.ErrorIs(t, err, models.ErrRoleCountMismatch)
	assert.Contains(t, err.Error(), "Player count (5) does not match Role count (6)")

	_, err = f.mgr.Join(id, player("p5"))
	require.NoError(t, err)

	_, err = f.mgr.StartGame(id, "p1")
	assert.ErrorIs(t, err, ErrNotHost)

	r, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSetup, r.GameState.Phase)
	assert.Equal(t, 0, f.pending(), "setup has no timer")

	seen := make(map[models.Role]bool)
	for _, p := range r.Players {
		assert.False(t, seen[p.Role], "role %s dealt twice", p.Role)
		seen[p.Role] = true
	}
	assert.Len(t, seen, 6)
}

func TestManager_StartGameNoWerewolf(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 2)
	_, err := f.mgr.UpdateSettings(id, "p0", models.GameSettings{Roles: map[models.Role]int{models.RoleVillager: 2}})
	require.NoError(t, err)

	_, err = f.mgr.StartGame(id, "p0")
	assert.ErrorIs(t, err, models.ErrNoWerewolf)
}

func TestManager_StartGameOnlyBetweenRounds(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 6)
	_, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)

	_, err = f.mgr.StartGame(id, "p0")
	assert.ErrorIs(t, err, ErrGameStarted, "setup is part of a running game")

	for i := 0; i < 6; i++ {
		_, err := f.mgr.NextPhase(id, "p0")
		require.NoError(t, err)
	}
	r, _ := f.mgr.Get(id)
	require.Equal(t, models.PhaseDay, r.GameState.Phase)

	r, err = f.mgr.StartGame(id, "p0")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSetup, r.GameState.Phase)
	assert.Empty(t, r.GameState.DeadPlayers)
	for _, p := range r.Players {
		assert.True(t, p.IsAlive)
	}
}

func TestManager_NextPhase(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 6)
	_, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)

	_, err = f.mgr.NextPhase(id, "p3")
	assert.ErrorIs(t, err, ErrNotHost)

	now, err := f.mgr.NextPhase(id, "p0")
	require.NoError(t, err)
	assert.Equal(t, state.IDNightClosing, now)
	assert.Equal(t, 1, f.pending())

	r, _ := f.mgr.Get(id)
	assert.Equal(t, 1, r.GameState.DayCount)
	assert.Equal(t, float64(5), r.GameState.PhaseDuration)
	assert.Equal(t, t0.UnixMilli(), r.GameState.PhaseStartTime)

	// replacing the phase replaces the timer
	_, err = f.mgr.NextPhase(id, "p0")
	require.NoError(t, err)
	assert.Equal(t, 1, f.pending())
}

func TestManager_NextPhaseFromWaitingIsNoop(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 6)

	now, err := f.mgr.NextPhase(id, "p0")
	require.NoError(t, err)
	assert.Equal(t, state.IDWaiting, now)
}

func TestManager_SubmitAction(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 6)
	r, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)
	wolf := playerWith(r, models.RoleWerewolf)
	victim := playerWith(r, models.RoleVillager)

	err = f.mgr.SubmitAction(id, models.NightAction{PlayerID: wolf.ID, TargetID: victim.ID, ActionType: models.ActionKill})
	assert.ErrorIs(t, err, state.ErrActionRejected, "not night yet")

	f.mgr.NextPhase(id, "p0")
	f.mgr.NextPhase(id, "p0")

	err = f.mgr.SubmitAction(id, models.NightAction{PlayerID: wolf.ID, TargetID: victim.ID, ActionType: models.ActionKill})
	require.NoError(t, err)
	got, _ := f.mgr.Get(id)
	assert.Equal(t, []models.WolfVote{{VoterID: wolf.ID, TargetID: victim.ID}}, got.GameState.WerewolfVotes)

	err = f.mgr.SubmitAction(id, models.NightAction{PlayerID: "ghost", ActionType: models.ActionSkip})
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	assert.Equal(t, 2, f.metrics.rejected)
}

func TestManager_BroadcastsProjectedViews(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 6)
	r, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)

	for _, p := range r.Players {
		v, ok := f.bc.lastView(p.ID)
		require.True(t, ok)
		assert.Equal(t, p.Role, v.MyRole)
		for _, other := range v.Players {
			if other.ID != p.ID {
				assert.Empty(t, other.Role)
			}
		}
	}
}

func TestManager_TimersDriveTheNight(t *testing.T) {
	fast := state.Durations{Closing: 0.01, Werewolf: 0.01, Seer: 0.01, Witch: 0.01, Guard: 0.01, Day: 0}
	f := newFixture(t, fast)
	id := f.seatedRoom(t, 6)
	r, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)
	wolf := playerWith(r, models.RoleWerewolf)
	victim := playerWith(r, models.RoleVillager)

	_, err = f.mgr.NextPhase(id, "p0")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := f.mgr.Get(id)
		return got.GameState.NightPhase == models.NightWerewolf || got.GameState.Phase == models.PhaseDay
	}, time.Second, time.Millisecond)
	// The vote may miss the werewolf window on a slow machine; only assert
	// on what always holds.
	f.mgr.SubmitAction(id, models.NightAction{PlayerID: wolf.ID, TargetID: victim.ID, ActionType: models.ActionKill})

	require.Eventually(t, func() bool {
		got, _ := f.mgr.Get(id)
		return got.GameState.Phase == models.PhaseDay
	}, 2*time.Second, 5*time.Millisecond)

	got, _ := f.mgr.Get(id)
	assert.Equal(t, 1, got.GameState.DayCount)
	require.Len(t, got.GameState.DeadPlayers, 1)
	assert.Equal(t, 0, f.pending(), "day with zero duration has no timer")
	assert.GreaterOrEqual(t, f.metrics.advancesBy(TriggerTimer), 5)

	history, err := f.store.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].RoomID)
}

func TestManager_DisbandCancelsTimer(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 6)
	_, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)
	_, err = f.mgr.NextPhase(id, "p0")
	require.NoError(t, err)
	require.Equal(t, 1, f.pending())

	_, err = f.mgr.Disband(id, "p2")
	assert.ErrorIs(t, err, ErrNotHost)

	members, err := f.mgr.Disband(id, "p0")
	require.NoError(t, err)
	assert.Len(t, members, 6)
	assert.Equal(t, 0, f.pending())
	assert.Equal(t, 1, f.bc.count("p4", "room_disbanded"))

	_, ok := f.mgr.Get(id)
	assert.False(t, ok)
	_, err = f.mgr.Delete(id)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestManager_StaleTimerIgnored(t *testing.T) {
	f := newFixture(t, state.Durations{})
	id := f.seatedRoom(t, 6)
	_, err := f.mgr.StartGame(id, "p0")
	require.NoError(t, err)
	_, err = f.mgr.NextPhase(id, "p0")
	require.NoError(t, err)

	f.mgr.onTimer(id, -1)
	got, _ := f.mgr.Get(id)
	assert.Equal(t, models.NightClosing, got.GameState.NightPhase)
	assert.Equal(t, 0, f.metrics.advancesBy(TriggerTimer))
}

func storedNightRoom(start time.Time, duration float64) *models.Room {
	host := &models.Player{ID: "p0", Nickname: "a", IsAlive: true}
	r := models.NewRoom("ABC123", host, start)
	roles := []models.Role{models.RoleWerewolf, models.RoleVillager, models.RoleSeer, models.RoleWitch, models.RoleHunter, models.RoleGuard}
	host.Role = roles[0]
	for i, role := range roles[1:] {
		r.Players = append(r.Players, &models.Player{ID: string(rune('a' + i)), Nickname: "n", Role: role, IsAlive: true, RoomID: r.ID})
	}
	r.GameState.Phase = models.PhaseNight
	r.GameState.NightPhase = models.NightWerewolf
	r.GameState.DayCount = 1
	r.GameState.PhaseStartTime = start.UnixMilli()
	r.GameState.PhaseDuration = duration
	return r
}

func TestManager_RestoreExpiredTimerAdvancesOnce(t *testing.T) {
	f := newFixture(t, state.Durations{})
	require.NoError(t, f.store.SaveSnapshot(context.Background(), []*models.Room{storedNightRoom(t0, 20)}))
	now := t0.Add(25 * time.Second)
	f.clock.Set(now)

	n, err := f.mgr.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := f.mgr.Get("ABC123")
	require.True(t, ok)
	assert.Equal(t, models.NightSeer, got.GameState.NightPhase)
	assert.Equal(t, 1, got.GameState.DayCount)
	assert.Equal(t, now.UnixMilli(), got.GameState.PhaseStartTime)
	assert.Equal(t, float64(15), got.GameState.PhaseDuration)
	assert.Equal(t, 1, f.metrics.advancesBy(TriggerRecovery))
	assert.Equal(t, 1, f.pending(), "the seer timer is armed")
}

func TestManager_RestoreResumesRemainingTime(t *testing.T) {
	f := newFixture(t, state.Durations{})
	require.NoError(t, f.store.SaveSnapshot(context.Background(), []*models.Room{storedNightRoom(t0, 20)}))
	f.clock.Set(t0.Add(5 * time.Second))

	_, err := f.mgr.Restore(context.Background())
	require.NoError(t, err)

	got, _ := f.mgr.Get("ABC123")
	assert.Equal(t, models.NightWerewolf, got.GameState.NightPhase)
	assert.Equal(t, t0.UnixMilli(), got.GameState.PhaseStartTime, "resuming keeps the original start")
	assert.Equal(t, 1, f.pending())
	assert.Equal(t, 0, f.metrics.advancesBy(TriggerRecovery))

	// the restored machine still accepts actions for the current sub-phase
	err = f.mgr.SubmitAction("ABC123", models.NightAction{PlayerID: "p0", TargetID: "a", ActionType: models.ActionKill})
	assert.NoError(t, err)
}

func TestManager_RestoreWaitingRoomHasNoTimer(t *testing.T) {
	f := newFixture(t, state.Durations{})
	host := &models.Player{ID: "h", IsAlive: true}
	require.NoError(t, f.store.SaveSnapshot(context.Background(), []*models.Room{models.NewRoom("WAIT00", host, t0)}))

	_, err := f.mgr.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.pending())
	r, ok := f.mgr.Get("WAIT00")
	require.True(t, ok)
	assert.True(t, r.Players[0].IsHost)
}

func TestManager_List(t *testing.T) {
	f := newFixture(t, state.Durations{})
	f.seatedRoom(t, 1)
	f.seatedRoom(t, 1)

	rooms := f.mgr.List()
	require.Len(t, rooms, 2)
	assert.Less(t, rooms[0].ID, rooms[1].ID)
}

func TestManager_SlowStoreDoesNotBlockRooms(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(Options{Store: store, Rand: rand.New(rand.NewSource(1))})
	t.Cleanup(mgr.Shutdown)
	var once sync.Once
	release := func() { once.Do(func() { close(store.release) }) }
	t.Cleanup(release)

	a, err := mgr.Create(player("a0"))
	require.NoError(t, err)
	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("snapshot write never started")
	}

	// 写入被卡住时，其他房间和同一房间的操作都应立即返回
	done := make(chan struct{})
	go func() {
		defer close(done)
		b, err := mgr.Create(player("b0"))
		if err != nil {
			return
		}
		mgr.Join(b.ID, player("b1"))
		mgr.Join(a.ID, player("a1"))
		mgr.Get(a.ID)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("room operations waited on the store")
	}
	assert.Equal(t, 2, mgr.Count())

	release()
	require.Eventually(t, func() bool {
		rooms, err := store.LoadSnapshot(context.Background())
		return err == nil && len(rooms) == 2 && len(rooms[0].Players) == 2 && len(rooms[1].Players) == 2
	}, time.Second, 5*time.Millisecond)
}
