package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/ziqiy-dream/werewolf-judge/events"
	"github.com/ziqiy-dream/werewolf-judge/logger"
	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/network"
	"github.com/ziqiy-dream/werewolf-judge/persistence"
	"github.com/ziqiy-dream/werewolf-judge/state"
	"github.com/ziqiy-dream/werewolf-judge/timer"
)

const (
	roomIDAlphabet = "ABCDEF0123456789"
	roomIDLength   = 6
	roomIDAttempts = 16
)

// Trigger labels for phase advances.
const (
	TriggerTimer    = "timer"
	TriggerHost     = "host"
	TriggerAdmin    = "admin"
	TriggerRecovery = "recovery"
)

// Options 房间管理器的依赖。零值字段使用默认实现。
type Options struct {
	Store       persistence.Store
	Broadcaster Broadcaster
	Publisher   events.Publisher
	Metrics     Metrics
	Durations   state.Durations
	TimerTick   time.Duration
	Now         func() time.Time
	Rand        *rand.Rand
}

// Manager 管理所有房间
//
// Lock order: Room.mutex, then Manager.mutex. snapMu is only taken inside
// either of those, never the other way round. Store writes happen on the
// writer goroutine and never under a room lock.
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex

	timers      *timer.TimerManager
	store       persistence.Store
	broadcaster Broadcaster
	publisher   events.Publisher
	metrics     Metrics
	durations   state.Durations
	now         func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand

	// snapshots holds the last committed copy of every room so a save never
	// has to lock other rooms.
	snapMu    sync.Mutex
	snapshots map[string]*models.Room
	saveMu    sync.Mutex

	// dirty 有容量 1，多次提交合并为一次写入
	dirty      chan struct{}
	stopWriter chan struct{}
	writerDone chan struct{}
	stopOnce   sync.Once
}

// NewManager 创建一个新的房间管理器
func NewManager(opts Options) *Manager {
	m := &Manager{
		rooms:       make(map[string]*Room),
		timers:      timer.NewTimerManager(opts.TimerTick),
		store:       opts.Store,
		broadcaster: opts.Broadcaster,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		durations:   opts.Durations,
		now:         opts.Now,
		rand:        opts.Rand,
		snapshots:   make(map[string]*models.Room),
		dirty:       make(chan struct{}, 1),
		stopWriter:  make(chan struct{}),
		writerDone:  make(chan struct{}),
	}
	if m.store == nil {
		m.store = persistence.NewMemoryStore(0)
	}
	if m.broadcaster == nil {
		m.broadcaster = nopBroadcaster{}
	}
	if m.publisher == nil {
		m.publisher = events.NopPublisher{}
	}
	if m.metrics == nil {
		m.metrics = nopMetrics{}
	}
	if m.durations == (state.Durations{}) {
		m.durations = state.DefaultDurations()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.rand == nil {
		m.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	go m.writeLoop()
	return m
}

func (m *Manager) seed() int64 {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return m.rand.Int63()
}

func (m *Manager) newRoomID() string {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	b := make([]byte, roomIDLength)
	for i := range b {
		b[i] = roomIDAlphabet[m.rand.Intn(len(roomIDAlphabet))]
	}
	return string(b)
}

// lock returns the room with its mutex held. The caller must unlock.
func (m *Manager) lock(roomID string) (*Room, error) {
	m.mutex.RLock()
	r, ok := m.rooms[roomID]
	m.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomClosed, roomID)
	}
	return r, nil
}

// Create 创建一个新房间，host 成为房主
func (m *Manager) Create(host models.Player) (*models.Room, error) {
	m.mutex.Lock()
	var id string
	for i := 0; i < roomIDAttempts; i++ {
		candidate := m.newRoomID()
		if _, taken := m.rooms[candidate]; !taken {
			id = candidate
			break
		}
	}
	if id == "" {
		m.mutex.Unlock()
		return nil, ErrNoRoomID
	}

	p := host
	p.IsAlive = true
	p.Role = ""
	p.DeathReason = ""
	r := newRoom(m, models.NewRoom(id, &p, m.now()), false)
	r.mutex.Lock()
	m.rooms[id] = r
	count := len(m.rooms)
	m.mutex.Unlock()
	defer r.mutex.Unlock()

	m.metrics.SetActiveRooms(count)
	logger.Log.Infof("Player %s created room %s", p.ID, id)

	m.commit(r)
	r.broadcastUpdate()
	m.publish(id, events.RoomCreated, map[string]string{"host": p.ID})
	return r.data.Clone(), nil
}

// Get returns a copy of the room.
func (m *Manager) Get(roomID string) (*models.Room, bool) {
	r, err := m.lock(roomID)
	if err != nil {
		return nil, false
	}
	defer r.mutex.Unlock()
	return r.data.Clone(), true
}

// List returns copies of every room ordered by id.
func (m *Manager) List() []*models.Room {
	m.mutex.RLock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	m.mutex.RUnlock()
	sort.Strings(ids)

	out := make([]*models.Room, 0, len(ids))
	for _, id := range ids {
		if r, ok := m.Get(id); ok {
			out = append(out, r)
		}
	}
	return out
}

// Count 当前房间数
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Join seats p as a regular player. Joining is only possible while the room
// is waiting for the game to start.
func (m *Manager) Join(roomID string, p models.Player) (*models.Room, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mutex.Unlock()

	if r.data.GameState.Phase != models.PhaseWaiting {
		return nil, ErrGameStarted
	}
	if _, exists := r.data.Player(p.ID); exists {
		return nil, ErrAlreadyInRoom
	}

	p.IsHost = false
	p.IsAlive = true
	p.Role = ""
	p.DeathReason = ""
	p.RoomID = roomID
	r.data.Players = append(r.data.Players, &p)
	logger.Log.Infof("Player %s joined room %s", p.ID, roomID)

	m.commit(r)
	r.broadcast(network.EventPlayerJoined, map[string]string{"playerId": p.ID})
	r.broadcastUpdate()
	return r.data.Clone(), nil
}

// Remove takes playerID out of the room. The first remaining player becomes
// host if needed. When the room empties it is deleted and Remove returns nil.
func (m *Manager) Remove(roomID, playerID string) (*models.Room, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mutex.Unlock()

	if !r.removePlayer(playerID) {
		return nil, ErrPlayerNotFound
	}
	logger.Log.Infof("Player %s left room %s", playerID, roomID)

	if len(r.data.Players) == 0 {
		m.close(r)
		return nil, nil
	}

	r.promoteHost()
	m.commit(r)
	r.broadcastUpdate()
	return r.data.Clone(), nil
}

// UpdateSettings overwrites the role counts. Totals are only checked at
// game start.
func (m *Manager) UpdateSettings(roomID, actorID string, settings models.GameSettings) (*models.Room, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mutex.Unlock()

	if !r.isHost(actorID) {
		return nil, ErrNotHost
	}
	r.data.Settings = settings.Clone()

	m.commit(r)
	r.broadcastUpdate()
	return r.data.Clone(), nil
}

// StartGame validates the settings and deals roles. A game can be started
// from waiting, and restarted from day or game_over.
func (m *Manager) StartGame(roomID, actorID string) (*models.Room, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mutex.Unlock()

	if !r.isHost(actorID) {
		return nil, ErrNotHost
	}
	switch r.data.GameState.Phase {
	case models.PhaseWaiting, models.PhaseDay, models.PhaseGameOver:
	default:
		return nil, ErrGameStarted
	}
	if err := r.data.Settings.Validate(len(r.data.Players)); err != nil {
		return nil, err
	}

	if err := r.sm.ChangeState(state.NewSetupState(r)); err != nil {
		return nil, err
	}
	m.metrics.PhaseAdvanced(state.IDSetup, TriggerHost)
	logger.Log.Infof("Room %s game started with %d players", roomID, len(r.data.Players))

	m.commit(r)
	r.broadcastUpdate()
	m.publish(roomID, events.GameStarted, map[string]int{"players": len(r.data.Players)})
	return r.data.Clone(), nil
}

// NextPhase is the host's manual advance.
func (m *Manager) NextPhase(roomID, actorID string) (string, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return "", err
	}
	defer r.mutex.Unlock()

	if !r.isHost(actorID) {
		return "", ErrNotHost
	}
	return m.advance(r, TriggerHost), nil
}

// Advance moves the room to its next phase without an authorization check.
// It returns the id of the state the room is in afterwards.
func (m *Manager) Advance(roomID string) (string, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return "", err
	}
	defer r.mutex.Unlock()
	return m.advance(r, TriggerAdmin), nil
}

// advance runs one transition. A state without a successor stays put; the
// room is still persisted and broadcast.
func (m *Manager) advance(r *Room, trigger string) string {
	next, err := r.sm.Advance()
	switch {
	case errors.Is(err, state.ErrNoTransition):
		logger.Log.Debugf("Room %s: no transition from %s (%s)", r.data.ID, next.GetID(), trigger)
	case err != nil:
		logger.Log.Errorf("Room %s: advance failed: %v", r.data.ID, err)
	default:
		m.metrics.PhaseAdvanced(next.GetID(), trigger)
		m.publish(r.data.ID, events.PhaseChanged, map[string]interface{}{
			"phase":    r.data.GameState.Phase,
			"sub":      r.data.GameState.NightPhase,
			"dayCount": r.data.GameState.DayCount,
			"trigger":  trigger,
		})
	}

	m.commit(r)
	r.broadcastUpdate()
	return r.sm.GetCurrentState().GetID()
}

// SubmitAction validates and applies one night action. The acting player is
// action.PlayerID.
func (m *Manager) SubmitAction(roomID string, action models.NightAction) error {
	r, err := m.lock(roomID)
	if err != nil {
		return err
	}
	defer r.mutex.Unlock()

	player, ok := r.data.Player(action.PlayerID)
	if !ok {
		m.metrics.ActionRejected()
		return ErrPlayerNotFound
	}
	if err := r.sm.GetCurrentState().HandleAction(player, action); err != nil {
		m.metrics.ActionRejected()
		logger.Log.Debugf("Room %s: %s %s rejected: %v", roomID, action.PlayerID, action.ActionType, err)
		return err
	}

	m.commit(r)
	r.broadcastUpdate()
	return nil
}

// Disband deletes the room on the host's request. Members are told with
// room_disbanded before the room goes away.
func (m *Manager) Disband(roomID, actorID string) ([]string, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mutex.Unlock()

	if !r.isHost(actorID) {
		return nil, ErrNotHost
	}
	return m.disband(r), nil
}

// Delete removes a room unconditionally and returns the ids of its members.
func (m *Manager) Delete(roomID string) ([]string, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mutex.Unlock()
	return m.disband(r), nil
}

func (m *Manager) disband(r *Room) []string {
	members := make([]string, 0, len(r.data.Players))
	for _, p := range r.data.Players {
		members = append(members, p.ID)
	}
	r.broadcast(network.EventRoomDisbanded, map[string]string{"roomId": r.data.ID})
	m.close(r)
	return members
}

// close cancels the timer and drops the room from the registry. Caller holds
// the room lock.
func (m *Manager) close(r *Room) {
	r.cancelTimer()
	r.closed = true

	m.mutex.Lock()
	delete(m.rooms, r.data.ID)
	count := len(m.rooms)
	m.mutex.Unlock()

	m.snapMu.Lock()
	delete(m.snapshots, r.data.ID)
	m.snapMu.Unlock()

	m.metrics.SetActiveRooms(count)
	m.markDirty()
	m.publish(r.data.ID, events.RoomDeleted, nil)
	logger.Log.Infof("Room %s deleted", r.data.ID)
}

// onTimer is the timer callback. Stale timers, whose id no longer matches
// the room's current timer, are ignored.
func (m *Manager) onTimer(roomID string, timerID int64) {
	r, err := m.lock(roomID)
	if err != nil {
		return
	}
	defer r.mutex.Unlock()

	if r.timerID != timerID {
		return
	}
	r.timerID = 0
	m.advance(r, TriggerTimer)
}

// Restore loads the stored rooms and resumes their timers. A room whose phase
// ran out while the process was down is advanced once immediately.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	stored, err := m.store.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}

	restored := make([]*Room, 0, len(stored))
	m.mutex.Lock()
	for _, data := range stored {
		if data == nil || data.ID == "" {
			continue
		}
		if _, exists := m.rooms[data.ID]; exists {
			continue
		}
		r := newRoom(m, data, true)
		m.rooms[data.ID] = r
		restored = append(restored, r)
	}
	count := len(m.rooms)
	m.mutex.Unlock()
	m.metrics.SetActiveRooms(count)

	for _, r := range restored {
		m.resume(r)
	}
	logger.Log.Infof("Restored %d rooms", len(restored))
	return len(restored), nil
}

func (m *Manager) resume(r *Room) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m.snapMu.Lock()
	m.snapshots[r.data.ID] = r.data.Clone()
	m.snapMu.Unlock()

	gs := r.data.GameState
	if gs.PhaseDuration <= 0 || gs.PhaseStartTime <= 0 {
		return
	}
	elapsed := float64(m.now().UnixMilli()-gs.PhaseStartTime) / 1000
	remaining := gs.PhaseDuration - elapsed
	if remaining > 0 {
		logger.Log.Infof("Room %s: resuming timer, %.1fs left", r.data.ID, remaining)
		r.armTimer(remaining)
		return
	}
	logger.Log.Infof("Room %s: timer expired while down, advancing", r.data.ID)
	m.advance(r, TriggerRecovery)
}

// Shutdown cancels every timer, stops the writer and writes a final
// snapshot.
func (m *Manager) Shutdown() {
	m.timers.Stop()
	m.stopOnce.Do(func() { close(m.stopWriter) })
	<-m.writerDone

	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	for _, r := range rooms {
		r.mutex.Lock()
		r.timerID = 0
		r.mutex.Unlock()
	}
	m.persist()
	logger.Log.Infof("Room manager stopped with %d rooms", len(rooms))
}

// --- 持久化 ---

// commit records the room's current data and schedules a snapshot write.
// Caller holds the room lock.
func (m *Manager) commit(r *Room) {
	m.snapMu.Lock()
	m.snapshots[r.data.ID] = r.data.Clone()
	m.snapMu.Unlock()
	m.markDirty()
}

func (m *Manager) markDirty() {
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

// writeLoop 后台写快照，直到 Shutdown
func (m *Manager) writeLoop() {
	defer close(m.writerDone)
	for {
		select {
		case <-m.dirty:
			m.persist()
		case <-m.stopWriter:
			return
		}
	}
}

// persist writes all committed rooms. Failures are logged and counted; the
// game keeps running from memory.
func (m *Manager) persist() {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.snapMu.Lock()
	rooms := make([]*models.Room, 0, len(m.snapshots))
	for _, r := range m.snapshots {
		rooms = append(rooms, r)
	}
	m.snapMu.Unlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveSnapshot(ctx, rooms); err != nil {
		m.metrics.PersistFailed()
		logger.Log.Errorf("Failed to save rooms: %v", err)
	}
}

func (m *Manager) saveHistory(entry models.HistoryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveHistoryEntry(ctx, entry); err != nil {
		m.metrics.PersistFailed()
		logger.Log.Errorf("Failed to save game history for room %s: %v", entry.RoomID, err)
		return
	}
	logger.Log.Infof("Game history saved for room %s", entry.RoomID)
}

func (m *Manager) publish(roomID, event string, data interface{}) {
	if err := m.publisher.Publish(roomID, event, data); err != nil {
		logger.Log.Warnf("Room %s: publish %s failed: %v", roomID, event, err)
	}
}
