package room

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/persistence"
	"github.com/ziqiy-dream/werewolf-judge/state"
	"github.com/ziqiy-dream/werewolf-judge/view"
)

type sent struct {
	PlayerID string
	Event    string
	Data     interface{}
}

// MockBroadcaster records every outbound message.
type MockBroadcaster struct {
	mutex sync.Mutex
	msgs  []sent
}

func (b *MockBroadcaster) SendToPlayer(playerID, event string, data interface{}) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.msgs = append(b.msgs, sent{PlayerID: playerID, Event: event, Data: data})
	return nil
}

func (b *MockBroadcaster) count(playerID, event string) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	n := 0
	for _, m := range b.msgs {
		if m.PlayerID == playerID && m.Event == event {
			n++
		}
	}
	return n
}

// lastView returns the newest room_update sent to playerID.
func (b *MockBroadcaster) lastView(playerID string) (view.ClientView, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for i := len(b.msgs) - 1; i >= 0; i-- {
		m := b.msgs[i]
		if m.PlayerID == playerID && m.Event == "room_update" {
			return m.Data.(view.ClientView), true
		}
	}
	return view.ClientView{}, false
}

// MockStore blocks every snapshot write until release is closed.
type MockStore struct {
	*persistence.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func newMockStore() *MockStore {
	return &MockStore{
		MemoryStore: persistence.NewMemoryStore(0),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (s *MockStore) SaveSnapshot(ctx context.Context, rooms []*models.Room) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MemoryStore.SaveSnapshot(ctx, rooms)
}

// MockMetrics counts phase advances by trigger.
type MockMetrics struct {
	mutex    sync.Mutex
	advances map[string]int
	deaths   map[string]int
	rejected int
	rooms    int
}

func newMockMetrics() *MockMetrics {
	return &MockMetrics{advances: make(map[string]int), deaths: make(map[string]int)}
}

func (m *MockMetrics) SetActiveRooms(count int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rooms = count
}

func (m *MockMetrics) PhaseAdvanced(phase, trigger string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.advances[trigger]++
}

func (m *MockMetrics) PlayerDied(cause string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.deaths[cause]++
}

func (m *MockMetrics) ActionRejected() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejected++
}

func (m *MockMetrics) PersistFailed() {}

func (m *MockMetrics) advancesBy(trigger string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.advances[trigger]
}

type clock struct {
	mutex sync.Mutex
	t     time.Time
}

func (c *clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.t = t
}

type fixture struct {
	mgr     *Manager
	store   *persistence.MemoryStore
	bc      *MockBroadcaster
	metrics *MockMetrics
	clock   *clock
}

var t0 = time.Date(2026, 4, 1, 21, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, durations state.Durations) *fixture {
	t.Helper()
	f := &fixture{
		store:   persistence.NewMemoryStore(0),
		bc:      &MockBroadcaster{},
		metrics: newMockMetrics(),
		clock:   &clock{t: t0},
	}
	f.mgr = NewManager(Options{
		Store:       f.store,
		Broadcaster: f.bc,
		Metrics:     f.metrics,
		Durations:   durations,
		TimerTick:   2 * time.Millisecond,
		Now:         f.clock.Now,
		Rand:        rand.New(rand.NewSource(42)),
	})
	t.Cleanup(f.mgr.Shutdown)
	return f
}

// stored flushes pending commits and returns what the store holds.
func (f *fixture) stored(t *testing.T) []*models.Room {
	t.Helper()
	f.mgr.persist()
	rooms, err := f.store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	return rooms
}

func player(id string) models.Player {
	return models.Player{ID: id, Nickname: "nick-" + id, Avatar: id}
}

// seatedRoom creates a room hosted by "p0" and joins p1..p(n-1).
func (f *fixture) seatedRoom(t *testing.T, n int) string {
	t.Helper()
	r, err := f.mgr.Create(player("p0"))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < n; i++ {
		if _, err := f.mgr.Join(r.ID, player(fmt.Sprintf("p%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	return r.ID
}

func (f *fixture) pending() int {
	return f.mgr.timers.Pending()
}

func playerWith(r *models.Room, role models.Role) *models.Player {
	for _, p := range r.Players {
		if p.Role == role {
			return p
		}
	}
	return nil
}
