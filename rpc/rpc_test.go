package rpc

import (
	"context"
	"fmt"
	"net/rpc"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/persistence"
	"github.com/ziqiy-dream/werewolf-judge/room"
	"github.com/ziqiy-dream/werewolf-judge/services"
	"github.com/ziqiy-dream/werewolf-judge/state"
)

type adminFixture struct {
	mgr    *room.Manager
	store  *persistence.MemoryStore
	client *rpc.Client
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	store := persistence.NewMemoryStore(0)
	mgr := room.NewManager(room.Options{Store: store})
	t.Cleanup(mgr.Shutdown)

	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Register(NewAdmin(mgr, services.NewHistoryService(store))))
	go srv.Start()
	t.Cleanup(srv.Stop)

	client, err := rpc.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return &adminFixture{mgr: mgr, store: store, client: client}
}

// startedRoom seats six players on the default settings and deals roles.
func (f *adminFixture) startedRoom(t *testing.T) string {
	t.Helper()
	r, err := f.mgr.Create(models.Player{ID: "p0", Nickname: "host"})
	require.NoError(t, err)
	for i := 1; i < 6; i++ {
		_, err := f.mgr.Join(r.ID, models.Player{ID: fmt.Sprintf("p%d", i), Nickname: fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
	}
	_, err = f.mgr.StartGame(r.ID, "p0")
	require.NoError(t, err)
	return r.ID
}

func TestAdmin_ListAndGetRoom(t *testing.T) {
	f := newAdminFixture(t)
	started := f.startedRoom(t)
	waiting, err := f.mgr.Create(models.Player{ID: "solo", Nickname: "solo"})
	require.NoError(t, err)

	var list ListRoomsReply
	require.NoError(t, f.client.Call("Admin.ListRooms", &ListRoomsArgs{}, &list))
	assert.Len(t, list.Rooms, 2)

	var setup ListRoomsReply
	require.NoError(t, f.client.Call("Admin.ListRooms", &ListRoomsArgs{Phase: models.PhaseSetup}, &setup))
	require.Len(t, setup.Rooms, 1)
	assert.Equal(t, started, setup.Rooms[0].ID)
	assert.Equal(t, 6, setup.Rooms[0].Players)

	var full models.Room
	require.NoError(t, f.client.Call("Admin.GetRoom", &RoomArgs{RoomID: started}, &full))
	require.Len(t, full.Players, 6)
	for _, p := range full.Players {
		assert.NotEmpty(t, p.Role, "admin view keeps roles")
	}

	err = f.client.Call("Admin.GetRoom", &RoomArgs{RoomID: "ZZZZZZ"}, &full)
	require.Error(t, err)
	assert.Equal(t, room.ErrRoomNotFound.Error(), err.Error())
	assert.NotEqual(t, started, waiting.ID)
}

func TestAdmin_AdvanceAndDelete(t *testing.T) {
	f := newAdminFixture(t)
	id := f.startedRoom(t)

	var adv AdvanceReply
	require.NoError(t, f.client.Call("Admin.Advance", &RoomArgs{RoomID: id}, &adv))
	assert.Equal(t, state.IDNightClosing, adv.State)

	var del DeleteRoomReply
	require.NoError(t, f.client.Call("Admin.DeleteRoom", &RoomArgs{RoomID: id}, &del))
	assert.Len(t, del.Members, 6)
	assert.Equal(t, 0, f.mgr.Count())

	assert.Error(t, f.client.Call("Admin.Advance", &RoomArgs{RoomID: id}, &adv))
}

func TestAdmin_HistoryAndStats(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	for _, id := range []string{"A00000", "B00000", "C00000"} {
		require.NoError(t, f.store.SaveHistoryEntry(ctx, models.HistoryEntry{
			RoomID:  id,
			Players: []models.HistoryPlayer{{Nickname: "x", Role: models.RoleSeer, DeathReason: models.CauseWerewolf}},
		}))
	}

	var hist HistoryReply
	require.NoError(t, f.client.Call("Admin.RecentHistory", &HistoryArgs{Limit: 2}, &hist))
	require.Len(t, hist.Entries, 2)
	assert.Equal(t, "C00000", hist.Entries[0].RoomID)

	var stats services.Stats
	require.NoError(t, f.client.Call("Admin.Stats", &HistoryArgs{}, &stats))
	assert.Equal(t, 3, stats.Games)
	assert.Equal(t, 3, stats.Deaths[models.CauseWerewolf])
	assert.Equal(t, 3, stats.Roles[models.RoleSeer])
}
