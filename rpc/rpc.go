package rpc

import (
	"context"
	"net"
	"net/rpc"
	"time"

	"github.com/ziqiy-dream/werewolf-judge/logger"
	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/room"
	"github.com/ziqiy-dream/werewolf-judge/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer creates a new RPC server listening on addr.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rpc.NewServer(),
	}, nil
}

// Register publishes the receiver's exported methods under its type name.
func (s *Server) Register(rcvr interface{}) error {
	return s.rpc.Register(rcvr)
}

func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// Admin exposes room inspection and history over net/rpc. Methods follow
// the net/rpc signature: exported args, pointer reply, error return.
type Admin struct {
	rooms   *room.Manager
	history *services.HistoryService
	timeout time.Duration
}

func NewAdmin(rooms *room.Manager, history *services.HistoryService) *Admin {
	return &Admin{rooms: rooms, history: history, timeout: 5 * time.Second}
}

// ListRoomsArgs filters by phase; an empty Phase lists every room.
type ListRoomsArgs struct {
	Phase models.Phase
}

type RoomArgs struct {
	RoomID string
}

type RoomSummary struct {
	ID       string
	Players  int
	Phase    models.Phase
	Night    models.NightPhase
	DayCount int
}

type ListRoomsReply struct {
	Rooms []RoomSummary
}

func (a *Admin) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, r := range a.rooms.List() {
		if args.Phase != "" && r.GameState.Phase != args.Phase {
			continue
		}
		reply.Rooms = append(reply.Rooms, RoomSummary{
			ID:       r.ID,
			Players:  len(r.Players),
			Phase:    r.GameState.Phase,
			Night:    r.GameState.NightPhase,
			DayCount: r.GameState.DayCount,
		})
	}
	return nil
}

// GetRoom returns the full room, roles included.
func (a *Admin) GetRoom(args *RoomArgs, reply *models.Room) error {
	r, ok := a.rooms.Get(args.RoomID)
	if !ok {
		return room.ErrRoomNotFound
	}
	*reply = *r
	return nil
}

type AdvanceReply struct {
	State string
}

func (a *Admin) Advance(args *RoomArgs, reply *AdvanceReply) error {
	id, err := a.rooms.Advance(args.RoomID)
	if err != nil {
		return err
	}
	reply.State = id
	logger.Log.Infof("Admin advanced room %s to %s", args.RoomID, id)
	return nil
}

type DeleteRoomReply struct {
	Members []string
}

func (a *Admin) DeleteRoom(args *RoomArgs, reply *DeleteRoomReply) error {
	members, err := a.rooms.Delete(args.RoomID)
	if err != nil {
		return err
	}
	reply.Members = members
	return nil
}

// HistoryArgs limits the result to the newest Limit entries; 0 means all.
type HistoryArgs struct {
	Limit int
}

type HistoryReply struct {
	Entries []models.HistoryEntry
}

func (a *Admin) RecentHistory(args *HistoryArgs, reply *HistoryReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	entries, err := a.history.Recent(ctx, args.Limit)
	if err != nil {
		return err
	}
	reply.Entries = entries
	return nil
}

func (a *Admin) Stats(args *HistoryArgs, reply *services.Stats) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	stats, err := a.history.Stats(ctx, args.Limit)
	if err != nil {
		return err
	}
	*reply = *stats
	return nil
}
