package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/ziqiy-dream/werewolf-judge/config"
	"github.com/ziqiy-dream/werewolf-judge/logger"
	"github.com/ziqiy-dream/werewolf-judge/monitor"
	"github.com/ziqiy-dream/werewolf-judge/network"
	"github.com/ziqiy-dream/werewolf-judge/room"
	gameserver_rpc "github.com/ziqiy-dream/werewolf-judge/rpc"
	"github.com/ziqiy-dream/werewolf-judge/services"
	"github.com/ziqiy-dream/werewolf-judge/session"
)

type GameServer struct {
	cfg            config.ServerConfig
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	monitor        *monitor.Monitor
	rpcServer      *gameserver_rpc.Server
	httpServer     *http.Server
	metricsServer  *http.Server
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(cfg config.ServerConfig, rooms *room.Manager, sessions *session.Manager, history *services.HistoryService, mon *monitor.Monitor) (*GameServer, error) {
	s := &GameServer{
		cfg:            cfg,
		roomManager:    rooms,
		sessionManager: sessions,
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化RPC服务器
	rpcServer, err := gameserver_rpc.NewServer(cfg.RPCAddress)
	if err != nil {
		return nil, fmt.Errorf("create RPC server: %w", err)
	}
	// 注册RPC服务
	if err := rpcServer.Register(gameserver_rpc.NewAdmin(rooms, history)); err != nil {
		rpcServer.Stop()
		return nil, fmt.Errorf("register admin service: %w", err)
	}
	s.rpcServer = rpcServer

	s.httpServer = &http.Server{Addr: cfg.HTTPAddress, Handler: s.Handler()}
	if cfg.MetricsAddress != "" {
		s.metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mon.Handler()}
	}
	return s, nil
}

// Handler routes the websocket endpoint, health check and QR codes.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /rooms/{id}/qr.png", s.handleQRCode)
	return mux
}

// Start blocks until the HTTP server stops.
func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	if s.metricsServer != nil {
		go func() {
			logger.Log.Infof("Metrics listening on %s", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listeners and closes every websocket connection.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.rpcServer.Stop()
		if s.metricsServer != nil {
			s.metricsServer.Shutdown(ctx)
		}
		err = s.httpServer.Shutdown(ctx)
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
	})
	return err
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"rooms":    s.roomManager.Count(),
		"sessions": s.sessionManager.Count(),
	})
}

// handleQRCode renders a join link for the room as a PNG.
func (s *GameServer) handleQRCode(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, ok := s.roomManager.Get(roomID); !ok {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(JoinURL(s.cfg.PublicURL, roomID), qrcode.Medium, 256)
	if err != nil {
		logger.Log.Errorf("QR code for room %s: %v", roomID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// JoinURL is the link a player scans to join roomID.
func JoinURL(publicURL, roomID string) string {
	return fmt.Sprintf("%s/?room=%s", publicURL, roomID)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	if s.cfg.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.cfg.Heartbeat)
	}
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		// 断线视同离开所有房间
		for _, roomID := range sess.Rooms() {
			s.roomManager.Remove(roomID, sess.GetID())
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			msg, err := wsConn.ReadMessage()
			if errors.Is(err, network.ErrBadEnvelope) {
				logger.Log.Debugf("Session %s: %v", sess.GetID(), err)
				continue
			}
			if err != nil {
				return
			}
			s.handleMessage(sess, msg)
		}
	}
}
