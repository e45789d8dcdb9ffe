package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ziqiy-dream/werewolf-judge/broadcast"
	"github.com/ziqiy-dream/werewolf-judge/config"
	"github.com/ziqiy-dream/werewolf-judge/events"
	"github.com/ziqiy-dream/werewolf-judge/logger"
	"github.com/ziqiy-dream/werewolf-judge/monitor"
	"github.com/ziqiy-dream/werewolf-judge/persistence"
	"github.com/ziqiy-dream/werewolf-judge/room"
	"github.com/ziqiy-dream/werewolf-judge/server"
	"github.com/ziqiy-dream/werewolf-judge/services"
	"github.com/ziqiy-dream/werewolf-judge/session"
	"github.com/ziqiy-dream/werewolf-judge/state"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := persistence.Open(ctx, cfg.Storage)
	cancel()
	if err != nil {
		logger.Log.Fatalf("Failed to open %q storage: %v", cfg.Storage.Driver, err)
	}
	defer store.Close()
	logger.Log.Infof("Storage %q ready.", cfg.Storage.Driver)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		nats, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to NATS: %v", err)
		}
		publisher = nats
	}
	defer publisher.Close()

	mon := monitor.NewMonitor("werewolf", nil)
	sessions := session.NewManager()
	rooms := room.NewManager(room.Options{
		Store:       store,
		Broadcaster: broadcast.NewSessionBroadcaster(sessions),
		Publisher:   publisher,
		Metrics:     mon,
		Durations:   durations(cfg.Game.Durations),
		TimerTick:   cfg.Game.TimerTick,
	})

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := rooms.Restore(ctx); err != nil {
		logger.Log.Errorf("Failed to restore rooms, starting empty: %v", err)
	}
	cancel()

	// Initialize Game Server
	gameServer, err := server.NewGameServer(cfg.Server, rooms, sessions, services.NewHistoryService(store), mon)
	if err != nil {
		logger.Log.Fatalf("Failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Log.Infof("Received %s, shutting down.", sig)
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Server shutdown: %v", err)
	}
	// 停掉所有计时器并落盘
	rooms.Shutdown()
}

func durations(c config.DurationsConfig) state.Durations {
	return state.Durations{
		Closing:  c.Closing,
		Werewolf: c.Werewolf,
		Seer:     c.Seer,
		Witch:    c.Witch,
		Guard:    c.Guard,
		Day:      c.Day,
	}
}
