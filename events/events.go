// Package events publishes room lifecycle events to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ziqiy-dream/werewolf-judge/logger"
)

// 事件名
const (
	RoomCreated   = "room_created"
	RoomDeleted   = "room_deleted"
	GameStarted   = "game_started"
	PhaseChanged  = "phase_changed"
	NightResolved = "night_resolved"
)

// Publisher is what the room manager needs from an event bus.
type Publisher interface {
	Publish(roomID, event string, data interface{}) error
	Close()
}

// Event is the message body on the wire.
type Event struct {
	RoomID string          `json:"roomId"`
	Event  string          `json:"event"`
	At     time.Time       `json:"at"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Subject returns <prefix>.room.<roomID>.<event>.
func Subject(prefix, roomID, event string) string {
	return fmt.Sprintf("%s.room.%s.%s", prefix, roomID, event)
}

// Encode builds the message body for one event.
func Encode(roomID, event string, at time.Time, data interface{}) ([]byte, error) {
	e := Event{RoomID: roomID, Event: event, At: at.UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		e.Data = raw
	}
	return json.Marshal(e)
}

// NATSPublisher 事件发布器
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials url and returns a publisher using prefix for subjects.
func Connect(url, prefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("werewolf-judge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Log.Warnf("Disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Infof("Reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.Timeout(10 * time.Second),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return NewNATSPublisher(nc, prefix), nil
}

func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "werewolf"
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Publish(roomID, event string, data interface{}) error {
	body, err := Encode(roomID, event, time.Now(), data)
	if err != nil {
		return err
	}
	subject := Subject(p.prefix, roomID, event)
	if err := p.nc.Publish(subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}

// NopPublisher drops every event. Used when no NATS url is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(roomID, event string, data interface{}) error { return nil }
func (NopPublisher) Close()                                               {}
