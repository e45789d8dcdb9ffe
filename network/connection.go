// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrBadEnvelope 消息格式错误，连接仍然可用
var ErrBadEnvelope = errors.New("bad envelope")

// Message 消息信封：事件名 + JSON 数据
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (m *Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Event, err)
	}
	return nil
}

// Encode builds the wire form of one outbound event.
func Encode(event string, data interface{}) ([]byte, error) {
	msg := Message{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

type Connection interface {
	Send(event string, data interface{}) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadMessage() (*Message, error)
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(event string, data interface{}) error {
	packet, err := Encode(event, data)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	if c.heartbeat > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.heartbeat))
	}
	return c.conn.WriteMessage(websocket.TextMessage, packet)
}

func (c *WSConnection) ReadMessage() (*Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if c.heartbeat > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrBadEnvelope)
	}
	return &msg, nil
}

// SetHeartbeat makes reads fail when nothing arrives for two intervals.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
