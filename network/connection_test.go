package network

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode(EventError, map[string]string{"message": "Room not found"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"message":"Room not found"}}`, string(raw))

	raw, err = Encode(EventRoomLeft, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"room_left"}`, string(raw))

	msg := Message{Event: EventJoinRoom, Data: []byte(`{"roomId":"ABC123"}`)}
	var req struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, msg.Decode(&req))
	assert.Equal(t, "ABC123", req.RoomID)

	bad := Message{Event: EventJoinRoom, Data: []byte(`[`)}
	assert.Error(t, bad.Decode(&req))
}

func TestWSConnection_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewWSConnection(conn)
		defer c.Close()
		msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		c.Send(EventRoomUpdate, map[string]string{"echo": msg.Event})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	client := NewWSConnection(conn)
	defer client.Close()

	require.NoError(t, client.Send(EventCreateRoom, map[string]string{"nickname": "a"}))
	msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, EventRoomUpdate, msg.Event)
	assert.JSONEq(t, `{"echo":"create_room"}`, string(msg.Data))
}

func TestWSConnection_BadEnvelopeKeepsConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewWSConnection(conn)
		defer c.Close()
		for {
			msg, err := c.ReadMessage()
			if errors.Is(err, ErrBadEnvelope) {
				c.Send(EventError, map[string]string{"message": "bad"})
				continue
			}
			if err != nil {
				return
			}
			c.Send(EventRoomUpdate, map[string]string{"echo": msg.Event})
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	client := NewWSConnection(conn)
	defer client.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))
	msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, EventError, msg.Event)

	require.NoError(t, client.Send(EventHeartbeat, nil))
	msg, err = client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"heartbeat"}`, string(msg.Data))
}
