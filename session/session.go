// session/session.go
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/ziqiy-dream/werewolf-judge/network"
)

// Session 一个 websocket 连接。ID 同时也是玩家 ID。
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	lastActive time.Time
	rooms      map[string]struct{} // 已加入的房间
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		rooms:      make(map[string]struct{}),
	}
}

func (s *Session) Send(event string, data interface{}) error {
	return s.Conn.Send(event, data)
}

func (s *Session) GetID() string {
	return s.ID
}

// Touch marks the session as active now.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) JoinRoom(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rooms[roomID] = struct{}{}
}

func (s *Session) LeaveRoom(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.rooms, roomID)
}

// Rooms returns the joined room ids in sorted order.
func (s *Session) Rooms() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}
