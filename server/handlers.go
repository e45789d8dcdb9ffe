package server

import (
	"errors"
	"time"

	"github.com/ziqiy-dream/werewolf-judge/logger"
	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/network"
	"github.com/ziqiy-dream/werewolf-judge/room"
	"github.com/ziqiy-dream/werewolf-judge/session"
	"github.com/ziqiy-dream/werewolf-judge/view"
)

type createRoomRequest struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type joinRoomRequest struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type roomRequest struct {
	RoomID string `json:"roomId"`
}

type settingsRequest struct {
	RoomID   string              `json:"roomId"`
	Settings models.GameSettings `json:"settings"`
}

type actionRequest struct {
	RoomID string             `json:"roomId"`
	Action models.NightAction `json:"action"`
}

type errorMessage struct {
	Message string `json:"message"`
}

func (s *GameServer) handleMessage(sess *session.Session, msg *network.Message) {
	start := time.Now()
	sess.Touch()

	event := msg.Event
	switch msg.Event {
	case network.EventHeartbeat:
	case network.EventCreateRoom:
		s.handleCreateRoom(sess, msg)
	case network.EventJoinRoom:
		s.handleJoinRoom(sess, msg)
	case network.EventUpdateSettings:
		s.handleUpdateSettings(sess, msg)
	case network.EventStartGame:
		s.handleStartGame(sess, msg)
	case network.EventGameAction:
		s.handleGameAction(sess, msg)
	case network.EventNextPhase:
		s.handleNextPhase(sess, msg)
	case network.EventLeaveRoom:
		s.handleLeaveRoom(sess, msg)
	case network.EventDisbandRoom:
		s.handleDisbandRoom(sess, msg)
	default:
		logger.Log.Infof("Unknown event %q from session %s", msg.Event, sess.GetID())
		event = "unknown"
	}

	s.monitor.IncMessagesReceived(event)
	s.monitor.ObserveMessageLatency(time.Since(start))
}

// decode logs and drops malformed payloads.
func decode(sess *session.Session, msg *network.Message, v interface{}) bool {
	if err := msg.Decode(v); err != nil {
		logger.Log.Debugf("Session %s: %v", sess.GetID(), err)
		return false
	}
	return true
}

func sendError(sess *session.Session, message string) {
	if err := sess.Send(network.EventError, errorMessage{Message: message}); err != nil {
		logger.Log.Debugf("Session %s: send error: %v", sess.GetID(), err)
	}
}

// ignore logs failures that are not reported to the client.
func ignore(sess *session.Session, event string, err error) {
	if err != nil {
		logger.Log.Debugf("Session %s: %s ignored: %v", sess.GetID(), event, err)
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, msg *network.Message) {
	var req createRoomRequest
	if !decode(sess, msg, &req) {
		return
	}

	r, err := s.roomManager.Create(models.Player{ID: sess.GetID(), Nickname: req.Nickname, Avatar: req.Avatar})
	if err != nil {
		logger.Log.Errorf("Session %s create room: %v", sess.GetID(), err)
		sendError(sess, err.Error())
		return
	}
	sess.JoinRoom(r.ID)
}

func (s *GameServer) handleJoinRoom(sess *session.Session, msg *network.Message) {
	var req joinRoomRequest
	if !decode(sess, msg, &req) {
		return
	}

	p := models.Player{ID: sess.GetID(), Nickname: req.Nickname, Avatar: req.Avatar}
	_, err := s.roomManager.Join(req.RoomID, p)
	switch {
	case err == nil:
		sess.JoinRoom(req.RoomID)
	case errors.Is(err, room.ErrRoomNotFound):
		sendError(sess, "Room not found")
	case errors.Is(err, room.ErrGameStarted):
		sendError(sess, "Game already started")
	case errors.Is(err, room.ErrAlreadyInRoom):
		// 重复加入：补发当前视图
		sess.JoinRoom(req.RoomID)
		if data, ok := s.roomManager.Get(req.RoomID); ok {
			sess.Send(network.EventRoomUpdate, view.Project(data, sess.GetID()))
		}
	default:
		ignore(sess, msg.Event, err)
	}
}

func (s *GameServer) handleUpdateSettings(sess *session.Session, msg *network.Message) {
	var req settingsRequest
	if !decode(sess, msg, &req) {
		return
	}
	_, err := s.roomManager.UpdateSettings(req.RoomID, sess.GetID(), req.Settings)
	ignore(sess, msg.Event, err)
}

func (s *GameServer) handleStartGame(sess *session.Session, msg *network.Message) {
	var req roomRequest
	if !decode(sess, msg, &req) {
		return
	}

	_, err := s.roomManager.StartGame(req.RoomID, sess.GetID())
	switch {
	case err == nil:
	case errors.Is(err, room.ErrRoomNotFound):
		sendError(sess, "Room not found")
	case isSettingsError(err):
		sendError(sess, err.Error())
	default:
		ignore(sess, msg.Event, err)
	}
}

func isSettingsError(err error) bool {
	return errors.Is(err, models.ErrRoleCountMismatch) ||
		errors.Is(err, models.ErrNoWerewolf) ||
		errors.Is(err, models.ErrUnknownRole) ||
		errors.Is(err, models.ErrNegativeCount)
}

// handleGameAction always attributes the action to the sending connection.
func (s *GameServer) handleGameAction(sess *session.Session, msg *network.Message) {
	var req actionRequest
	if !decode(sess, msg, &req) {
		return
	}
	action := req.Action
	action.PlayerID = sess.GetID()
	ignore(sess, msg.Event, s.roomManager.SubmitAction(req.RoomID, action))
}

func (s *GameServer) handleNextPhase(sess *session.Session, msg *network.Message) {
	var req roomRequest
	if !decode(sess, msg, &req) {
		return
	}
	_, err := s.roomManager.NextPhase(req.RoomID, sess.GetID())
	ignore(sess, msg.Event, err)
}

func (s *GameServer) handleLeaveRoom(sess *session.Session, msg *network.Message) {
	var req roomRequest
	if !decode(sess, msg, &req) {
		return
	}

	// 房间不存在或已离开时也回 room_left
	_, err := s.roomManager.Remove(req.RoomID, sess.GetID())
	ignore(sess, msg.Event, err)
	sess.LeaveRoom(req.RoomID)
	sess.Send(network.EventRoomLeft, roomRequest{RoomID: req.RoomID})
}

func (s *GameServer) handleDisbandRoom(sess *session.Session, msg *network.Message) {
	var req roomRequest
	if !decode(sess, msg, &req) {
		return
	}

	members, err := s.roomManager.Disband(req.RoomID, sess.GetID())
	if err != nil {
		ignore(sess, msg.Event, err)
		return
	}
	for _, id := range members {
		if member, ok := s.sessionManager.Get(id); ok {
			member.LeaveRoom(req.RoomID)
		}
	}
}
