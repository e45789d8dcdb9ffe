package state

import (
	"github.com/ziqiy-dream/werewolf-judge/logger"
	"github.com/ziqiy-dream/werewolf-judge/models"
)

// State ids. Night sub-phases are prefixed with the top-level phase.
const (
	IDWaiting       = "waiting"
	IDSetup         = "setup"
	IDNightClosing  = "night:closing"
	IDNightWerewolf = "night:werewolf"
	IDNightSeer     = "night:seer"
	IDNightWitch    = "night:witch"
	IDNightGuard    = "night:guard"
	IDDay           = "day"
	IDVote          = "vote"
	IDGameOver      = "game_over"
)

// NewPhaseMachine returns a machine positioned on the state described by the
// room's game state. A fresh room enters waiting; a restored room resumes
// where its snapshot left off without re-running OnEnter.
func NewPhaseMachine(room RoomContext, restored bool) *BaseStateMachine {
	current := FromGame(room)
	var sm *BaseStateMachine
	if restored {
		sm = ResumeStateMachine(current)
	} else {
		sm = NewBaseStateMachine(current)
	}
	registerSkipRules(sm, room)
	return sm
}

// registerSkipRules forbids entering a role sub-phase whose configured count is 0.
func registerSkipRules(sm *BaseStateMachine, room RoomContext) {
	hasRole := func(role models.Role) func() bool {
		return func() bool { return room.Data().Settings.Count(role) > 0 }
	}

	from := []State{NewWerewolfState(room), NewSeerState(room), NewWitchState(room)}
	targets := []struct {
		state State
		role  models.Role
	}{
		{NewSeerState(room), models.RoleSeer},
		{NewWitchState(room), models.RoleWitch},
		{NewGuardState(room), models.RoleGuard},
	}
	for _, f := range from {
		for _, t := range targets {
			sm.AddTransition(f, t.state, hasRole(t.role))
		}
	}
}

// FromGame maps the persisted phase fields to a state object.
func FromGame(room RoomContext) State {
	gs := room.Data().GameState
	switch gs.Phase {
	case models.PhaseSetup:
		return NewSetupState(room)
	case models.PhaseNight:
		switch gs.NightPhase {
		case models.NightWerewolf:
			return NewWerewolfState(room)
		case models.NightSeer:
			return NewSeerState(room)
		case models.NightWitch:
			return NewWitchState(room)
		case models.NightGuard:
			return NewGuardState(room)
		default:
			return NewClosingState(room)
		}
	case models.PhaseDay:
		return NewDayState(room)
	case models.PhaseVote:
		return &terminalState{RoomStateBase{ID: IDVote, Room: room}}
	case models.PhaseGameOver:
		return &terminalState{RoomStateBase{ID: IDGameOver, Room: room}}
	default:
		return NewWaitingState(room)
	}
}

// terminalState covers phases that exist in the data model but have no
// transitions yet.
type terminalState struct {
	RoomStateBase
}

// NewWaitingState creates a new waiting state.
func NewWaitingState(room RoomContext) *WaitingState {
	return &WaitingState{RoomStateBase{ID: IDWaiting, Room: room}}
}

// 等待状态：玩家加入，房主调整配置。没有后继状态，开局走 StartGame。
type WaitingState struct {
	RoomStateBase
}

// SetupState deals roles. It has no timer; the host advances manually.
type SetupState struct {
	RoomStateBase
}

func NewSetupState(room RoomContext) *SetupState {
	return &SetupState{RoomStateBase{ID: IDSetup, Room: room}}
}

func (s *SetupState) OnEnter() {
	data := s.Room.Data()
	tokens := data.Settings.Tokens()

	rng := s.Room.Rand()
	for i := len(tokens) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}

	for i, p := range data.Players {
		role := models.RoleVillager
		if i < len(tokens) {
			role = tokens[i]
		}
		p.Role = role
		p.IsAlive = true
		p.DeathReason = ""
	}

	gs := models.NewGameState()
	gs.Phase = models.PhaseSetup
	data.GameState = gs
	s.Room.SetPhaseTimer(0)

	logger.Log.Infof("Room %s dealt %d roles", s.Room.GetID(), len(data.Players))
}

func (s *SetupState) Next() []State {
	return []State{NewClosingState(s.Room)}
}

// nightState carries what every night sub-phase shares.
type nightState struct {
	RoomStateBase
	sub  models.NightPhase
	role models.Role
}

func (s *nightState) enter(seconds float64) {
	gs := s.game()
	gs.Phase = models.PhaseNight
	gs.NightPhase = s.sub
	s.Room.SetPhaseTimer(seconds)
}

// authorize checks the sub-phase and the actor's role and liveness.
func (s *nightState) authorize(player *models.Player, action models.NightAction) error {
	gs := s.game()
	if gs.Phase != models.PhaseNight || gs.NightPhase != s.sub {
		return rejectf("phase is %s/%s, not night/%s", gs.Phase, gs.NightPhase, s.sub)
	}
	if player == nil || !player.IsAlive {
		return rejectf("actor is missing or dead")
	}
	if s.role == "" || player.Role != s.role {
		return rejectf("%s cannot act during %s", player.Role, s.sub)
	}
	return nil
}

func (s *nightState) record(action models.NightAction) {
	gs := s.game()
	gs.NightActions = append(gs.NightActions, action)
}

// nightTail lists what may follow the given sub-phase; skip rules prune it.
func nightTail(room RoomContext, after models.NightPhase) []State {
	switch after {
	case models.NightWerewolf:
		return []State{NewSeerState(room), NewWitchState(room), NewGuardState(room), NewDayState(room)}
	case models.NightSeer:
		return []State{NewWitchState(room), NewGuardState(room), NewDayState(room)}
	case models.NightWitch:
		return []State{NewGuardState(room), NewDayState(room)}
	default:
		return []State{NewDayState(room)}
	}
}

// ClosingState 天黑请闭眼
type ClosingState struct {
	nightState
}

func NewClosingState(room RoomContext) *ClosingState {
	return &ClosingState{nightState{RoomStateBase: RoomStateBase{ID: IDNightClosing, Room: room}, sub: models.NightClosing}}
}

func (s *ClosingState) OnEnter() {
	gs := s.game()
	gs.DayCount++
	gs.ResetNight()
	s.enter(s.Room.Durations().Closing)
}

func (s *ClosingState) HandleAction(player *models.Player, action models.NightAction) error {
	return rejectf("no actions accepted while eyes close")
}

func (s *ClosingState) Next() []State {
	return []State{NewWerewolfState(s.Room)}
}

// WerewolfState 狼人投票
type WerewolfState struct {
	nightState
}

func NewWerewolfState(room RoomContext) *WerewolfState {
	return &WerewolfState{nightState{RoomStateBase: RoomStateBase{ID: IDNightWerewolf, Room: room}, sub: models.NightWerewolf, role: models.RoleWerewolf}}
}

func (s *WerewolfState) OnEnter() {
	s.game().WerewolfVotes = []models.WolfVote{}
	s.enter(s.Room.Durations().Werewolf)
}

func (s *WerewolfState) OnExit() {
	gs := s.game()
	gs.CurrentWolfTarget = TallyVotes(gs.WerewolfVotes)
}

func (s *WerewolfState) Next() []State {
	return nightTail(s.Room, models.NightWerewolf)
}

// SeerState 预言家查验
type SeerState struct {
	nightState
}

func NewSeerState(room RoomContext) *SeerState {
	return &SeerState{nightState{RoomStateBase: RoomStateBase{ID: IDNightSeer, Room: room}, sub: models.NightSeer, role: models.RoleSeer}}
}

func (s *SeerState) OnEnter() {
	s.game().SeerResult = nil
	s.enter(s.Room.Durations().Seer)
}

func (s *SeerState) Next() []State {
	return nightTail(s.Room, models.NightSeer)
}

// WitchState 女巫用药
type WitchState struct {
	nightState
}

func NewWitchState(room RoomContext) *WitchState {
	return &WitchState{nightState{RoomStateBase: RoomStateBase{ID: IDNightWitch, Room: room}, sub: models.NightWitch, role: models.RoleWitch}}
}

func (s *WitchState) OnEnter() {
	s.enter(s.Room.Durations().Witch)
}

func (s *WitchState) Next() []State {
	return nightTail(s.Room, models.NightWitch)
}

// GuardState 守卫守护
type GuardState struct {
	nightState
}

func NewGuardState(room RoomContext) *GuardState {
	return &GuardState{nightState{RoomStateBase: RoomStateBase{ID: IDNightGuard, Room: room}, sub: models.NightGuard, role: models.RoleGuard}}
}

func (s *GuardState) OnEnter() {
	s.enter(s.Room.Durations().Guard)
}

func (s *GuardState) Next() []State {
	return nightTail(s.Room, models.NightGuard)
}

// DayState resolves the night on entry. It has no successor yet: a timer
// expiry or host advance leaves the room in day.
type DayState struct {
	RoomStateBase
}

func NewDayState(room RoomContext) *DayState {
	return &DayState{RoomStateBase{ID: IDDay, Room: room}}
}

func (s *DayState) OnEnter() {
	data := s.Room.Data()
	gs := &data.GameState

	outcome := ResolveNight(gs.CurrentWolfTarget, gs.NightActions)
	dead := ApplyOutcome(data, outcome)
	gs.DeadPlayers = append(gs.DeadPlayers, models.DeathRecord{Day: gs.DayCount, PlayerIDs: dead})

	s.Room.NightResolved(models.NewHistoryEntry(data, s.Room.Now()), dead)

	gs.Phase = models.PhaseDay
	gs.NightPhase = models.NightNone
	gs.ResetNight()
	s.Room.SetPhaseTimer(s.Room.Durations().Day)

	logger.Log.Infof("Room %s night %d resolved, dead: %v", s.Room.GetID(), gs.DayCount, dead)
}
