package state

import (
	"errors"
	"sync"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
	Advance() (State, error)
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() string
	HandleAction(player *models.Player, action models.NightAction) error
	// Next lists candidate successors in priority order. Advance takes the
	// first one whose transition condition holds.
	Next() []State
}

var (
	// ErrTransitionNotAllowed is returned when a state transition is not allowed.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrNoTransition is returned by Advance when the current state has no successor.
	ErrNoTransition = errors.New("no transition from current state")
	// ErrActionRejected wraps every reason a night action is dropped.
	ErrActionRejected = errors.New("action rejected")
)

// 基础状态机实现
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := ResumeStateMachine(initialState)
	initialState.OnEnter()
	return machine
}

// ResumeStateMachine wraps a state restored from a snapshot without calling
// its OnEnter again.
func ResumeStateMachine(current State) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: current,
		transitions:  make(map[string]map[string]func() bool),
	}
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	// 检查是否有转换条件
	if conditions, exists := sm.transitions[currentID]; exists {
		if condition, exists := conditions[newID]; exists {
			if condition != nil && !condition() {
				return ErrTransitionNotAllowed
			}
		}
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// Advance moves to the first allowed successor of the current state.
func (sm *BaseStateMachine) Advance() (State, error) {
	current := sm.GetCurrentState()
	for _, next := range current.Next() {
		err := sm.ChangeState(next)
		if errors.Is(err, ErrTransitionNotAllowed) {
			continue
		}
		if err != nil {
			return current, err
		}
		return next, nil
	}
	return current, ErrNoTransition
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

func (s *RoomStateBase) HandleAction(player *models.Player, action models.NightAction) error {
	return rejectf("no actions accepted in %s", s.ID)
}

func (s *RoomStateBase) Next() []State {
	return nil
}

func (s *RoomStateBase) game() *models.GameState {
	return &s.Room.Data().GameState
}
