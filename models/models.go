// models/models.go
package models

import (
	"errors"
	"fmt"
	"time"
)

// Role 玩家身份
type Role string

const (
	RoleWerewolf Role = "werewolf"
	RoleVillager Role = "villager"
	RoleSeer     Role = "seer"
	RoleWitch    Role = "witch"
	RoleHunter   Role = "hunter"
	RoleGuard    Role = "guard"
)

// Roles lists every role in the order used to build role tokens.
var Roles = []Role{RoleWerewolf, RoleVillager, RoleSeer, RoleWitch, RoleHunter, RoleGuard}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// DeathCause 死亡原因
type DeathCause string

const (
	CauseWerewolf DeathCause = "werewolf"
	CausePoison   DeathCause = "poison"
)

// Player 房间中的玩家
type Player struct {
	ID          string     `json:"id"`
	Nickname    string     `json:"nickname"`
	Avatar      string     `json:"avatar"`
	Role        Role       `json:"role,omitempty"`
	IsAlive     bool       `json:"isAlive"`
	IsHost      bool       `json:"isHost"`
	RoomID      string     `json:"roomId"`
	DeathReason DeathCause `json:"deathReason,omitempty"`
}

// Kill marks the player dead. A dead player never comes back and keeps the
// first cause it was given.
func (p *Player) Kill(cause DeathCause) bool {
	if !p.IsAlive {
		return false
	}
	p.IsAlive = false
	p.DeathReason = cause
	return true
}

var (
	ErrRoleCountMismatch = errors.New("role count does not match player count")
	ErrNoWerewolf        = errors.New("at least one werewolf is required")
	ErrUnknownRole       = errors.New("unknown role")
	ErrNegativeCount     = errors.New("role count must not be negative")
)

// CountMismatchError 人数与身份总数不一致
type CountMismatchError struct {
	Players int
	Roles   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("Player count (%d) does not match Role count (%d)", e.Players, e.Roles)
}

func (e *CountMismatchError) Is(target error) bool { return target == ErrRoleCountMismatch }

// GameSettings 每种身份的人数
type GameSettings struct {
	Roles map[Role]int `json:"roles"`
}

// DefaultSettings returns one of each role.
func DefaultSettings() GameSettings {
	roles := make(map[Role]int, len(Roles))
	for _, r := range Roles {
		roles[r] = 1
	}
	return GameSettings{Roles: roles}
}

// Count returns the configured number of players for role.
func (s GameSettings) Count(role Role) int {
	return s.Roles[role]
}

// Total returns the sum of all role counts.
func (s GameSettings) Total() int {
	total := 0
	for _, n := range s.Roles {
		total += n
	}
	return total
}

// Validate checks the settings against the number of seated players.
func (s GameSettings) Validate(playerCount int) error {
	for role, n := range s.Roles {
		if !role.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		if n < 0 {
			return fmt.Errorf("%w: %s=%d", ErrNegativeCount, role, n)
		}
	}
	if total := s.Total(); total != playerCount {
		return &CountMismatchError{Players: playerCount, Roles: total}
	}
	if s.Count(RoleWerewolf) < 1 {
		return ErrNoWerewolf
	}
	return nil
}

// Tokens expands the settings into one role token per seat, in Roles order.
func (s GameSettings) Tokens() []Role {
	tokens := make([]Role, 0, s.Total())
	for _, role := range Roles {
		for i := 0; i < s.Roles[role]; i++ {
			tokens = append(tokens, role)
		}
	}
	return tokens
}

func (s GameSettings) Clone() GameSettings {
	roles := make(map[Role]int, len(s.Roles))
	for k, v := range s.Roles {
		roles[k] = v
	}
	return GameSettings{Roles: roles}
}

// Phase 游戏阶段
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseSetup    Phase = "setup"
	PhaseNight    Phase = "night"
	PhaseDay      Phase = "day"
	PhaseVote     Phase = "vote"
	PhaseGameOver Phase = "game_over"
)

// NightPhase 夜晚子阶段，空字符串表示不在夜晚
type NightPhase string

const (
	NightNone     NightPhase = ""
	NightClosing  NightPhase = "closing"
	NightWerewolf NightPhase = "werewolf"
	NightSeer     NightPhase = "seer"
	NightWitch    NightPhase = "witch"
	NightGuard    NightPhase = "guard"
)

// ActionType 夜晚行动类型
type ActionType string

const (
	ActionKill    ActionType = "kill"
	ActionCheck   ActionType = "check"
	ActionHeal    ActionType = "heal"
	ActionPoison  ActionType = "poison"
	ActionProtect ActionType = "protect"
	ActionSkip    ActionType = "skip"
)

// NightAction is immutable once recorded.
type NightAction struct {
	PlayerID   string     `json:"playerId"`
	TargetID   string     `json:"targetId,omitempty"`
	ActionType ActionType `json:"actionType"`
}

// WolfVote is one werewolf's current choice. Votes are kept in the order each
// voter first voted; a revote replaces the target in place.
type WolfVote struct {
	VoterID  string `json:"voterId"`
	TargetID string `json:"targetId"`
}

type WitchInventory struct {
	HasAntidote bool `json:"hasAntidote"`
	HasPoison   bool `json:"hasPoison"`
}

// DeathRecord lists the players who died during one night.
type DeathRecord struct {
	Day       int      `json:"day"`
	PlayerIDs []string `json:"playerIds"`
}

type SeerResult struct {
	Nickname   string `json:"nickname"`
	IsWerewolf bool   `json:"isWerewolf"`
	Role       Role   `json:"role,omitempty"`
}

// Winner 胜利阵营，尚未判定时为空
type Winner string

// GameState 每个房间一份
type GameState struct {
	Phase      Phase      `json:"phase"`
	NightPhase NightPhase `json:"nightPhase"`
	DayCount   int        `json:"dayCount"`

	// PhaseStartTime is unix milliseconds; PhaseDuration is seconds, 0 means no auto-advance.
	PhaseStartTime int64   `json:"phaseStartTime"`
	PhaseDuration  float64 `json:"phaseDuration"`

	Winner Winner `json:"winner"`

	NightActions      []NightAction `json:"nightActions"`
	WerewolfVotes     []WolfVote    `json:"werewolfVotes"`
	CurrentWolfTarget string        `json:"currentWolfTarget,omitempty"`

	WitchInventory   WitchInventory `json:"witchInventory"`
	GuardLastProtect string         `json:"guardLastProtect,omitempty"`

	DeadPlayers []DeathRecord `json:"deadPlayers"`
	SeerResult  *SeerResult   `json:"seerResult,omitempty"`
}

// NewGameState returns the zeroed state of a fresh room.
func NewGameState() GameState {
	return GameState{
		Phase:          PhaseWaiting,
		NightActions:   []NightAction{},
		WerewolfVotes:  []WolfVote{},
		WitchInventory: WitchInventory{HasAntidote: true, HasPoison: true},
		DeadPlayers:    []DeathRecord{},
	}
}

// ResetNight clears the per-night transient fields.
func (g *GameState) ResetNight() {
	g.NightActions = []NightAction{}
	g.WerewolfVotes = []WolfVote{}
	g.CurrentWolfTarget = ""
	g.SeerResult = nil
}

func (g GameState) Clone() GameState {
	out := g
	out.NightActions = append([]NightAction{}, g.NightActions...)
	out.WerewolfVotes = append([]WolfVote{}, g.WerewolfVotes...)
	out.DeadPlayers = make([]DeathRecord, len(g.DeadPlayers))
	for i, rec := range g.DeadPlayers {
		out.DeadPlayers[i] = DeathRecord{Day: rec.Day, PlayerIDs: append([]string{}, rec.PlayerIDs...)}
	}
	if g.SeerResult != nil {
		sr := *g.SeerResult
		out.SeerResult = &sr
	}
	return out
}

// Room is the serializable part of a game room. Runtime handles (lock, timer)
// live in the room package.
type Room struct {
	ID        string       `json:"id"`
	Players   []*Player    `json:"players"`
	Settings  GameSettings `json:"settings"`
	GameState GameState    `json:"gameState"`
	CreatedAt int64        `json:"createdAt"`
}

// NewRoom creates a room in the waiting phase with default settings.
func NewRoom(id string, host *Player, now time.Time) *Room {
	host.IsHost = true
	host.RoomID = id
	return &Room{
		ID:        id,
		Players:   []*Player{host},
		Settings:  DefaultSettings(),
		GameState: NewGameState(),
		CreatedAt: now.UnixMilli(),
	}
}

// Player looks up a seated player by id.
func (r *Room) Player(id string) (*Player, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Host returns the current host, if any.
func (r *Room) Host() (*Player, bool) {
	for _, p := range r.Players {
		if p.IsHost {
			return p, true
		}
	}
	return nil, false
}

func (r *Room) Clone() *Room {
	players := make([]*Player, len(r.Players))
	for i, p := range r.Players {
		cp := *p
		players[i] = &cp
	}
	return &Room{
		ID:        r.ID,
		Players:   players,
		Settings:  r.Settings.Clone(),
		GameState: r.GameState.Clone(),
		CreatedAt: r.CreatedAt,
	}
}

// HistoryPlayer is the roster line stored in a history entry.
type HistoryPlayer struct {
	Nickname    string     `json:"nickname"`
	Role        Role       `json:"role,omitempty"`
	IsAlive     bool       `json:"isAlive"`
	DeathReason DeathCause `json:"deathReason,omitempty"`
}

type FinalState struct {
	Phase    Phase `json:"phase"`
	DayCount int   `json:"dayCount"`
}

// HistoryEntry 对局记录，追加写入，最多保留最近的若干条
type HistoryEntry struct {
	RoomID     string          `json:"roomId"`
	Timestamp  time.Time       `json:"timestamp"`
	Settings   GameSettings    `json:"settings"`
	FinalState FinalState      `json:"finalState"`
	Players    []HistoryPlayer `json:"players"`
	Winner     Winner          `json:"winner"`
	History    []DeathRecord   `json:"history"`
}

// NewHistoryEntry captures the room as it stands right now.
func NewHistoryEntry(r *Room, at time.Time) HistoryEntry {
	players := make([]HistoryPlayer, len(r.Players))
	for i, p := range r.Players {
		players[i] = HistoryPlayer{
			Nickname:    p.Nickname,
			Role:        p.Role,
			IsAlive:     p.IsAlive,
			DeathReason: p.DeathReason,
		}
	}
	gs := r.GameState.Clone()
	return HistoryEntry{
		RoomID:    r.ID,
		Timestamp: at.UTC(),
		Settings:  r.Settings.Clone(),
		FinalState: FinalState{
			Phase:    gs.Phase,
			DayCount: gs.DayCount,
		},
		Players: players,
		Winner:  gs.Winner,
		History: gs.DeadPlayers,
	}
}
