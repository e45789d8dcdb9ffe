// Package view projects a room into the per-viewer snapshot sent to clients.
package view

import "github.com/ziqiy-dream/werewolf-judge/models"

// GameState is the public part of models.GameState. CurrentWolfTarget and
// SeerResult are only filled for the witch and the seer respectively.
type GameState struct {
	Phase          models.Phase          `json:"phase"`
	NightPhase     models.NightPhase     `json:"nightPhase"`
	DayCount       int                   `json:"dayCount"`
	PhaseStartTime int64                 `json:"phaseStartTime"`
	PhaseDuration  float64               `json:"phaseDuration"`
	Winner         models.Winner         `json:"winner"`
	WitchInventory models.WitchInventory `json:"witchInventory"`

	GuardLastProtect string               `json:"guardLastProtect,omitempty"`
	DeadPlayers      []models.DeathRecord `json:"deadPlayers"`

	CurrentWolfTarget *string            `json:"currentWolfTarget,omitempty"`
	SeerResult        *models.SeerResult `json:"seerResult,omitempty"`
}

// ClientView 单个玩家看到的房间
type ClientView struct {
	ID        string              `json:"id"`
	Players   []models.Player     `json:"players"`
	Settings  models.GameSettings `json:"settings"`
	GameState GameState           `json:"gameState"`
	MyRole    models.Role         `json:"myRole,omitempty"`
}

// Project builds the view of room for viewerID. Other players' roles are
// removed; night bookkeeping is removed except what the viewer's role is
// entitled to see. The result shares no memory with room.
func Project(room *models.Room, viewerID string) ClientView {
	v := ClientView{
		ID:       room.ID,
		Players:  make([]models.Player, 0, len(room.Players)),
		Settings: room.Settings.Clone(),
	}

	var me *models.Player
	for _, p := range room.Players {
		cp := *p
		if p.ID == viewerID {
			me = p
		} else {
			cp.Role = ""
		}
		v.Players = append(v.Players, cp)
	}

	gs := room.GameState
	v.GameState = GameState{
		Phase:            gs.Phase,
		NightPhase:       gs.NightPhase,
		DayCount:         gs.DayCount,
		PhaseStartTime:   gs.PhaseStartTime,
		PhaseDuration:    gs.PhaseDuration,
		Winner:           gs.Winner,
		WitchInventory:   gs.WitchInventory,
		GuardLastProtect: gs.GuardLastProtect,
		DeadPlayers:      deadCopy(gs.DeadPlayers),
	}

	if me == nil {
		return v
	}
	v.MyRole = me.Role

	switch me.Role {
	case models.RoleWitch:
		if gs.CurrentWolfTarget != "" {
			target := gs.CurrentWolfTarget
			v.GameState.CurrentWolfTarget = &target
		}
	case models.RoleSeer:
		if gs.SeerResult != nil {
			res := *gs.SeerResult
			v.GameState.SeerResult = &res
		}
	}
	return v
}

func deadCopy(records []models.DeathRecord) []models.DeathRecord {
	out := make([]models.DeathRecord, len(records))
	for i, r := range records {
		out[i] = models.DeathRecord{Day: r.Day, PlayerIDs: append([]string{}, r.PlayerIDs...)}
	}
	return out
}
