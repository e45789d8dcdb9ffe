package state

import (
	"fmt"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

func rejectf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrActionRejected, fmt.Sprintf(format, args...))
}

// HandleAction records a werewolf vote. Votes do not go to the action log.
func (s *WerewolfState) HandleAction(player *models.Player, action models.NightAction) error {
	if err := s.authorize(player, action); err != nil {
		return err
	}
	switch action.ActionType {
	case models.ActionKill:
		if action.TargetID == "" {
			return rejectf("kill needs a target")
		}
		gs := s.game()
		for i := range gs.WerewolfVotes {
			if gs.WerewolfVotes[i].VoterID == player.ID {
				gs.WerewolfVotes[i].TargetID = action.TargetID
				return nil
			}
		}
		gs.WerewolfVotes = append(gs.WerewolfVotes, models.WolfVote{VoterID: player.ID, TargetID: action.TargetID})
		return nil
	case models.ActionSkip:
		s.record(action)
		return nil
	default:
		return rejectf("%s not allowed during werewolf turn", action.ActionType)
	}
}

// HandleAction checks a player and stores the result for the seer.
func (s *SeerState) HandleAction(player *models.Player, action models.NightAction) error {
	if err := s.authorize(player, action); err != nil {
		return err
	}
	switch action.ActionType {
	case models.ActionCheck:
		target, ok := s.Room.Data().Player(action.TargetID)
		if action.TargetID == "" || !ok {
			return rejectf("check target %q not found", action.TargetID)
		}
		s.game().SeerResult = &models.SeerResult{
			Nickname:   target.Nickname,
			IsWerewolf: target.Role == models.RoleWerewolf,
			Role:       target.Role,
		}
		s.record(action)
		return nil
	case models.ActionSkip:
		s.record(action)
		return nil
	default:
		return rejectf("%s not allowed during seer turn", action.ActionType)
	}
}

// HandleAction uses the antidote on the wolf target or poisons a player. Each
// potion can be used once per game.
func (s *WitchState) HandleAction(player *models.Player, action models.NightAction) error {
	if err := s.authorize(player, action); err != nil {
		return err
	}
	gs := s.game()
	switch action.ActionType {
	case models.ActionHeal:
		if !gs.WitchInventory.HasAntidote {
			return rejectf("antidote already used")
		}
		if gs.CurrentWolfTarget == "" {
			return rejectf("nobody to heal")
		}
		gs.WitchInventory.HasAntidote = false
		action.TargetID = gs.CurrentWolfTarget
		s.record(action)
		return nil
	case models.ActionPoison:
		if !gs.WitchInventory.HasPoison {
			return rejectf("poison already used")
		}
		if action.TargetID == "" {
			return rejectf("poison needs a target")
		}
		gs.WitchInventory.HasPoison = false
		s.record(action)
		return nil
	case models.ActionSkip:
		s.record(action)
		return nil
	default:
		return rejectf("%s not allowed during witch turn", action.ActionType)
	}
}

// HandleAction protects a player. The same player cannot be protected on two
// consecutive nights; skipping lifts that restriction.
func (s *GuardState) HandleAction(player *models.Player, action models.NightAction) error {
	if err := s.authorize(player, action); err != nil {
		return err
	}
	gs := s.game()
	switch action.ActionType {
	case models.ActionProtect:
		if action.TargetID == "" {
			return rejectf("protect needs a target")
		}
		if action.TargetID == gs.GuardLastProtect {
			return rejectf("%s was protected last night", action.TargetID)
		}
		gs.GuardLastProtect = action.TargetID
		s.record(action)
		return nil
	case models.ActionSkip:
		gs.GuardLastProtect = ""
		s.record(action)
		return nil
	default:
		return rejectf("%s not allowed during guard turn", action.ActionType)
	}
}
