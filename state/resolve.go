package state

import "github.com/ziqiy-dream/werewolf-judge/models"

// NightOutcome is the pure result of a night: who dies and why.
type NightOutcome struct {
	Dead   []string
	Causes map[string]models.DeathCause
}

func firstAction(actions []models.NightAction, kind models.ActionType) (models.NightAction, bool) {
	for _, a := range actions {
		if a.ActionType == kind {
			return a, true
		}
	}
	return models.NightAction{}, false
}

// ResolveNight computes casualties from the wolf target and the night's
// action log.
//
// The wolf target dies unless saved. A guard protecting the target saves it,
// a witch heal saves it, but both together cancel out and the target dies.
// A poison target always dies, and poison is the recorded cause when a
// player qualifies for both.
func ResolveNight(wolfTarget string, actions []models.NightAction) NightOutcome {
	out := NightOutcome{Dead: []string{}, Causes: make(map[string]models.DeathCause)}

	if wolfTarget != "" {
		dead := true
		if protect, ok := firstAction(actions, models.ActionProtect); ok && protect.TargetID == wolfTarget {
			dead = false
		}
		if _, ok := firstAction(actions, models.ActionHeal); ok {
			dead = !dead
		}
		if dead {
			out.Dead = append(out.Dead, wolfTarget)
			out.Causes[wolfTarget] = models.CauseWerewolf
		}
	}

	if poison, ok := firstAction(actions, models.ActionPoison); ok && poison.TargetID != "" {
		if _, already := out.Causes[poison.TargetID]; !already {
			out.Dead = append(out.Dead, poison.TargetID)
		}
		out.Causes[poison.TargetID] = models.CausePoison
	}

	return out
}

// ApplyOutcome marks the outcome's players dead and returns the ids that
// actually died. Unknown ids and players already dead are skipped.
func ApplyOutcome(room *models.Room, out NightOutcome) []string {
	dead := make([]string, 0, len(out.Dead))
	for _, id := range out.Dead {
		p, ok := room.Player(id)
		if !ok {
			continue
		}
		if p.Kill(out.Causes[id]) {
			dead = append(dead, id)
		}
	}
	return dead
}
