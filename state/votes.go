package state

import "github.com/ziqiy-dream/werewolf-judge/models"

// TallyVotes returns the werewolf target with the most votes, or "" when no
// votes were cast. Candidates are ranked in the order their first vote
// arrived, and a later candidate needs strictly more votes to take the lead,
// so a tie goes to whoever reached the top count first.
func TallyVotes(votes []models.WolfVote) string {
	counts := make(map[string]int)
	order := make([]string, 0, len(votes))
	for _, v := range votes {
		if v.TargetID == "" {
			continue
		}
		if _, seen := counts[v.TargetID]; !seen {
			order = append(order, v.TargetID)
		}
		counts[v.TargetID]++
	}

	target, max := "", 0
	for _, id := range order {
		if counts[id] > max {
			max = counts[id]
			target = id
		}
	}
	return target
}
