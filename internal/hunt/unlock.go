package hunt

// Progress is a team's current standing within a hunt, as needed to
// evaluate unlock eligibility.
type Progress struct {
	Solved   map[string]bool // puzzle ids the team has solved
	Unlocked map[string]bool // puzzle ids already unlocked
	Points   int
}

// EligibleUnlocks returns the ids of puzzles the team now satisfies the
// unlock policy for but has not yet unlocked. The whole puzzle set is
// recomputed on every call; hunts are small enough that an incremental
// index is not worth carrying. The result preserves the order of puzzles.
//
// Existing unlocks are never revisited, so the unlocked set only grows:
// running this twice with no intervening solves yields nothing the second
// time.
func EligibleUnlocks(puzzles []Puzzle, pr Progress) []string {
	// Count, for each puzzle, how many of its prerequisites the team has
	// solved. Every solved puzzle contributes one to each puzzle in its
	// outgoing unlocks set.
	satisfied := make(map[string]int, len(puzzles))
	for _, p := range puzzles {
		if !pr.Solved[p.ID] {
			continue
		}
		for _, id := range p.Unlocks {
			satisfied[id]++
		}
	}

	var eligible []string
	for _, p := range puzzles {
		if pr.Unlocked[p.ID] {
			continue
		}
		bySolves := satisfied[p.ID] >= p.NumRequired
		byPoints := pr.Points >= p.PointsCost

		ok := false
		switch p.Policy {
		case UnlockPoints:
			ok = byPoints
		case UnlockEither:
			ok = bySolves || byPoints
		case UnlockBoth:
			ok = bySolves && byPoints
		default:
			// UnlockSolves, and the fallback for malformed policy values:
			// a bad policy must not brick a puzzle for the whole hunt.
			ok = bySolves
		}
		if ok {
			eligible = append(eligible, p.ID)
		}
	}
	return eligible
}
