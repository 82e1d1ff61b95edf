package server

import (
	"net/http"
)

type ProgressResponse struct {
	Hunt     HuntInfo      `json:"hunt"`
	Team     TeamInfo      `json:"team"`
	Episodes []EpisodeInfo `json:"episodes"`
}

type HuntInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

type TeamInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type EpisodeInfo struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Number  int          `json:"number"`
	Puzzles []PuzzleInfo `json:"puzzles"`
}

// PuzzleInfo is a team's view of one unlocked puzzle. Locked puzzles are
// omitted entirely; answers and regexes never leave the server.
type PuzzleInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number int    `json:"number"`
	Solved bool   `json:"solved"`
}

func handleProgress(store Store, processor *GuessProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		team := teamFrom(r)
		ctx := r.Context()

		h, err := store.GetHunt(ctx, team.HuntID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		// Propagation is idempotent, so running it on read keeps zero-
		// prerequisite puzzles visible without waiting for a first solve.
		if _, err := processor.Propagate(ctx, team.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		episodes, err := store.ListEpisodes(ctx, team.HuntID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		puzzles, err := store.ListPuzzles(ctx, team.HuntID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		solved, err := store.ListSolvedPuzzleIDs(ctx, team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		unlocked, err := store.ListUnlockedPuzzleIDs(ctx, team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		// Points may have moved if propagation was triggered by accrual.
		team, err = store.GetTeam(ctx, team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		solvedSet := toSet(solved)
		unlockedSet := toSet(unlocked)

		resp := ProgressResponse{
			Hunt: HuntInfo{ID: h.ID, Name: h.Name, Closed: h.Closed(processor.now())},
			Team: TeamInfo{ID: team.ID, Name: team.Name, Points: team.Points},
		}
		for _, ep := range episodes {
			info := EpisodeInfo{ID: ep.ID, Name: ep.Name, Number: ep.Number, Puzzles: []PuzzleInfo{}}
			for _, p := range puzzles {
				if p.EpisodeID != ep.ID || !unlockedSet[p.ID] {
					continue
				}
				info.Puzzles = append(info.Puzzles, PuzzleInfo{
					ID:     p.ID,
					Name:   p.Name,
					Number: p.Number,
					Solved: solvedSet[p.ID],
				})
			}
			resp.Episodes = append(resp.Episodes, info)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
