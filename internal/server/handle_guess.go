package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type GuessRequest struct {
	Guess string `json:"guess"`
}

type GuessResponse struct {
	Classification string   `json:"classification"` // correct | eureka | wrong
	Message        string   `json:"message"`
	Unlocked       []string `json:"unlocked,omitempty"` // newly unlocked puzzle ids
}

func handleGuess(logger *slog.Logger, store Store, processor *GuessProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		team := teamFrom(r)

		var req GuessRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Guess = strings.TrimSpace(req.Guess)
		if req.Guess == "" {
			writeError(w, http.StatusBadRequest, "guess is required")
			return
		}

		puzzle, err := store.GetPuzzle(r.Context(), chi.URLParam(r, "puzzleID"))
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "puzzle not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		// Guessing requires the puzzle to be unlocked for the team.
		unlocked, err := store.ListUnlockedPuzzleIDs(r.Context(), team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !containsID(unlocked, puzzle.ID) {
			writeError(w, http.StatusForbidden, "puzzle not unlocked")
			return
		}

		h, err := store.GetHunt(r.Context(), team.HuntID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		result, err := processor.Submit(r.Context(), h, team, puzzle, req.Guess)
		if errors.Is(err, ErrEmptyGuess) {
			writeError(w, http.StatusBadRequest, "guess is required")
			return
		}
		if err != nil {
			// The classification is still valid even when downstream
			// persistence failed partway; report it if we have one.
			if result.Classification == "" {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			logger.Error("guess side effects incomplete",
				"team", team.ID, "puzzle", puzzle.ID, "error", err)
		}

		writeJSON(w, http.StatusOK, GuessResponse{
			Classification: string(result.Classification),
			Message:        result.Message,
			Unlocked:       result.Unlocked,
		})
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
