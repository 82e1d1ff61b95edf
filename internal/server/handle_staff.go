package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const staffCookieName = "staff_session"

// StaffLoginRequest is the request body for POST /api/staff/login.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffMeResponse is the response for login and GET /api/staff/me.
type StaffMeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func handleStaffLogin(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StaffLoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		staffID, passwordHash, err := store.StaffByEmail(r.Context(), req.Email)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		sessionID, err := store.CreateStaffSession(r.Context(), staffID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     staffCookieName,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   int(7 * 24 * time.Hour / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		writeJSON(w, http.StatusOK, StaffMeResponse{ID: staffID, Email: req.Email})
	}
}

func handleStaffLogout(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(staffCookieName); err == nil && cookie.Value != "" {
			store.DeleteStaffSession(r.Context(), cookie.Value)
		}

		http.SetCookie(w, &http.Cookie{
			Name:     staffCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// PendingGuess is a wrong guess awaiting a human response.
type PendingGuess struct {
	ID        string `json:"id"`
	TeamID    string `json:"teamId"`
	PuzzleID  string `json:"puzzleId"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

func handleStaffListGuesses(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		huntID := r.URL.Query().Get("hunt")
		if huntID == "" {
			writeError(w, http.StatusBadRequest, "hunt query parameter required")
			return
		}

		guesses, err := store.ListPendingGuesses(r.Context(), huntID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		out := []PendingGuess{}
		for _, g := range guesses {
			out = append(out, PendingGuess{
				ID:        g.ID,
				TeamID:    g.TeamID,
				PuzzleID:  g.PuzzleID,
				Text:      g.Text,
				CreatedAt: g.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GuessResponseRequest is the staff-authored response attached to a wrong
// guess. It never changes the guess's classification.
type GuessResponseRequest struct {
	Response string `json:"response"`
}

func handleStaffGuessResponse(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GuessResponseRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		err := store.SetGuessResponse(r.Context(), chi.URLParam(r, "guessID"), req.Response)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "guess not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleStaffResetTeam wipes a team back to its initial state: all solves,
// unlocks, eureka unlocks and guesses are deleted, points are zeroed, and
// any open hint sessions are cancelled.
func handleStaffResetTeam(logger *slog.Logger, store Store, scheduler *Scheduler, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")

		if _, err := store.GetTeam(r.Context(), teamID); errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "team not found")
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		scheduler.OnTeamReset(teamID)

		if err := store.ResetTeam(r.Context(), teamID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("team reset", "team", teamID, "staff", staffFrom(r).StaffID)
		broker.Push(teamID, Event{Type: "reset"})
		w.WriteHeader(http.StatusNoContent)
	}
}
