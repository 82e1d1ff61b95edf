package server

import (
	"context"
	"errors"
	"time"

	"github.com/clueworks/huntapi/internal/hunt"
)

var ErrNotFound = errors.New("not found")

type staffSession struct {
	StaffID string
	Email   string
}

// Store is the durable progression store. All writes that progression
// correctness depends on are individually idempotent: the conditional
// inserts report whether a row was created, and AddPoints is an atomic
// increment, so a sequence interrupted mid-way leaves valid, resumable
// state.
type Store interface {
	TeamFromToken(ctx context.Context, token string) (hunt.Team, error)

	GetHunt(ctx context.Context, id string) (hunt.Hunt, error)
	ListHunts(ctx context.Context) ([]hunt.Hunt, error)
	GetEpisode(ctx context.Context, id string) (hunt.Episode, error)
	ListEpisodes(ctx context.Context, huntID string) ([]hunt.Episode, error)
	GetPuzzle(ctx context.Context, id string) (hunt.Puzzle, error)
	ListPuzzles(ctx context.Context, huntID string) ([]hunt.Puzzle, error)

	GetTeam(ctx context.Context, id string) (hunt.Team, error)
	ListTeams(ctx context.Context, huntID string) ([]hunt.Team, error)
	AddPoints(ctx context.Context, teamID string, delta int) error
	ResetTeam(ctx context.Context, teamID string) error

	InsertGuess(ctx context.Context, g hunt.Guess) error
	SetGuessResponse(ctx context.Context, guessID, text string) error
	ListPendingGuesses(ctx context.Context, huntID string) ([]hunt.Guess, error)

	InsertSolveIfAbsent(ctx context.Context, teamID, puzzleID, guessID string, at time.Time) (bool, error)
	InsertUnlockIfAbsent(ctx context.Context, teamID, puzzleID string, at time.Time) (bool, error)
	InsertEurekaUnlockIfAbsent(ctx context.Context, teamID, eurekaID string, at time.Time) (bool, error)

	ListSolvedPuzzleIDs(ctx context.Context, teamID string) ([]string, error)
	ListUnlockedPuzzleIDs(ctx context.Context, teamID string) ([]string, error)
	ListDiscoveredEurekaIDs(ctx context.Context, teamID string) ([]string, error)

	// UnlockTime and FirstGuessTime return ErrNotFound when no such row
	// exists; callers fall back along the puzzle start time priority
	// order (unlock, first guess, episode start).
	UnlockTime(ctx context.Context, teamID, puzzleID string) (time.Time, error)
	FirstGuessTime(ctx context.Context, teamID, puzzleID string) (time.Time, error)

	StaffByEmail(ctx context.Context, email string) (id, passwordHash string, err error)
	StaffFromSession(ctx context.Context, sessionID string) (staffSession, error)
	CreateStaffSession(ctx context.Context, staffID string) (string, error)
	DeleteStaffSession(ctx context.Context, sessionID string) error
}
