package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clueworks/huntapi/internal/hunt"
)

var ErrEmptyGuess = errors.New("guess text is empty")

// GuessResult is what a submitting team gets back. A classification is
// always produced, even when downstream unlock propagation fails.
type GuessResult struct {
	Classification hunt.Classification
	Message        string
	Unlocked       []string // newly unlocked puzzle ids, correct guesses only
}

// GuessProcessor orchestrates guess handling: persist, classify, and on a
// correct guess record the solve, award points, and propagate unlocks.
type GuessProcessor struct {
	store     Store
	notifier  Notifier
	scheduler *Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

func NewGuessProcessor(store Store, notifier Notifier, scheduler *Scheduler, logger *slog.Logger) *GuessProcessor {
	return &GuessProcessor{
		store:     store,
		notifier:  notifier,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit handles one guess from a team on a puzzle. Duplicate correct
// guesses report success without side effects: the conditional solve
// insert decides exactly one winner, so concurrent submissions cannot
// double-award points or create a second solve row.
func (p *GuessProcessor) Submit(ctx context.Context, h hunt.Hunt, team hunt.Team, puzzle hunt.Puzzle, text string) (GuessResult, error) {
	if text == "" {
		return GuessResult{}, ErrEmptyGuess
	}

	now := p.now()
	result := hunt.Classify(text, puzzle, h.EurekaFeedback)

	g := hunt.Guess{
		ID:             newID(),
		TeamID:         team.ID,
		PuzzleID:       puzzle.ID,
		Text:           text,
		Classification: result.Classification,
		CreatedAt:      now,
	}
	if err := p.store.InsertGuess(ctx, g); err != nil {
		return GuessResult{}, fmt.Errorf("inserting guess: %w", err)
	}

	switch result.Classification {
	case hunt.ClassCorrect:
		return p.handleCorrect(ctx, h, team, puzzle, g, now)
	case hunt.ClassEureka:
		return p.handleEureka(ctx, team, puzzle, *result.Eureka, result.Feedback, now)
	default:
		p.notifier.Push(team.ID, Event{Type: "wrong", PuzzleID: puzzle.ID})
		return GuessResult{Classification: hunt.ClassWrong, Message: "Wrong Answer"}, nil
	}
}

func (p *GuessProcessor) handleCorrect(ctx context.Context, h hunt.Hunt, team hunt.Team, puzzle hunt.Puzzle, g hunt.Guess, now time.Time) (GuessResult, error) {
	res := GuessResult{Classification: hunt.ClassCorrect, Message: "Correct!"}

	// No progression changes once the hunt is archived; the guess still
	// classifies and is recorded above.
	if h.Closed(now) {
		return res, nil
	}

	created, err := p.store.InsertSolveIfAbsent(ctx, team.ID, puzzle.ID, g.ID, now)
	if err != nil {
		return res, fmt.Errorf("inserting solve: %w", err)
	}
	if !created {
		// Already solved, possibly by a racing submission. Still correct.
		return res, nil
	}

	p.logger.Info("puzzle solved", "team", team.ID, "puzzle", puzzle.ID)
	p.notifier.Push(team.ID, Event{Type: "correct", PuzzleID: puzzle.ID, PuzzleName: puzzle.Name})

	if puzzle.PointsValue != 0 {
		if err := p.store.AddPoints(ctx, team.ID, puzzle.PointsValue); err != nil {
			return res, fmt.Errorf("awarding points: %w", err)
		}
	}

	unlocked, err := p.Propagate(ctx, team.ID)
	if err != nil {
		return res, fmt.Errorf("propagating unlocks: %w", err)
	}
	res.Unlocked = unlocked
	return res, nil
}

func (p *GuessProcessor) handleEureka(ctx context.Context, team hunt.Team, puzzle hunt.Puzzle, e hunt.Eureka, feedback string, now time.Time) (GuessResult, error) {
	res := GuessResult{Classification: hunt.ClassEureka, Message: feedback}

	created, err := p.store.InsertEurekaUnlockIfAbsent(ctx, team.ID, e.ID, now)
	if err != nil {
		return res, fmt.Errorf("inserting eureka unlock: %w", err)
	}
	if !created {
		return res, nil
	}

	p.logger.Info("eureka discovered", "team", team.ID, "puzzle", puzzle.ID, "eureka", e.ID)
	p.notifier.Push(team.ID, Event{
		Type:     "eureka",
		PuzzleID: puzzle.ID,
		EurekaID: e.ID,
		Feedback: feedback,
	})

	if err := p.scheduler.OnEurekaDiscovered(ctx, team.ID, e.ID); err != nil {
		// Timer rescheduling is best-effort; the eureka itself is recorded.
		p.logger.Error("rescheduling hints", "team", team.ID, "eureka", e.ID, "error", err)
	}
	return res, nil
}

// Propagate recomputes unlock eligibility for the team across the whole
// hunt and persists any newly earned unlocks. Idempotent: with no new
// solves or points it creates nothing. Returns the ids actually created
// by this call; concurrent propagations race benignly on the unique
// (team, puzzle) key.
func (p *GuessProcessor) Propagate(ctx context.Context, teamID string) ([]string, error) {
	// Re-read the team so the points balance reflects any increment made
	// just before this call.
	team, err := p.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("loading team: %w", err)
	}

	puzzles, err := p.store.ListPuzzles(ctx, team.HuntID)
	if err != nil {
		return nil, fmt.Errorf("listing puzzles: %w", err)
	}
	solved, err := p.store.ListSolvedPuzzleIDs(ctx, teamID)
	if err != nil {
		return nil, err
	}
	unlocked, err := p.store.ListUnlockedPuzzleIDs(ctx, teamID)
	if err != nil {
		return nil, err
	}

	eligible := hunt.EligibleUnlocks(puzzles, hunt.Progress{
		Solved:   toSet(solved),
		Unlocked: toSet(unlocked),
		Points:   team.Points,
	})

	names := make(map[string]string, len(puzzles))
	for _, pz := range puzzles {
		names[pz.ID] = pz.Name
	}

	var created []string
	now := p.now()
	for _, id := range eligible {
		ok, err := p.store.InsertUnlockIfAbsent(ctx, teamID, id, now)
		if err != nil {
			return created, fmt.Errorf("inserting unlock: %w", err)
		}
		if !ok {
			continue
		}
		created = append(created, id)
		p.logger.Info("puzzle unlocked", "team", teamID, "puzzle", id)
		p.notifier.Push(teamID, Event{Type: "unlock", PuzzleID: id, PuzzleName: names[id]})
	}
	return created, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
