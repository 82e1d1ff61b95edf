package server

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/clueworks/huntapi/internal/hunt"
)

func newTestProcessor(t *testing.T) (*GuessProcessor, *SQLiteStore, *recordNotifier) {
	t.Helper()
	store, db := setupStore(t)
	seedHunt(t, db)
	notifier := newRecordNotifier()
	sched := NewScheduler(store, notifier, testLogger())
	return NewGuessProcessor(store, notifier, sched, testLogger()), store, notifier
}

func TestSubmitCorrectNormalized(t *testing.T) {
	proc, store, notifier := newTestProcessor(t)
	ctx := context.Background()

	h := mustHunt(t, store, "h1")
	team := mustTeam(t, store, "t1")
	p1 := mustPuzzle(t, store, "p1")

	res, err := proc.Submit(ctx, h, team, p1, "  b a n a n a  ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Classification != hunt.ClassCorrect {
		t.Fatalf("classification = %q, want correct", res.Classification)
	}
	if res.Message != "Correct!" {
		t.Errorf("message = %q", res.Message)
	}

	solved, _ := store.ListSolvedPuzzleIDs(ctx, "t1")
	if len(solved) != 1 || solved[0] != "p1" {
		t.Errorf("solved = %v, want [p1]", solved)
	}
	if got := mustTeam(t, store, "t1").Points; got != 10 {
		t.Errorf("points = %d, want 10", got)
	}
	if _, ok := notifier.wait(t, "correct", time.Second); !ok {
		t.Error("no correct event pushed")
	}
}

func TestSubmitDuplicateCorrect(t *testing.T) {
	proc, store, _ := newTestProcessor(t)
	ctx := context.Background()

	h := mustHunt(t, store, "h1")
	team := mustTeam(t, store, "t1")
	p1 := mustPuzzle(t, store, "p1")

	for i := 0; i < 2; i++ {
		res, err := proc.Submit(ctx, h, team, p1, "BANANA")
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if res.Classification != hunt.ClassCorrect {
			t.Fatalf("submit %d: classification = %q", i, res.Classification)
		}
	}

	solved, _ := store.ListSolvedPuzzleIDs(ctx, "t1")
	if len(solved) != 1 {
		t.Errorf("solved = %v, want exactly one", solved)
	}
	if got := mustTeam(t, store, "t1").Points; got != 10 {
		t.Errorf("points = %d, want 10 (no double award)", got)
	}
}

func TestSubmitEureka(t *testing.T) {
	proc, store, notifier := newTestProcessor(t)
	ctx := context.Background()

	h := mustHunt(t, store, "h1")
	team := mustTeam(t, store, "t1")
	p2 := mustPuzzle(t, store, "p2")

	res, err := proc.Submit(ctx, h, team, p2, "redfish")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Classification != hunt.ClassEureka {
		t.Fatalf("classification = %q, want eureka", res.Classification)
	}
	if res.Message != "warm color" {
		t.Errorf("message = %q, want the eureka feedback", res.Message)
	}
	if e, ok := notifier.wait(t, "eureka", time.Second); !ok || e.EurekaID != "e1" {
		t.Errorf("eureka event = %+v ok=%v", e, ok)
	}

	// Re-guessing the same eureka records nothing new.
	if _, err := proc.Submit(ctx, h, team, p2, "RED HERRING"); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	discovered, _ := store.ListDiscoveredEurekaIDs(ctx, "t1")
	if len(discovered) != 1 {
		t.Errorf("discovered = %v, want exactly [e1]", discovered)
	}
	// No solve, no points for a eureka.
	if solved, _ := store.ListSolvedPuzzleIDs(ctx, "t1"); len(solved) != 0 {
		t.Errorf("solved = %v, want none", solved)
	}
}

func TestSubmitPropagatesUnlocks(t *testing.T) {
	proc, store, _ := newTestProcessor(t)
	ctx := context.Background()

	h := mustHunt(t, store, "h1")
	team := mustTeam(t, store, "t1")

	res, err := proc.Submit(ctx, h, team, mustPuzzle(t, store, "p1"), "BANANA")
	if err != nil {
		t.Fatalf("solve p1: %v", err)
	}
	if len(res.Unlocked) != 0 {
		t.Errorf("after p1: unlocked %v, want none (p3 needs two solves)", res.Unlocked)
	}

	res, err = proc.Submit(ctx, h, team, mustPuzzle(t, store, "p2"), "SALMON")
	if err != nil {
		t.Fatalf("solve p2: %v", err)
	}
	// Second solve satisfies p3's prerequisite count, and the 60 points
	// banked by now cover p4's cost.
	if !slices.Contains(res.Unlocked, "p3") {
		t.Errorf("after p2: unlocked %v, want p3 included", res.Unlocked)
	}
	if !slices.Contains(res.Unlocked, "p4") {
		t.Errorf("after p2: unlocked %v, want p4 included", res.Unlocked)
	}

	unlocked, _ := store.ListUnlockedPuzzleIDs(ctx, "t1")
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		if !slices.Contains(unlocked, id) {
			t.Errorf("unlocked = %v, missing %s", unlocked, id)
		}
	}
}

func TestSubmitClosedHunt(t *testing.T) {
	proc, store, _ := newTestProcessor(t)
	ctx := context.Background()

	h := mustHunt(t, store, "h1")
	h.EndDate = time.Now().Add(-time.Minute)
	team := mustTeam(t, store, "t1")

	res, err := proc.Submit(ctx, h, team, mustPuzzle(t, store, "p1"), "BANANA")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Classification != hunt.ClassCorrect {
		t.Errorf("classification = %q, want correct even when closed", res.Classification)
	}

	if solved, _ := store.ListSolvedPuzzleIDs(ctx, "t1"); len(solved) != 0 {
		t.Errorf("solved = %v, want none after close", solved)
	}
	if got := mustTeam(t, store, "t1").Points; got != 0 {
		t.Errorf("points = %d, want 0 after close", got)
	}
}

func TestSubmitWrong(t *testing.T) {
	proc, store, _ := newTestProcessor(t)
	ctx := context.Background()

	h := mustHunt(t, store, "h1")
	team := mustTeam(t, store, "t1")

	res, err := proc.Submit(ctx, h, team, mustPuzzle(t, store, "p1"), "ORANGE")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Classification != hunt.ClassWrong || res.Message != "Wrong Answer" {
		t.Errorf("got %q/%q, want wrong/Wrong Answer", res.Classification, res.Message)
	}

	pending, err := store.ListPendingGuesses(ctx, "h1")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Text != "ORANGE" {
		t.Errorf("pending = %+v, want the wrong guess awaiting triage", pending)
	}
}

func TestSubmitEmpty(t *testing.T) {
	proc, store, _ := newTestProcessor(t)

	h := mustHunt(t, store, "h1")
	team := mustTeam(t, store, "t1")

	_, err := proc.Submit(context.Background(), h, team, mustPuzzle(t, store, "p1"), "")
	if !errors.Is(err, ErrEmptyGuess) {
		t.Errorf("err = %v, want ErrEmptyGuess", err)
	}
}
