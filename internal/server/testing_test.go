package server

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clueworks/huntapi/internal/database"
	"github.com/clueworks/huntapi/internal/hunt"
	"github.com/clueworks/huntapi/internal/migrations"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Run(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewSQLiteStore(db), db
}

// seedHunt installs a small fixture hunt:
//
//	p1 "Gateway"  answer BANANA, no prerequisites, 10 points, counts toward p3
//	p2 "Harbor"   answer SALMON, no prerequisites, 50 points, counts toward p3,
//	              eureka e1 (^RED.*, "warm color"), hint h1 (30m / 5m, needs e1)
//	p3 "Meta"     needs 2 prerequisite solves
//	p4 "Bazaar"   points-based, costs 60
//
// plus team t1 (token "tok-red") with p1 and p2 already unlocked.
func seedHunt(t *testing.T, db *sql.DB) {
	t.Helper()

	now := time.Now().UTC()
	exec := func(q string, args ...any) {
		t.Helper()
		if _, err := db.Exec(q, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	exec(`INSERT INTO hunts (id, name, start_date, end_date, eureka_feedback, points_per_min)
		VALUES ('h1', 'Test Hunt', ?, ?, 'keep going', 0)`,
		now.Add(-2*time.Hour).Format(time.RFC3339Nano),
		now.Add(2*time.Hour).Format(time.RFC3339Nano))

	exec(`INSERT INTO episodes (id, hunt_id, name, number, start_date)
		VALUES ('ep1', 'h1', 'Act One', 1, ?)`,
		now.Add(-time.Hour).Format(time.RFC3339Nano))

	exec(`INSERT INTO puzzles (id, episode_id, name, number, answer, answer_regex, policy, num_required, points_cost, points_value)
		VALUES
		('p1', 'ep1', 'Gateway', 1, 'BANANA', '', 'SOL', 0, 0, 10),
		('p2', 'ep1', 'Harbor',  2, 'SALMON', '', 'SOL', 0, 0, 50),
		('p3', 'ep1', 'Meta',    3, 'FINALE', '', 'SOL', 2, 0, 0),
		('p4', 'ep1', 'Bazaar',  4, 'MARKET', '', 'POT', 1, 60, 0)`)

	exec(`INSERT INTO puzzle_edges (puzzle_id, unlocks_id) VALUES
		('p1', 'p3'), ('p2', 'p3')`)

	exec(`INSERT INTO eurekas (id, puzzle_id, ord, regex, feedback, admin_only)
		VALUES ('e1', 'p2', 1, '^RED.*', 'warm color', 0)`)

	exec(`INSERT INTO hints (id, puzzle_id, ord, text, delay_secs, short_delay_secs)
		VALUES ('hint1', 'p2', 1, 'Look at the tides', 1800, 300)`)
	exec(`INSERT INTO hint_eurekas (hint_id, eureka_id) VALUES ('hint1', 'e1')`)

	exec(`INSERT INTO teams (id, hunt_id, name, token, points)
		VALUES ('t1', 'h1', 'Red Pandas', 'tok-red', 0)`)

	at := now.Add(-30 * time.Minute).Format(time.RFC3339Nano)
	exec(`INSERT INTO unlocks (team_id, puzzle_id, created_at) VALUES
		('t1', 'p1', ?), ('t1', 'p2', ?)`, at, at)
}

// recordNotifier captures pushed events and signals each one on a channel.
type recordNotifier struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecordNotifier() *recordNotifier {
	return &recordNotifier{ch: make(chan Event, 32)}
}

func (n *recordNotifier) Push(teamID string, e Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	select {
	case n.ch <- e:
	default:
	}
}

func (n *recordNotifier) all() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

// wait blocks until an event of the given type arrives or the timeout
// elapses, returning ok=false on timeout.
func (n *recordNotifier) wait(t *testing.T, eventType string, timeout time.Duration) (Event, bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-n.ch:
			if e.Type == eventType {
				return e, true
			}
		case <-deadline:
			return Event{}, false
		}
	}
}

func testGuess(id, teamID, puzzleID, text string) hunt.Guess {
	return hunt.Guess{
		ID:             id,
		TeamID:         teamID,
		PuzzleID:       puzzleID,
		Text:           text,
		Classification: hunt.ClassWrong,
		CreatedAt:      time.Now(),
	}
}

func mustTeam(t *testing.T, store *SQLiteStore, id string) hunt.Team {
	t.Helper()
	team, err := store.GetTeam(context.Background(), id)
	if err != nil {
		t.Fatalf("get team %s: %v", id, err)
	}
	return team
}

func mustPuzzle(t *testing.T, store *SQLiteStore, id string) hunt.Puzzle {
	t.Helper()
	p, err := store.GetPuzzle(context.Background(), id)
	if err != nil {
		t.Fatalf("get puzzle %s: %v", id, err)
	}
	return p
}

func mustHunt(t *testing.T, store *SQLiteStore, id string) hunt.Hunt {
	t.Helper()
	h, err := store.GetHunt(context.Background(), id)
	if err != nil {
		t.Fatalf("get hunt %s: %v", id, err)
	}
	return h
}
