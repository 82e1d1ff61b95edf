package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clueworks/huntapi/internal/hunt"
)

// Notifier delivers an event to a team's connected clients. Fire-and-forget.
type Notifier interface {
	Push(teamID string, event Event)
}

type sessionKey struct {
	teamID   string
	puzzleID string
}

type hintTimer struct {
	timer  *time.Timer
	fireAt time.Time
}

// hintSession holds the pending timers for one team on one puzzle while a
// client is connected. All access goes through the scheduler mutex.
type hintSession struct {
	team    hunt.Team
	puzzle  hunt.Puzzle
	start   time.Time
	pending map[string]*hintTimer // hint id -> armed timer
	fired   map[string]bool       // terminal per hint for this session
}

func (s *hintSession) hint(id string) (hunt.Hint, bool) {
	for _, h := range s.puzzle.Hints {
		if h.ID == id {
			return h, true
		}
	}
	return hunt.Hint{}, false
}

// Scheduler owns the per-session hint timers. Timers are rescheduled when
// a required eureka is discovered (only ever earlier), cancelled on
// disconnect or reset, and fire at most once per (team, hint) per session.
type Scheduler struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*hintSession
}

func NewScheduler(store Store, notifier Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[sessionKey]*hintSession),
	}
}

// Activate starts (or refreshes) the hint session for a team on a puzzle.
// Hints whose fire time is already in the past fire immediately; the rest
// get timers. Safe to call repeatedly — armed timers are left alone.
func (s *Scheduler) Activate(ctx context.Context, team hunt.Team, puzzle hunt.Puzzle) error {
	if len(puzzle.Hints) == 0 {
		return nil
	}

	start, err := s.startTimeFor(ctx, team, puzzle)
	if err != nil {
		return fmt.Errorf("resolving puzzle start time: %w", err)
	}
	discovered, err := s.discoveredSet(ctx, team.ID)
	if err != nil {
		return err
	}

	key := sessionKey{teamID: team.ID, puzzleID: puzzle.ID}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[key]
	if sess == nil {
		sess = &hintSession{
			team:    team,
			puzzle:  puzzle,
			pending: make(map[string]*hintTimer),
			fired:   make(map[string]bool),
		}
		s.sessions[key] = sess
	}
	sess.start = start

	for _, h := range puzzle.Hints {
		if sess.fired[h.ID] {
			continue
		}
		if _, armed := sess.pending[h.ID]; armed {
			continue
		}
		s.scheduleLocked(key, sess, h, start.Add(h.DelayFor(discovered)))
	}
	return nil
}

// OnEurekaDiscovered recomputes the delay of every pending hint that lists
// the eureka among its requirements. A hint only ever moves earlier; the
// old timer is cancelled before the new one is armed, so a stale deadline
// can never fire after the reschedule.
func (s *Scheduler) OnEurekaDiscovered(ctx context.Context, teamID, eurekaID string) error {
	discovered, err := s.discoveredSet(ctx, teamID)
	if err != nil {
		return err
	}
	// Defensive: the caller just recorded the eureka, but the read above
	// may race the write on another connection.
	discovered[eurekaID] = true

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sess := range s.sessions {
		if key.teamID != teamID {
			continue
		}
		for hintID, ht := range sess.pending {
			h, ok := sess.hint(hintID)
			if !ok || !requiresEureka(h, eurekaID) {
				continue
			}
			fireAt := sess.start.Add(h.DelayFor(discovered))
			if !fireAt.Before(ht.fireAt) {
				continue
			}
			ht.timer.Stop()
			delete(sess.pending, hintID)
			s.scheduleLocked(key, sess, h, fireAt)
		}
	}
	return nil
}

// OnPuzzleReset cancels all pending timers for the session and forgets
// which hints fired.
func (s *Scheduler) OnPuzzleReset(teamID, puzzleID string) {
	s.cancelSession(sessionKey{teamID: teamID, puzzleID: puzzleID})
}

// OnDisconnect cancels the session. There is no delivery guarantee across
// disconnects: on reconnect Activate recomputes delays and immediately
// re-fires anything already due.
func (s *Scheduler) OnDisconnect(teamID, puzzleID string) {
	s.cancelSession(sessionKey{teamID: teamID, puzzleID: puzzleID})
}

// OnTeamReset cancels every session the team has open, across puzzles.
func (s *Scheduler) OnTeamReset(teamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.sessions {
		if key.teamID != teamID {
			continue
		}
		for _, ht := range sess.pending {
			ht.timer.Stop()
		}
		delete(s.sessions, key)
	}
}

func (s *Scheduler) cancelSession(key sessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[key]
	if sess == nil {
		return
	}
	for _, ht := range sess.pending {
		ht.timer.Stop()
	}
	delete(s.sessions, key)
}

// scheduleLocked arms a timer for the hint, or fires it on the spot when
// its deadline has passed. Caller holds the mutex.
func (s *Scheduler) scheduleLocked(key sessionKey, sess *hintSession, h hunt.Hint, fireAt time.Time) {
	d := fireAt.Sub(s.now())
	if d <= 0 {
		s.fireLocked(sess, h)
		return
	}
	ht := &hintTimer{fireAt: fireAt}
	ht.timer = time.AfterFunc(d, func() {
		s.fire(key, h.ID, ht)
	})
	sess.pending[h.ID] = ht
}

// fire runs on the timer goroutine. The identity check against the pending
// entry drops firings from timers that were cancelled or replaced after
// this one was already running.
func (s *Scheduler) fire(key sessionKey, hintID string, ht *hintTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[key]
	if sess == nil || sess.pending[hintID] != ht {
		return
	}
	delete(sess.pending, hintID)

	h, ok := sess.hint(hintID)
	if !ok {
		return
	}
	s.fireLocked(sess, h)
}

func (s *Scheduler) fireLocked(sess *hintSession, h hunt.Hint) {
	if sess.fired[h.ID] {
		return
	}
	sess.fired[h.ID] = true
	delete(sess.pending, h.ID)

	s.logger.Info("hint fired", "team", sess.team.ID, "puzzle", sess.puzzle.ID, "hint", h.ID)
	s.notifier.Push(sess.team.ID, Event{
		Type:     "hint",
		PuzzleID: sess.puzzle.ID,
		HintID:   h.ID,
		Text:     h.Text,
	})
}

// startTimeFor resolves the team's start time on a puzzle: the explicit
// unlock timestamp, else the first guess time, else the episode start.
func (s *Scheduler) startTimeFor(ctx context.Context, team hunt.Team, puzzle hunt.Puzzle) (time.Time, error) {
	if t, err := s.store.UnlockTime(ctx, team.ID, puzzle.ID); err == nil {
		return t, nil
	} else if !errors.Is(err, ErrNotFound) {
		return time.Time{}, err
	}

	if t, err := s.store.FirstGuessTime(ctx, team.ID, puzzle.ID); err == nil {
		return t, nil
	} else if !errors.Is(err, ErrNotFound) {
		return time.Time{}, err
	}

	ep, err := s.store.GetEpisode(ctx, puzzle.EpisodeID)
	if err != nil {
		return time.Time{}, err
	}
	return ep.StartDate, nil
}

func (s *Scheduler) discoveredSet(ctx context.Context, teamID string) (map[string]bool, error) {
	ids, err := s.store.ListDiscoveredEurekaIDs(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing discovered eurekas: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func requiresEureka(h hunt.Hint, eurekaID string) bool {
	for _, id := range h.EurekaIDs {
		if id == eurekaID {
			return true
		}
	}
	return false
}
