// Package hunt defines the core domain types and the pure progression
// rules: guess classification and puzzle unlock eligibility. It has zero
// external dependencies — everything here is plain Go.
package hunt

import "time"

type Hunt struct {
	ID             string
	Name           string
	StartDate      time.Time
	EndDate        time.Time
	EurekaFeedback string // default feedback for eurekas that define none
	PointsPerMin   int    // points credited to every team per minute, 0 disables accrual
	CreatedAt      time.Time
}

// Closed reports whether the hunt is in its public/archived phase.
// Progression is frozen after this point: guesses still classify, but no
// solves, points, or unlocks are recorded.
func (h Hunt) Closed(now time.Time) bool {
	return !h.EndDate.IsZero() && !now.Before(h.EndDate)
}

type Episode struct {
	ID        string
	HuntID    string
	Name      string
	Number    int
	StartDate time.Time
}

// UnlockPolicy selects how a puzzle becomes available to a team.
type UnlockPolicy string

const (
	UnlockSolves UnlockPolicy = "SOL" // prerequisite solve count
	UnlockPoints UnlockPolicy = "POT" // point balance
	UnlockEither UnlockPolicy = "ETH" // solves OR points
	UnlockBoth   UnlockPolicy = "BTH" // solves AND points
)

type Puzzle struct {
	ID          string
	EpisodeID   string
	Name        string
	Number      int
	Answer      string
	AnswerRegex string // optional, checked in addition to Answer
	Policy      UnlockPolicy
	NumRequired int // prerequisite solves needed under SOL/ETH/BTH
	PointsCost  int // point balance needed under POT/ETH/BTH
	PointsValue int // points awarded on solve
	Unlocks     []string // ids of puzzles this puzzle counts toward unlocking
	Eurekas     []Eureka // authoring order
	Hints       []Hint   // authoring order
}

// Eureka is a regex-triggered partial-progress response, independent of
// solving the puzzle.
type Eureka struct {
	ID       string
	PuzzleID string
	Regex    string
	Feedback  string // empty means use the hunt default
	AdminOnly bool   // surfaced only in staff tooling, evaluated identically
}

// FeedbackOr returns the eureka's feedback, falling back to the hunt
// default when the rule defines none.
func (e Eureka) FeedbackOr(def string) string {
	if e.Feedback != "" {
		return e.Feedback
	}
	return def
}

// Hint is staff-authored text released to a team after a delay. The delay
// shortens once the team has found every eureka the hint requires.
type Hint struct {
	ID         string
	PuzzleID   string
	Text       string
	Delay      time.Duration // from the team's puzzle start time
	ShortDelay time.Duration // applies once all required eurekas are found
	EurekaIDs  []string      // empty means ShortDelay never applies
}

// DelayFor returns the hint's effective delay for a team that has
// discovered the given eurekas. The shorter delay applies only when every
// required eureka has been found; a hint with no requirements always uses
// the base delay.
func (h Hint) DelayFor(discovered map[string]bool) time.Duration {
	if len(h.EurekaIDs) == 0 {
		return h.Delay
	}
	for _, id := range h.EurekaIDs {
		if !discovered[id] {
			return h.Delay
		}
	}
	return h.ShortDelay
}

type Team struct {
	ID        string
	HuntID    string
	Name      string
	Token     string // bearer token members use to authenticate
	Points    int
	CreatedAt time.Time
}

// Classification buckets for a submitted guess.
type Classification string

const (
	ClassCorrect Classification = "correct"
	ClassEureka  Classification = "eureka"
	ClassWrong   Classification = "wrong"
)

type Guess struct {
	ID             string
	TeamID         string
	PuzzleID       string
	Text           string
	Classification Classification
	Response       string // human-authored, empty means staff triage pending
	CreatedAt      time.Time
}

// Solve, Unlock and EurekaUnlock are append-only join records. Creation is
// conditional on their (team, subject) uniqueness; they are removed only by
// a full team reset.

type Solve struct {
	TeamID    string
	PuzzleID  string
	GuessID   string
	CreatedAt time.Time
}

type Unlock struct {
	TeamID    string
	PuzzleID  string
	CreatedAt time.Time
}

type EurekaUnlock struct {
	TeamID    string
	EurekaID  string
	CreatedAt time.Time
}
