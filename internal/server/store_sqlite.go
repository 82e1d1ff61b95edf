package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/clueworks/huntapi/internal/hunt"
)

// SQLiteStore implements Store over a libSQL/SQLite database. Timestamps
// are stored as RFC 3339 text in UTC.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func newID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (s *SQLiteStore) TeamFromToken(ctx context.Context, token string) (hunt.Team, error) {
	return s.scanTeam(s.db.QueryRowContext(ctx, `
		SELECT id, hunt_id, name, token, points, created_at
		FROM teams WHERE token = ?
	`, token))
}

func (s *SQLiteStore) GetTeam(ctx context.Context, id string) (hunt.Team, error) {
	return s.scanTeam(s.db.QueryRowContext(ctx, `
		SELECT id, hunt_id, name, token, points, created_at
		FROM teams WHERE id = ?
	`, id))
}

func (s *SQLiteStore) scanTeam(row *sql.Row) (hunt.Team, error) {
	var t hunt.Team
	var createdAt string
	err := row.Scan(&t.ID, &t.HuntID, &t.Name, &t.Token, &t.Points, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.CreatedAt = parseTime(createdAt)
	return t, err
}

func (s *SQLiteStore) ListTeams(ctx context.Context, huntID string) ([]hunt.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hunt_id, name, token, points, created_at
		FROM teams WHERE hunt_id = ? ORDER BY created_at
	`, huntID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []hunt.Team
	for rows.Next() {
		var t hunt.Team
		var createdAt string
		if err := rows.Scan(&t.ID, &t.HuntID, &t.Name, &t.Token, &t.Points, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(createdAt)
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *SQLiteStore) GetHunt(ctx context.Context, id string) (hunt.Hunt, error) {
	var h hunt.Hunt
	var start, end, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, start_date, end_date, eureka_feedback, points_per_min, created_at
		FROM hunts WHERE id = ?
	`, id).Scan(&h.ID, &h.Name, &start, &end, &h.EurekaFeedback, &h.PointsPerMin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return h, ErrNotFound
	}
	h.StartDate = parseTime(start)
	h.EndDate = parseTime(end)
	h.CreatedAt = parseTime(createdAt)
	return h, err
}

func (s *SQLiteStore) ListHunts(ctx context.Context) ([]hunt.Hunt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_date, end_date, eureka_feedback, points_per_min, created_at
		FROM hunts ORDER BY start_date
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hunts []hunt.Hunt
	for rows.Next() {
		var h hunt.Hunt
		var start, end, createdAt string
		if err := rows.Scan(&h.ID, &h.Name, &start, &end, &h.EurekaFeedback, &h.PointsPerMin, &createdAt); err != nil {
			return nil, err
		}
		h.StartDate = parseTime(start)
		h.EndDate = parseTime(end)
		h.CreatedAt = parseTime(createdAt)
		hunts = append(hunts, h)
	}
	return hunts, rows.Err()
}

func (s *SQLiteStore) GetEpisode(ctx context.Context, id string) (hunt.Episode, error) {
	var e hunt.Episode
	var start string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, hunt_id, name, number, start_date FROM episodes WHERE id = ?
	`, id).Scan(&e.ID, &e.HuntID, &e.Name, &e.Number, &start)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	e.StartDate = parseTime(start)
	return e, err
}

func (s *SQLiteStore) ListEpisodes(ctx context.Context, huntID string) ([]hunt.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hunt_id, name, number, start_date
		FROM episodes WHERE hunt_id = ? ORDER BY number
	`, huntID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eps []hunt.Episode
	for rows.Next() {
		var e hunt.Episode
		var start string
		if err := rows.Scan(&e.ID, &e.HuntID, &e.Name, &e.Number, &start); err != nil {
			return nil, err
		}
		e.StartDate = parseTime(start)
		eps = append(eps, e)
	}
	return eps, rows.Err()
}

func (s *SQLiteStore) GetPuzzle(ctx context.Context, id string) (hunt.Puzzle, error) {
	rows, err := s.queryPuzzles(ctx, `WHERE p.id = ?`, id)
	if err != nil {
		return hunt.Puzzle{}, err
	}
	if len(rows) == 0 {
		return hunt.Puzzle{}, ErrNotFound
	}
	return rows[0], nil
}

func (s *SQLiteStore) ListPuzzles(ctx context.Context, huntID string) ([]hunt.Puzzle, error) {
	return s.queryPuzzles(ctx, `
		WHERE p.episode_id IN (SELECT id FROM episodes WHERE hunt_id = ?)
	`, huntID)
}

// queryPuzzles loads puzzles matching the WHERE clause along with their
// outgoing unlock edges, eureka rules, and hints in authoring order.
func (s *SQLiteStore) queryPuzzles(ctx context.Context, where string, args ...any) ([]hunt.Puzzle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.episode_id, p.name, p.number, p.answer, p.answer_regex,
			p.policy, p.num_required, p.points_cost, p.points_value
		FROM puzzles p `+where+`
		ORDER BY p.number
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var puzzles []hunt.Puzzle
	index := make(map[string]int)
	for rows.Next() {
		var p hunt.Puzzle
		var policy string
		if err := rows.Scan(&p.ID, &p.EpisodeID, &p.Name, &p.Number, &p.Answer,
			&p.AnswerRegex, &policy, &p.NumRequired, &p.PointsCost, &p.PointsValue); err != nil {
			return nil, err
		}
		p.Policy = hunt.UnlockPolicy(policy)
		index[p.ID] = len(puzzles)
		puzzles = append(puzzles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(puzzles) == 0 {
		return puzzles, nil
	}

	if err := s.loadEdges(ctx, puzzles, index); err != nil {
		return nil, err
	}
	if err := s.loadEurekas(ctx, puzzles, index); err != nil {
		return nil, err
	}
	if err := s.loadHints(ctx, puzzles, index); err != nil {
		return nil, err
	}
	return puzzles, nil
}

func (s *SQLiteStore) loadEdges(ctx context.Context, puzzles []hunt.Puzzle, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT puzzle_id, unlocks_id FROM puzzle_edges ORDER BY puzzle_id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return err
		}
		if i, ok := index[from]; ok {
			puzzles[i].Unlocks = append(puzzles[i].Unlocks, to)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadEurekas(ctx context.Context, puzzles []hunt.Puzzle, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, puzzle_id, regex, feedback, admin_only
		FROM eurekas ORDER BY puzzle_id, ord
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e hunt.Eureka
		var adminOnly int
		if err := rows.Scan(&e.ID, &e.PuzzleID, &e.Regex, &e.Feedback, &adminOnly); err != nil {
			return err
		}
		e.AdminOnly = adminOnly != 0
		if i, ok := index[e.PuzzleID]; ok {
			puzzles[i].Eurekas = append(puzzles[i].Eurekas, e)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadHints(ctx context.Context, puzzles []hunt.Puzzle, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, puzzle_id, text, delay_secs, short_delay_secs
		FROM hints ORDER BY puzzle_id, ord
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	hintIndex := make(map[string][2]int) // hint id -> (puzzle index, hint index)
	for rows.Next() {
		var h hunt.Hint
		var delaySecs, shortSecs int64
		if err := rows.Scan(&h.ID, &h.PuzzleID, &h.Text, &delaySecs, &shortSecs); err != nil {
			return err
		}
		h.Delay = time.Duration(delaySecs) * time.Second
		h.ShortDelay = time.Duration(shortSecs) * time.Second
		if i, ok := index[h.PuzzleID]; ok {
			hintIndex[h.ID] = [2]int{i, len(puzzles[i].Hints)}
			puzzles[i].Hints = append(puzzles[i].Hints, h)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	condRows, err := s.db.QueryContext(ctx, `
		SELECT hint_id, eureka_id FROM hint_eurekas ORDER BY hint_id
	`)
	if err != nil {
		return err
	}
	defer condRows.Close()

	for condRows.Next() {
		var hintID, eurekaID string
		if err := condRows.Scan(&hintID, &eurekaID); err != nil {
			return err
		}
		if pos, ok := hintIndex[hintID]; ok {
			h := &puzzles[pos[0]].Hints[pos[1]]
			h.EurekaIDs = append(h.EurekaIDs, eurekaID)
		}
	}
	return condRows.Err()
}

func (s *SQLiteStore) AddPoints(ctx context.Context, teamID string, delta int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE teams SET points = points + ? WHERE id = ?
	`, delta, teamID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ResetTeam(ctx context.Context, teamID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM solves WHERE team_id = ?`,
		`DELETE FROM unlocks WHERE team_id = ?`,
		`DELETE FROM eureka_unlocks WHERE team_id = ?`,
		`DELETE FROM guesses WHERE team_id = ?`,
		`UPDATE teams SET points = 0 WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, teamID); err != nil {
			return fmt.Errorf("resetting team: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) InsertGuess(ctx context.Context, g hunt.Guess) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guesses (id, team_id, puzzle_id, text, classification, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.TeamID, g.PuzzleID, g.Text, string(g.Classification), g.Response, formatTime(g.CreatedAt))
	return err
}

func (s *SQLiteStore) SetGuessResponse(ctx context.Context, guessID, text string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE guesses SET response = ? WHERE id = ?
	`, text, guessID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListPendingGuesses(ctx context.Context, huntID string) ([]hunt.Guess, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.team_id, g.puzzle_id, g.text, g.classification, g.response, g.created_at
		FROM guesses g
		JOIN teams t ON t.id = g.team_id
		WHERE t.hunt_id = ? AND g.classification = 'wrong' AND g.response = ''
		ORDER BY g.created_at
	`, huntID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guesses []hunt.Guess
	for rows.Next() {
		var g hunt.Guess
		var class, createdAt string
		if err := rows.Scan(&g.ID, &g.TeamID, &g.PuzzleID, &g.Text, &class, &g.Response, &createdAt); err != nil {
			return nil, err
		}
		g.Classification = hunt.Classification(class)
		g.CreatedAt = parseTime(createdAt)
		guesses = append(guesses, g)
	}
	return guesses, rows.Err()
}

// The three conditional inserts below rely on the primary keys of their
// tables. INSERT OR IGNORE makes the loser of a concurrent race observe
// "not created" instead of an error.

func (s *SQLiteStore) InsertSolveIfAbsent(ctx context.Context, teamID, puzzleID, guessID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO solves (team_id, puzzle_id, guess_id, created_at)
		VALUES (?, ?, ?, ?)
	`, teamID, puzzleID, guessID, formatTime(at))
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) InsertUnlockIfAbsent(ctx context.Context, teamID, puzzleID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO unlocks (team_id, puzzle_id, created_at)
		VALUES (?, ?, ?)
	`, teamID, puzzleID, formatTime(at))
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) InsertEurekaUnlockIfAbsent(ctx context.Context, teamID, eurekaID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO eureka_unlocks (team_id, eureka_id, created_at)
		VALUES (?, ?, ?)
	`, teamID, eurekaID, formatTime(at))
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) ListSolvedPuzzleIDs(ctx context.Context, teamID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT puzzle_id FROM solves WHERE team_id = ?`, teamID)
}

func (s *SQLiteStore) ListUnlockedPuzzleIDs(ctx context.Context, teamID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT puzzle_id FROM unlocks WHERE team_id = ?`, teamID)
}

func (s *SQLiteStore) ListDiscoveredEurekaIDs(ctx context.Context, teamID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT eureka_id FROM eureka_unlocks WHERE team_id = ?`, teamID)
}

func (s *SQLiteStore) listIDs(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) UnlockTime(ctx context.Context, teamID, puzzleID string) (time.Time, error) {
	var at string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM unlocks WHERE team_id = ? AND puzzle_id = ?
	`, teamID, puzzleID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(at), nil
}

func (s *SQLiteStore) FirstGuessTime(ctx context.Context, teamID, puzzleID string) (time.Time, error) {
	var at string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM guesses
		WHERE team_id = ? AND puzzle_id = ?
		ORDER BY created_at LIMIT 1
	`, teamID, puzzleID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(at), nil
}

func (s *SQLiteStore) StaffByEmail(ctx context.Context, email string) (string, string, error) {
	var id, passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM staff WHERE email = ?
	`, email).Scan(&id, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	return id, passwordHash, err
}

func (s *SQLiteStore) StaffFromSession(ctx context.Context, sessionID string) (staffSession, error) {
	var sess staffSession
	err := s.db.QueryRowContext(ctx, `
		SELECT st.id, st.email
		FROM staff_sessions s
		JOIN staff st ON st.id = s.staff_id
		WHERE s.id = ?
	`, sessionID).Scan(&sess.StaffID, &sess.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return staffSession{}, ErrNotFound
	}
	return sess, err
}

func (s *SQLiteStore) CreateStaffSession(ctx context.Context, staffID string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO staff_sessions (staff_id)
		VALUES (?)
		RETURNING id
	`, staffID).Scan(&sessionID)
	return sessionID, err
}

func (s *SQLiteStore) DeleteStaffSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM staff_sessions WHERE id = ?`, sessionID)
	return err
}
