package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// A hint whose fire time has long passed must reach a client that
// connects afterwards: activation fires it synchronously, so the
// connection has to be subscribed before the session is activated.
func TestPuzzleWSDeliversOverdueHint(t *testing.T) {
	r, _, db := setupRouter(t)

	// Push the unlock far enough back that the 30m hint on the harbor
	// puzzle is unambiguously overdue at connect time.
	past := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339Nano)
	if _, err := db.Exec(`UPDATE unlocks SET created_at = ? WHERE team_id = 't1' AND puzzle_id = 'p2'`, past); err != nil {
		t.Fatalf("backdate unlock: %v", err)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/api/puzzles/p2/ws?token=tok-red", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no hint arrived on the socket")
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("bad payload %q: %v", data, err)
		}
		if e.Type == "hint" {
			if e.HintID != "hint1" || e.Text != "Look at the tides" {
				t.Errorf("hint event = %+v", e)
			}
			return
		}
	}
}

// Connecting to a puzzle the team has not unlocked is rejected before
// the upgrade.
func TestPuzzleWSRequiresUnlock(t *testing.T) {
	r, _, _ := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, _, err := websocket.Dial(ctx, srv.URL+"/api/puzzles/p3/ws?token=tok-red", nil); err == nil {
		t.Fatal("dial to locked puzzle succeeded, want rejection")
	}
}
