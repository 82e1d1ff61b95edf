package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
)

// handlePuzzleWS is the live puzzle channel. Connecting marks the team as
// working on the puzzle and activates its hint session; hint firings and
// other team events stream down the socket. Closing the socket cancels
// the pending hint timers — on reconnect Activate recomputes delays and
// re-fires anything already due.
func handlePuzzleWS(logger *slog.Logger, store Store, broker *Broker, scheduler *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		team := teamFrom(r)

		puzzle, err := store.GetPuzzle(r.Context(), chi.URLParam(r, "puzzleID"))
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "puzzle not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		unlocked, err := store.ListUnlockedPuzzleIDs(r.Context(), team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !containsID(unlocked, puzzle.ID) {
			writeError(w, http.StatusForbidden, "puzzle not unlocked")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		// Subscribe before activating: hints already overdue fire
		// synchronously inside Activate, and those events must land in
		// this connection's channel.
		ch := broker.Subscribe(team.ID)
		defer broker.Unsubscribe(team.ID, ch)

		if err := scheduler.Activate(r.Context(), team, puzzle); err != nil {
			logger.Error("activating hint session", "team", team.ID, "puzzle", puzzle.ID, "error", err)
			conn.Close(websocket.StatusInternalError, "activation failed")
			return
		}
		defer scheduler.OnDisconnect(team.ID, puzzle.ID)

		ctx := r.Context()

		// Reads are drained only to detect the client going away.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-readDone:
				return
			case data := <-ch:
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}
