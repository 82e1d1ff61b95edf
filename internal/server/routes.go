package server

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/swaggest/swgui/v5emb"
)

// Deps carries everything the route tree needs.
type Deps struct {
	Store     Store
	Broker    *Broker
	Scheduler *Scheduler
	Processor *GuessProcessor
	DB        *sql.DB
	Redis     *redis.Client // nil when the bridge is disabled
}

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("HuntAPI", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, d.DB, d.Redis))

	// Team routes — Bearer team token.
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(teamAuthMiddleware(d.Store))
			r.Get("/hunt", handleProgress(d.Store, d.Processor))
			r.Post("/puzzles/{puzzleID}/guess", handleGuess(logger, d.Store, d.Processor))
			r.Get("/events", handleEvents(d.Broker))
			r.Get("/puzzles/{puzzleID}/ws", handlePuzzleWS(logger, d.Store, d.Broker, d.Scheduler))
		})

		// Staff routes — cookie session.
		r.Post("/staff/login", handleStaffLogin(d.Store))
		r.Post("/staff/logout", handleStaffLogout(d.Store))
		r.Group(func(r chi.Router) {
			r.Use(staffAuthMiddleware(d.Store))
			r.Get("/staff/guesses", handleStaffListGuesses(d.Store))
			r.Put("/staff/guesses/{guessID}/response", handleStaffGuessResponse(d.Store))
			r.Post("/staff/teams/{teamID}/reset", handleStaffResetTeam(logger, d.Store, d.Scheduler, d.Broker))
		})
	})
}
