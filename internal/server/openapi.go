package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "HuntAPI"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for puzzle hunt progression: guesses, unlocks, and timed hints.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/hunt
	getHunt, _ := r.NewOperationContext(http.MethodGet, "/api/hunt")
	getHunt.SetSummary("Team progress")
	getHunt.SetDescription("Returns the team's unlocked puzzles, solves, and point balance. Requires Bearer team token.")
	getHunt.AddRespStructure(ProgressResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHunt.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getHunt)

	// POST /api/puzzles/{puzzleID}/guess
	postGuess, _ := r.NewOperationContext(http.MethodPost, "/api/puzzles/{puzzleID}/guess")
	postGuess.SetSummary("Submit guess")
	postGuess.SetDescription("Submit a guess for an unlocked puzzle. Always returns a classification: correct, eureka, or wrong.")
	postGuess.AddReqStructure(GuessRequest{})
	postGuess.AddRespStructure(GuessResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postGuess)

	// GET /api/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of solves, unlocks, eurekas, and hints for the team. Pass token as query parameter.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/puzzles/{puzzleID}/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/puzzles/{puzzleID}/ws")
	getWS.SetSummary("Puzzle channel")
	getWS.SetDescription("WebSocket channel for an unlocked puzzle. Connecting starts the hint timers; hints and team events are pushed as JSON.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// POST /api/staff/login
	postLogin, _ := r.NewOperationContext(http.MethodPost, "/api/staff/login")
	postLogin.SetSummary("Staff login")
	postLogin.AddReqStructure(StaffLoginRequest{})
	postLogin.AddRespStructure(StaffMeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postLogin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(postLogin)

	// GET /api/staff/guesses
	getGuesses, _ := r.NewOperationContext(http.MethodGet, "/api/staff/guesses")
	getGuesses.SetSummary("Triage queue")
	getGuesses.SetDescription("Wrong guesses with no response yet, for staff annotation.")
	getGuesses.AddRespStructure([]PendingGuess{}, openapi.WithHTTPStatus(http.StatusOK))
	getGuesses.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getGuesses)

	// PUT /api/staff/guesses/{guessID}/response
	putResponse, _ := r.NewOperationContext(http.MethodPut, "/api/staff/guesses/{guessID}/response")
	putResponse.SetSummary("Annotate guess")
	putResponse.SetDescription("Attach a human response to a guess. Does not change its classification.")
	putResponse.AddReqStructure(GuessResponseRequest{})
	putResponse.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	putResponse.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(putResponse)

	// POST /api/staff/teams/{teamID}/reset
	postReset, _ := r.NewOperationContext(http.MethodPost, "/api/staff/teams/{teamID}/reset")
	postReset.SetSummary("Reset team")
	postReset.SetDescription("Deletes the team's solves, unlocks, eurekas and guesses, zeroes points, and cancels hint timers.")
	postReset.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	postReset.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postReset)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(spec)
	}
}
