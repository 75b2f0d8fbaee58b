package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"tactics/internal/game"
	"tactics/internal/lobby"
	"tactics/internal/session"
	"tactics/internal/storage"
)

var errMalformed = errors.New("malformed request")

// Deps are the components the server exposes.
type Deps struct {
	Lobby       *lobby.Registry
	Engine      *game.Engine
	Coordinator *session.Coordinator
	History     *storage.Store // optional
	Clock       clockwork.Clock
	Logger      *zap.Logger
	// AllowedOrigins are WebSocket origin patterns. Empty allows any origin.
	AllowedOrigins []string
}

// Server is the HTTP and WebSocket front of the match server.
type Server struct {
	mux     *http.ServeMux
	lobby   *lobby.Registry
	engine  *game.Engine
	coord   *session.Coordinator
	history *storage.Store
	clock   clockwork.Clock
	origins []string
	log     *zap.Logger
}

// New creates a server with all routes and subscribes it to lobby events.
func New(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		lobby:   d.Lobby,
		engine:  d.Engine,
		coord:   d.Coordinator,
		history: d.History,
		clock:   d.Clock,
		origins: d.AllowedOrigins,
		log:     d.Logger.Named("server"),
	}
	s.lobby.Subscribe(s.onLobbyEvent)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/unit-kinds", s.handleListUnitKinds)
	s.mux.HandleFunc("POST /api/matches", s.handleCreateMatch)
	s.mux.HandleFunc("GET /api/matches", s.handleListMatches)
	s.mux.HandleFunc("GET /api/matches/{id}", s.handleGetMatch)
	s.mux.HandleFunc("POST /api/matches/{id}/join", s.handleJoinMatch)
	s.mux.HandleFunc("POST /api/matches/{id}/exit", s.handleExitMatch)
	s.mux.HandleFunc("GET /api/matches/{id}/state", s.handleGetState)
	s.mux.HandleFunc("POST /api/matches/{id}/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/matches/{id}/encounter", s.handleEncounter)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/history/{id}", s.handleHistoryMatch)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleListUnitKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Catalog().List())
}

type createMatchRequest struct {
	CreatorName string `json:"creatorName"`
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.lobby.Create(req.CreatorName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type listMatchesResponse struct {
	Active    []lobby.Match `json:"active"`
	Completed []lobby.Match `json:"completed"`
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listMatchesResponse{
		Active:    s.lobby.ListActive(),
		Completed: s.lobby.ListCompleted(),
	})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.lobby.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type joinRequest struct {
	Slot       string `json:"slot"`
	PlayerName string `json:"playerName"`
}

func (s *Server) handleJoinMatch(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !s.decode(w, r, &req) {
		return
	}
	slot, err := lobby.ParseSlot(req.Slot)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := r.PathValue("id")
	m, err := s.lobby.Join(id, slot, req.PlayerName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_, err = s.coord.Commit(id, func() (game.GameState, error) {
		return s.engine.Seat(id, slot.Index(), m.Player(slot))
	})
	if err != nil {
		// The lobby already holds the player, so the match is stuck until it
		// is swept or exited.
		s.log.Error("seat failed after join",
			zap.String("match_id", id),
			zap.String("slot", string(slot)),
			zap.String("status", string(m.Status)),
			zap.Error(err))
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type exitRequest struct {
	Slot string `json:"slot"`
}

func (s *Server) handleExitMatch(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if !s.decode(w, r, &req) {
		return
	}
	slot, err := lobby.ParseSlot(req.Slot)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.lobby.HandleExit(r.PathValue("id"), slot)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.State(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Checked under the match sequencer so a forfeit cannot slip in between.
	st, err := s.coord.Commit(id, func() (game.GameState, error) {
		m, err := s.lobby.Get(id)
		if err != nil {
			return game.GameState{}, err
		}
		cur, err := s.engine.State(id)
		if err != nil {
			return game.GameState{}, err
		}
		if m.Status == lobby.StatusCompleted || cur.Phase == game.PhaseGameOver {
			return game.GameState{}, fmt.Errorf("%w: match is over", lobby.ErrNotAvailable)
		}
		return s.engine.Initialize(id, cur.Players), nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("match reset", zap.String("match_id", id), zap.Int("version", st.Version))
	writeJSON(w, http.StatusOK, st)
}

type encounterRequest struct {
	SurvivorID string `json:"survivorId"`
}

func (s *Server) handleEncounter(w http.ResponseWriter, r *http.Request) {
	var req encounterRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	st, err := s.coord.Commit(id, func() (game.GameState, error) {
		return s.engine.ResolveEncounter(id, req.SurvivorID)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.settle(st)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []storage.MatchRow{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, lobby.ErrInvalidInput)
			return
		}
		limit = n
	}
	rows, err := s.history.ListMatches(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type historyMatchResponse struct {
	Match  storage.MatchRow   `json:"match"`
	Events []storage.EventRow `json:"events"`
}

func (s *Server) handleHistoryMatch(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, storage.ErrNotFound)
		return
	}
	id := r.PathValue("id")
	m, err := s.history.GetMatch(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	events, err := s.history.Events(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyMatchResponse{Match: m, Events: events})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "matches": s.lobby.Len()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, errMalformed)
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// errorCode maps an error to its stable client code and HTTP status.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, game.ErrWaitingForOpponent):
		return "WAITING_FOR_OPPONENT", http.StatusConflict
	case errors.Is(err, game.ErrInvalidAction):
		return "INVALID_ACTION", http.StatusBadRequest
	case errors.Is(err, lobby.ErrNotFound), errors.Is(err, game.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, lobby.ErrSlotTaken):
		return "SLOT_TAKEN", http.StatusConflict
	case errors.Is(err, lobby.ErrNotAvailable):
		return "NOT_AVAILABLE", http.StatusConflict
	case errors.Is(err, session.ErrNoMatchBound):
		return "NO_MATCH_BOUND", http.StatusBadRequest
	case errors.Is(err, lobby.ErrInvalidInput), errors.Is(err, session.ErrInvalidIdentity), errors.Is(err, errMalformed):
		return "INVALID_INPUT", http.StatusBadRequest
	}
	return "INTERNAL", http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
