package server

import (
	"errors"

	"go.uber.org/zap"

	"tactics/internal/game"
	"tactics/internal/lobby"
	"tactics/internal/session"
	"tactics/internal/storage"
)

// onLobbyEvent keeps the engine, the connections and the history in step
// with the lobby. It runs on the goroutine that caused the transition.
func (s *Server) onLobbyEvent(e lobby.Event) {
	m := e.Match
	switch e.Kind {
	case lobby.EventCreated:
		s.engine.Initialize(m.ID, m.Players())
		s.coord.PublishAll(session.Encode(session.TypeMatchCreated, m))
	case lobby.EventUpdated:
		if m.Status == lobby.StatusCompleted {
			s.forfeit(m)
		}
		s.coord.PublishAll(session.Encode(session.TypeMatchUpdated, m))
	case lobby.EventRemoved:
		s.engine.Remove(m.ID)
		s.coord.Forget(m.ID)
		s.coord.PublishAll(session.Encode(session.TypeMatchRemoved, session.MatchRemovedPayload{MatchID: m.ID}))
	}
	s.archive(e)
}

// forfeit ends the game of a match the lobby completed through an exit.
func (s *Server) forfeit(m lobby.Match) {
	st, err := s.engine.State(m.ID)
	if err != nil || st.Phase == game.PhaseGameOver {
		return
	}
	loser := m.Winner.Other().Index()
	_, err = s.coord.Commit(m.ID, func() (game.GameState, error) {
		return s.engine.Forfeit(m.ID, loser)
	})
	if err != nil {
		s.log.Warn("forfeit failed", zap.String("match_id", m.ID), zap.Error(err))
	}
}

// settle completes the lobby match once its game is over. It must not be
// called from inside a Commit.
func (s *Server) settle(st game.GameState) {
	if st.Phase != game.PhaseGameOver || st.Winner == "" {
		return
	}
	winner := lobby.SlotA
	if st.Winner == st.Players[1] {
		winner = lobby.SlotB
	}
	if _, err := s.lobby.Conclude(st.MatchID, winner); err != nil && !errors.Is(err, lobby.ErrNotAvailable) {
		s.log.Warn("conclude failed", zap.String("match_id", st.MatchID), zap.Error(err))
	}
}

func (s *Server) archive(e lobby.Event) {
	if s.history == nil {
		return
	}
	m := e.Match
	if e.Kind == lobby.EventRemoved {
		now := s.clock.Now()
		if err := s.history.MarkRemoved(m.ID, now); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("archive removal", zap.String("match_id", m.ID), zap.Error(err))
		}
		if err := s.history.RecordEvent(m.ID, string(e.Kind), "", now); err != nil {
			s.log.Warn("archive event", zap.String("match_id", m.ID), zap.Error(err))
		}
		return
	}

	row := storage.MatchRow{
		ID:        m.ID,
		SlotA:     m.Player(lobby.SlotA),
		SlotB:     m.Player(lobby.SlotB),
		Status:    string(m.Status),
		Winner:    string(m.Winner),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if err := s.history.SaveMatch(row); err != nil {
		s.log.Warn("archive match", zap.String("match_id", m.ID), zap.Error(err))
	}
	if err := s.history.RecordEvent(m.ID, string(e.Kind), string(m.Status), m.UpdatedAt); err != nil {
		s.log.Warn("archive event", zap.String("match_id", m.ID), zap.Error(err))
	}
}
