package game

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Engine is the turn-based rules engine. It is the only writer of the
// states held in its Store.
type Engine struct {
	store   *Store
	catalog *Catalog
	rules   Rules
	log     *zap.Logger
}

// NewEngine creates an engine with an empty state store.
func NewEngine(catalog *Catalog, rules Rules, logger *zap.Logger) *Engine {
	if rules.Encounters == "" {
		rules.Encounters = EncounterImmediate
	}
	return &Engine{
		store:   NewStore(),
		catalog: catalog,
		rules:   rules,
		log:     logger.Named("engine"),
	}
}

// Catalog returns the unit kinds the engine plays with.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Initialize builds the starting state for matchID, replacing any previous
// state. Calling it again is how a match is reset.
func (e *Engine) Initialize(matchID string, players [2]string) GameState {
	fresh := newLayout(matchID, players, e.catalog)
	err := e.store.With(matchID, func(s *GameState) error {
		fresh.Version = s.Version + 1
		*s = fresh
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		e.store.Put(matchID, fresh)
	}
	e.log.Debug("initialized", zap.String("match_id", matchID), zap.Int("version", fresh.Version))
	return fresh.Clone()
}

// Seat assigns playerID to an empty side and hands that side's units over.
func (e *Engine) Seat(matchID string, side int, playerID string) (GameState, error) {
	if side != 0 && side != 1 {
		return GameState{}, invalid("side %d does not exist", side)
	}
	if playerID == "" {
		return GameState{}, invalid("player id is required")
	}
	var out GameState
	err := e.store.With(matchID, func(s *GameState) error {
		if cur := s.Players[side]; cur != "" && cur != playerID {
			return invalid("side %d is held by %s", side, cur)
		}
		if s.Players[1-side] == playerID {
			return invalid("%s already plays side %d", playerID, 1-side)
		}
		next := s.Clone()
		next.Players[side] = playerID
		for i := range next.Units {
			if next.Units[i].Side == side {
				next.Units[i].Owner = playerID
			}
		}
		if next.CurrentTurn == "" {
			next.CurrentTurn = next.Players[0]
		}
		next.Version++
		*s = next
		out = next.Clone()
		return nil
	})
	return out, err
}

// Apply validates a against the current state of matchID and, if legal,
// stores and returns the resulting state. A rejected action leaves the
// stored state untouched.
func (e *Engine) Apply(matchID string, a Action) (GameState, error) {
	var out GameState
	err := e.store.With(matchID, func(s *GameState) error {
		if err := e.Validate(a, *s); err != nil {
			return err
		}
		next := s.Clone()
		e.transition(&next, a)
		next.Version++
		*s = next
		out = next.Clone()
		return nil
	})
	if err != nil {
		e.log.Debug("action rejected",
			zap.String("match_id", matchID),
			zap.String("player_id", a.PlayerID),
			zap.String("action", string(a.Type)),
			zap.Error(err))
		return GameState{}, err
	}
	if out.Phase == PhaseGameOver {
		e.log.Info("game over", zap.String("match_id", matchID), zap.String("winner", out.Winner))
	}
	return out, nil
}

// ResolveEncounter reports the outcome of a pending encounter: survivorID
// stays on the board and the other unit is removed.
func (e *Engine) ResolveEncounter(matchID, survivorID string) (GameState, error) {
	var out GameState
	err := e.store.With(matchID, func(s *GameState) error {
		next := s.Clone()
		if err := resolve(&next, survivorID); err != nil {
			return err
		}
		if e.rules.AutoEndTurn && next.Phase == PhaseTurnBased {
			advanceTurn(&next)
		}
		next.Version++
		*s = next
		out = next.Clone()
		return nil
	})
	if err != nil {
		return GameState{}, fmt.Errorf("resolve encounter: %w", err)
	}
	return out, nil
}

// Forfeit ends the game with side losing. A game that is already over is
// left as it is.
func (e *Engine) Forfeit(matchID string, side int) (GameState, error) {
	if side != 0 && side != 1 {
		return GameState{}, invalid("side %d does not exist", side)
	}
	var out GameState
	err := e.store.With(matchID, func(s *GameState) error {
		if s.Phase == PhaseGameOver {
			out = s.Clone()
			return nil
		}
		next := s.Clone()
		next.Phase = PhaseGameOver
		next.Encounter = nil
		next.Winner = next.Players[1-side]
		next.Version++
		*s = next
		out = next.Clone()
		return nil
	})
	if err != nil {
		return GameState{}, err
	}
	e.log.Info("forfeit", zap.String("match_id", matchID), zap.Int("side", side), zap.String("winner", out.Winner))
	return out, nil
}

// State returns a snapshot of matchID's state.
func (e *Engine) State(matchID string) (GameState, error) {
	return e.store.Load(matchID)
}

// Remove destroys matchID's state.
func (e *Engine) Remove(matchID string) {
	e.store.Delete(matchID)
}
