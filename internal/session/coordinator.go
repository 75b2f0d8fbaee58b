package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tactics/internal/game"
)

var (
	ErrNoMatchBound      = errors.New("connection is not bound to a match")
	ErrInvalidIdentity   = errors.New("playerId and matchId are required")
	ErrUnknownConnection = errors.New("unknown connection")
)

// Engine is the part of the game engine the coordinator drives.
type Engine interface {
	Apply(matchID string, a game.Action) (game.GameState, error)
	State(matchID string) (game.GameState, error)
}

// Coordinator maps live connections to (player, match) identities, routes
// actions to the engine and fans results out to each match's connections.
type Coordinator struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	engine Engine
	seq    sequencer
	log    *zap.Logger
}

// NewCoordinator creates a coordinator with no connections.
func NewCoordinator(engine Engine, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		conns:  make(map[string]*Conn),
		engine: engine,
		seq:    sequencer{locks: make(map[string]*sync.Mutex)},
		log:    logger.Named("session"),
	}
}

// Connect registers a new connection with a fresh id.
func (c *Coordinator) Connect() *Conn {
	conn := newConn(uuid.NewString())
	c.mu.Lock()
	c.conns[conn.ID] = conn
	c.mu.Unlock()
	c.log.Debug("connected", zap.String("conn_id", conn.ID))
	return conn
}

func (c *Coordinator) conn(connID string) (*Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.conns[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return conn, nil
}

// Identify binds connID to playerID in matchID, replacing any earlier
// binding, and queues an identified frame carrying the current state. The
// claim is not verified.
func (c *Coordinator) Identify(connID, playerID, matchID string) error {
	playerID, matchID = strings.TrimSpace(playerID), strings.TrimSpace(matchID)
	if playerID == "" || matchID == "" {
		return ErrInvalidIdentity
	}
	conn, err := c.conn(connID)
	if err != nil {
		return err
	}

	unlock := c.seq.lock(matchID)
	defer unlock()

	st, err := c.engine.State(matchID)
	if err != nil {
		return err
	}
	conn.bind(playerID, matchID)
	conn.Deliver(Encode(TypeIdentified, IdentifiedPayload{PlayerID: playerID, MatchID: matchID, State: st}))
	c.log.Info("identified",
		zap.String("conn_id", connID),
		zap.String("player_id", playerID),
		zap.String("match_id", matchID))
	return nil
}

// RouteAction applies a on the connection's match and broadcasts the new
// state. Errors are returned to the caller only and never broadcast.
func (c *Coordinator) RouteAction(connID string, a game.Action) (game.GameState, error) {
	conn, err := c.conn(connID)
	if err != nil {
		return game.GameState{}, err
	}
	playerID, matchID := conn.Binding()
	if matchID == "" {
		return game.GameState{}, ErrNoMatchBound
	}
	if a.PlayerID == "" {
		a.PlayerID = playerID
	}
	return c.Commit(matchID, func() (game.GameState, error) {
		return c.engine.Apply(matchID, a)
	})
}

// Commit runs fn in matchID's order and, if it succeeds, broadcasts the
// state it returns to every connection bound to the match. All state changes
// of a match go through here so every observer sees the same sequence.
func (c *Coordinator) Commit(matchID string, fn func() (game.GameState, error)) (game.GameState, error) {
	unlock := c.seq.lock(matchID)
	defer unlock()

	st, err := fn()
	if err != nil {
		return game.GameState{}, err
	}
	c.broadcast(matchID, Encode(TypeState, st))
	return st, nil
}

func (c *Coordinator) broadcast(matchID string, frame []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conn := range c.conns {
		if !conn.boundTo(matchID) {
			continue
		}
		if !conn.Deliver(frame) {
			c.log.Warn("slow connection kicked",
				zap.String("conn_id", conn.ID),
				zap.String("match_id", matchID))
		}
	}
}

// PublishAll queues frame on every connection.
func (c *Coordinator) PublishAll(frame []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conn := range c.conns {
		conn.Deliver(frame)
	}
}

// Drop forgets connID. It never touches match or game state.
func (c *Coordinator) Drop(connID string) {
	c.mu.Lock()
	conn, ok := c.conns[connID]
	delete(c.conns, connID)
	c.mu.Unlock()
	if !ok {
		return
	}
	conn.close()
	playerID, matchID := conn.Binding()
	c.log.Info("disconnected",
		zap.String("conn_id", connID),
		zap.String("player_id", playerID),
		zap.String("match_id", matchID))
}

// Forget releases per-match bookkeeping once a match is gone.
func (c *Coordinator) Forget(matchID string) {
	c.seq.forget(matchID)
}

// Subscribers returns how many connections are bound to matchID.
func (c *Coordinator) Subscribers(matchID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, conn := range c.conns {
		if conn.boundTo(matchID) {
			n++
		}
	}
	return n
}

// sequencer hands out one mutex per match.
type sequencer struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (s *sequencer) lock(matchID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[matchID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[matchID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// forget drops the match's mutex. A caller still holding it finishes
// normally; the engine rejects anything addressed to a removed match.
func (s *sequencer) forget(matchID string) {
	s.mu.Lock()
	delete(s.locks, matchID)
	s.mu.Unlock()
}
