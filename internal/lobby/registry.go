package lobby

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Registry owns every match record in the process.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Match
	clock   clockwork.Clock
	log     *zap.Logger

	// emitMu is held from a transition through its emit, so listeners see
	// transitions in the order they were applied.
	emitMu      sync.Mutex
	listenersMu sync.RWMutex
	listeners   []func(Event)
}

// NewRegistry creates an empty registry.
func NewRegistry(clock clockwork.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		matches: make(map[string]*Match),
		clock:   clock,
		log:     logger.Named("lobby"),
	}
}

// Subscribe registers fn to receive every lifecycle event. Listeners run
// synchronously on the goroutine that caused the transition and must not
// call Create, Join, HandleExit, Conclude or SweepExpired.
func (r *Registry) Subscribe(fn func(Event)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) emit(kind EventKind, m Match) {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	for _, fn := range r.listeners {
		fn(Event{Kind: kind, Match: m.clone()})
	}
}

// Create opens a waiting match with the creator in slot A.
func (r *Registry) Create(creatorName string) (Match, error) {
	name := strings.TrimSpace(creatorName)
	if name == "" {
		return Match{}, fmt.Errorf("%w: creator name is required", ErrInvalidInput)
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	now := r.clock.Now()
	m := &Match{
		ID:        uuid.NewString(),
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.setSlot(SlotA, name)

	r.mu.Lock()
	r.matches[m.ID] = m
	out := m.clone()
	r.mu.Unlock()

	r.log.Info("match created", zap.String("match_id", out.ID), zap.String("creator", name))
	r.emit(EventCreated, out)
	return out, nil
}

// Get returns a snapshot of one match.
func (r *Registry) Get(matchID string) (Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[matchID]
	if !ok {
		return Match{}, ErrNotFound
	}
	return m.clone(), nil
}

// ListActive returns every match that is not completed, newest first.
func (r *Registry) ListActive() []Match {
	return r.list(func(m *Match) bool { return m.Status != StatusCompleted })
}

// ListCompleted returns every completed match, newest first.
func (r *Registry) ListCompleted() []Match {
	return r.list(func(m *Match) bool { return m.Status == StatusCompleted })
}

func (r *Registry) list(keep func(*Match) bool) []Match {
	r.mu.RLock()
	out := make([]Match, 0, len(r.matches))
	for _, m := range r.matches {
		if keep(m) {
			out = append(out, m.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Join fills slot with playerName. The match starts once both slots are
// filled.
func (r *Registry) Join(matchID string, slot Slot, playerName string) (Match, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return Match{}, fmt.Errorf("%w: player name is required", ErrInvalidInput)
	}
	if slot != SlotA && slot != SlotB {
		return Match{}, fmt.Errorf("%w: unknown slot %q", ErrInvalidInput, slot)
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.mu.Lock()
	m, ok := r.matches[matchID]
	if !ok {
		r.mu.Unlock()
		return Match{}, ErrNotFound
	}
	if m.Status != StatusWaiting {
		r.mu.Unlock()
		return Match{}, fmt.Errorf("%w: match is %s", ErrNotAvailable, m.Status)
	}
	if m.Filled(slot) {
		r.mu.Unlock()
		return Match{}, fmt.Errorf("%w: slot %s", ErrSlotTaken, slot)
	}
	if m.Player(slot.Other()) == name {
		r.mu.Unlock()
		return Match{}, fmt.Errorf("%w: %s is already in this match", ErrInvalidInput, name)
	}
	m.setSlot(slot, name)
	if m.Filled(SlotA) && m.Filled(SlotB) {
		m.Status = StatusInProgress
	}
	m.UpdatedAt = r.clock.Now()
	out := m.clone()
	r.mu.Unlock()

	r.log.Info("player joined",
		zap.String("match_id", matchID),
		zap.String("slot", string(slot)),
		zap.String("player", name),
		zap.String("status", string(out.Status)))
	r.emit(EventUpdated, out)
	return out, nil
}

// ExitResult reports what HandleExit did.
type ExitResult struct {
	Removed bool  `json:"removed"`
	Match   Match `json:"match"`
}

// HandleExit processes a player leaving. A match nobody else ever joined is
// deleted; otherwise it completes with the leaver losing.
func (r *Registry) HandleExit(matchID string, leaving Slot) (ExitResult, error) {
	if leaving != SlotA && leaving != SlotB {
		return ExitResult{}, fmt.Errorf("%w: unknown slot %q", ErrInvalidInput, leaving)
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.mu.Lock()
	m, ok := r.matches[matchID]
	if !ok {
		r.mu.Unlock()
		return ExitResult{}, ErrNotFound
	}
	if m.Status == StatusCompleted {
		r.mu.Unlock()
		return ExitResult{}, fmt.Errorf("%w: match already completed", ErrNotAvailable)
	}
	if !m.Filled(leaving) {
		r.mu.Unlock()
		return ExitResult{}, fmt.Errorf("%w: slot %s is empty", ErrInvalidInput, leaving)
	}

	if !m.Filled(leaving.Other()) {
		delete(r.matches, matchID)
		out := m.clone()
		r.mu.Unlock()

		r.log.Info("match removed", zap.String("match_id", matchID), zap.String("reason", "exit"))
		r.emit(EventRemoved, out)
		return ExitResult{Removed: true, Match: out}, nil
	}

	r.complete(m, leaving.Other())
	out := m.clone()
	r.mu.Unlock()

	r.log.Info("match forfeited", zap.String("match_id", matchID), zap.String("leaver", string(leaving)))
	r.emit(EventUpdated, out)
	return ExitResult{Match: out}, nil
}

// Conclude completes an in-progress match in favor of winner.
func (r *Registry) Conclude(matchID string, winner Slot) (Match, error) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	m, ok := r.matches[matchID]
	if !ok {
		r.mu.Unlock()
		return Match{}, ErrNotFound
	}
	if m.Status != StatusInProgress {
		r.mu.Unlock()
		return Match{}, fmt.Errorf("%w: match is %s", ErrNotAvailable, m.Status)
	}
	r.complete(m, winner)
	out := m.clone()
	r.mu.Unlock()

	r.log.Info("match concluded", zap.String("match_id", matchID), zap.String("winner", string(winner)))
	r.emit(EventUpdated, out)
	return out, nil
}

// complete must be called with r.mu held.
func (r *Registry) complete(m *Match, winner Slot) {
	loser := winner.Other()
	m.setSlot(winner, m.Player(winner)+" (won)")
	m.setSlot(loser, m.Player(loser)+" (lost)")
	m.Winner = winner
	m.Status = StatusCompleted
	m.UpdatedAt = r.clock.Now()
}

// SweepExpired deletes every match created more than maxAge ago,
// whatever its status.
func (r *Registry) SweepExpired(maxAge time.Duration) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	now := r.clock.Now()
	var removed []Match

	r.mu.Lock()
	for id, m := range r.matches {
		if now.Sub(m.CreatedAt) > maxAge {
			delete(r.matches, id)
			removed = append(removed, m.clone())
		}
	}
	r.mu.Unlock()

	for _, m := range removed {
		r.log.Info("match removed", zap.String("match_id", m.ID), zap.String("reason", "expired"))
		r.emit(EventRemoved, m)
	}
}

// Len returns the number of matches held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}
