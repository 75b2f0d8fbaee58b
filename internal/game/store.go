package game

import "sync"

// Store owns one GameState per match. Each match has its own lock so actions
// on one match are serialized without blocking any other match.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state GameState
	gone  bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Put stores s for matchID, replacing any previous state.
func (st *Store) Put(matchID string, s GameState) {
	st.mu.Lock()
	e, ok := st.entries[matchID]
	if !ok {
		st.entries[matchID] = &entry{state: s}
		st.mu.Unlock()
		return
	}
	st.mu.Unlock()

	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// With runs fn with exclusive access to the match's state. fn may replace
// *s; the replacement is what later callers observe.
func (st *Store) With(matchID string, fn func(s *GameState) error) error {
	st.mu.RLock()
	e, ok := st.entries[matchID]
	st.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return ErrNotFound
	}
	return fn(&e.state)
}

// Load returns a copy of the match's state.
func (st *Store) Load(matchID string) (GameState, error) {
	var out GameState
	err := st.With(matchID, func(s *GameState) error {
		out = s.Clone()
		return nil
	})
	return out, err
}

// Delete drops the match's state. Callers blocked in With see ErrNotFound.
func (st *Store) Delete(matchID string) {
	st.mu.Lock()
	e, ok := st.entries[matchID]
	delete(st.entries, matchID)
	st.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.gone = true
	e.mu.Unlock()
}

// Len returns the number of stored states.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}
