package game

// Tile is the terrain of one board cell.
type Tile string

const (
	TileEmpty Tile = "empty"
	TileWall  Tile = "wall"
)

// Passable reports whether a unit may stand on or cross the tile.
func (t Tile) Passable() bool {
	return t != TileWall
}

// Phase is the per-match game-state phase.
type Phase string

const (
	PhaseTurnBased           Phase = "turn_based"
	PhaseEncounterResolution Phase = "encounter_resolution"
	PhaseGameOver            Phase = "game_over"
)

// Position is a board coordinate. X is the column, Y the row.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Unit is one piece on the board.
type Unit struct {
	ID        string   `json:"id"`
	Kind      UnitKind `json:"kind"`
	Owner     string   `json:"owner"`
	Side      int      `json:"side"` // index into GameState.Players
	Position  Position `json:"position"`
	Health    int      `json:"health"`
	MaxHealth int      `json:"maxHealth"`
	Attack    int      `json:"attack"`
	Defense   int      `json:"defense"`
	Movement  int      `json:"movement"`
}

// Encounter records a pending attack while the match is in
// PhaseEncounterResolution.
type Encounter struct {
	AttackerID string   `json:"attackerId"`
	DefenderID string   `json:"defenderId"`
	At         Position `json:"at"`
}

// GameState is the authoritative snapshot of one match. Values handed out by
// the engine are deep copies; mutating them has no effect on the store.
type GameState struct {
	MatchID     string     `json:"matchId"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Tiles       [][]Tile   `json:"tiles"` // [y][x]
	Units       []Unit     `json:"units"`
	CurrentTurn string     `json:"currentTurn"`
	Phase       Phase      `json:"phase"`
	Players     [2]string  `json:"players"`
	Version     int        `json:"version"`
	Encounter   *Encounter `json:"encounter,omitempty"`
	Winner      string     `json:"winner,omitempty"`
}

// ActionType discriminates client actions.
type ActionType string

const (
	ActionMove     ActionType = "move"
	ActionEndTurn  ActionType = "end_turn"
	ActionUseSkill ActionType = "use_skill"
)

// Action is a client request to change a GameState.
type Action struct {
	Type     ActionType `json:"type"`
	PlayerID string     `json:"playerId"`
	UnitID   string     `json:"unitId,omitempty"`
	Target   *Position  `json:"targetPosition,omitempty"`
	// ClientTimestamp is advisory only. It is never used for ordering.
	ClientTimestamp int64 `json:"clientTimestamp,omitempty"`
}

// Clone returns a deep copy of s.
func (s GameState) Clone() GameState {
	c := s
	c.Tiles = make([][]Tile, len(s.Tiles))
	for y, row := range s.Tiles {
		c.Tiles[y] = append([]Tile(nil), row...)
	}
	c.Units = append([]Unit(nil), s.Units...)
	if s.Encounter != nil {
		e := *s.Encounter
		c.Encounter = &e
	}
	return c
}

// InBounds reports whether p lies on the board.
func (s GameState) InBounds(p Position) bool {
	return p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height
}

// TileAt returns the terrain at p. Callers must check InBounds first.
func (s GameState) TileAt(p Position) Tile {
	return s.Tiles[p.Y][p.X]
}

// Unit returns the unit with the given id.
func (s GameState) Unit(id string) (Unit, bool) {
	if i := s.unitIndex(id); i >= 0 {
		return s.Units[i], true
	}
	return Unit{}, false
}

// UnitAt returns the unit standing on p, if any.
func (s GameState) UnitAt(p Position) (Unit, bool) {
	for _, u := range s.Units {
		if u.Position == p {
			return u, true
		}
	}
	return Unit{}, false
}

// UnitsOf returns the units owned by side.
func (s GameState) UnitsOf(side int) []Unit {
	var out []Unit
	for _, u := range s.Units {
		if u.Side == side {
			out = append(out, u)
		}
	}
	return out
}

// SideOf returns the index of playerID in Players, or -1.
func (s GameState) SideOf(playerID string) int {
	if playerID == "" {
		return -1
	}
	for i, p := range s.Players {
		if p == playerID {
			return i
		}
	}
	return -1
}

// Seated reports whether both players are assigned.
func (s GameState) Seated() bool {
	return s.Players[0] != "" && s.Players[1] != ""
}

func (s GameState) unitIndex(id string) int {
	for i, u := range s.Units {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (s *GameState) removeUnit(id string) {
	if i := s.unitIndex(id); i >= 0 {
		s.Units = append(s.Units[:i], s.Units[i+1:]...)
	}
}
