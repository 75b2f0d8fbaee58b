package game

// EncounterMode selects how an attack onto an enemy tile is settled.
type EncounterMode string

const (
	// EncounterImmediate settles every attack at once: the mover wins.
	EncounterImmediate EncounterMode = "immediate"
	// EncounterDeferred parks the match in PhaseEncounterResolution until an
	// external collaborator reports the surviving unit.
	EncounterDeferred EncounterMode = "deferred"
)

// Rules are the tunable parts of the rule set.
type Rules struct {
	Encounters  EncounterMode
	AutoEndTurn bool
}

// DefaultRules resolve attacks immediately and pass the turn only on EndTurn.
func DefaultRules() Rules {
	return Rules{Encounters: EncounterImmediate}
}

// Validate reports why a is not legal against s, or nil. It never mutates s.
func (e *Engine) Validate(a Action, s GameState) error {
	if !s.Seated() {
		return ErrWaitingForOpponent
	}
	if a.PlayerID != s.CurrentTurn {
		return invalid("not %s's turn", a.PlayerID)
	}
	if s.Phase != PhaseTurnBased {
		return invalid("actions are not accepted during %s", s.Phase)
	}

	switch a.Type {
	case ActionEndTurn:
		return nil
	case ActionMove, ActionUseSkill:
	default:
		return invalid("unknown action type %q", a.Type)
	}

	u, ok := s.Unit(a.UnitID)
	if !ok {
		return invalid("unit %q not found", a.UnitID)
	}
	if u.Owner != a.PlayerID {
		return invalid("unit %s is not owned by %s", u.ID, a.PlayerID)
	}
	if a.Target == nil {
		return invalid("%s requires a target position", a.Type)
	}

	if a.Type == ActionMove {
		return checkMove(s, u, *a.Target)
	}
	return e.checkSkill(s, u, *a.Target)
}

func checkMove(s GameState, u Unit, to Position) error {
	from := u.Position
	if to == from {
		return invalid("unit is already at (%d,%d)", to.X, to.Y)
	}
	if !s.InBounds(to) {
		return invalid("target (%d,%d) is off the board", to.X, to.Y)
	}
	if !s.TileAt(to).Passable() {
		return invalid("target (%d,%d) is a wall", to.X, to.Y)
	}
	dx, dy := to.X-from.X, to.Y-from.Y
	if dx != 0 && dy != 0 {
		return invalid("diagonal moves are not allowed")
	}
	if dist := abs(dx) + abs(dy); dist > u.Movement {
		return invalid("distance %d exceeds %s movement %d", dist, u.Kind, u.Movement)
	}
	if err := checkLane(s, from, to); err != nil {
		return err
	}
	if occ, ok := s.UnitAt(to); ok && occ.Side == u.Side {
		return invalid("target (%d,%d) holds a friendly unit", to.X, to.Y)
	}
	return nil
}

func (e *Engine) checkSkill(s GameState, u Unit, to Position) error {
	stats, ok := e.catalog.Get(u.Kind)
	if !ok || stats.Skill == nil {
		return invalid("%s has no skill", u.Kind)
	}
	if !s.InBounds(to) {
		return invalid("target (%d,%d) is off the board", to.X, to.Y)
	}
	dx, dy := to.X-u.Position.X, to.Y-u.Position.Y
	if dx != 0 && dy != 0 {
		return invalid("%s must target along a row or column", stats.Skill.Name)
	}
	dist := abs(dx) + abs(dy)
	if dist == 0 || dist > stats.Skill.Range {
		return invalid("%s range is 1-%d, target is %d away", stats.Skill.Name, stats.Skill.Range, dist)
	}
	if err := checkLane(s, u.Position, to); err != nil {
		return err
	}
	occ, ok := s.UnitAt(to)
	if !ok || occ.Side == u.Side {
		return invalid("%s needs an enemy at (%d,%d)", stats.Skill.Name, to.X, to.Y)
	}
	return nil
}

// checkLane rejects anything standing strictly between from and to.
func checkLane(s GameState, from, to Position) error {
	step := Position{X: sign(to.X - from.X), Y: sign(to.Y - from.Y)}
	for p := (Position{X: from.X + step.X, Y: from.Y + step.Y}); p != to; p = (Position{X: p.X + step.X, Y: p.Y + step.Y}) {
		if _, ok := s.UnitAt(p); ok {
			return invalid("path is blocked at (%d,%d)", p.X, p.Y)
		}
		if !s.TileAt(p).Passable() {
			return invalid("path crosses a wall at (%d,%d)", p.X, p.Y)
		}
	}
	return nil
}

// transition applies a validated action to s, which must be a private clone.
func (e *Engine) transition(s *GameState, a Action) {
	switch a.Type {
	case ActionEndTurn:
		advanceTurn(s)
		return
	case ActionMove:
		e.move(s, a.UnitID, *a.Target)
	case ActionUseSkill:
		strike(s, a.UnitID, *a.Target)
	}
	settle(s)
	if e.rules.AutoEndTurn && s.Phase == PhaseTurnBased {
		advanceTurn(s)
	}
}

func (e *Engine) move(s *GameState, unitID string, to Position) {
	i := s.unitIndex(unitID)
	enemy, attacking := s.UnitAt(to)
	if attacking && e.rules.Encounters == EncounterDeferred {
		s.Phase = PhaseEncounterResolution
		s.Encounter = &Encounter{AttackerID: unitID, DefenderID: enemy.ID, At: to}
		return
	}
	s.Units[i].Position = to
	if attacking {
		s.removeUnit(enemy.ID)
	}
}

func strike(s *GameState, unitID string, at Position) {
	attacker, _ := s.Unit(unitID)
	target, _ := s.UnitAt(at)
	ti := s.unitIndex(target.ID)
	dmg := max(1, attacker.Attack-target.Defense)
	s.Units[ti].Health = clamp(target.Health-dmg, 0, target.MaxHealth)
	if s.Units[ti].Health == 0 {
		s.removeUnit(target.ID)
	}
}

// resolve settles the pending encounter in favor of survivorID.
func resolve(s *GameState, survivorID string) error {
	if s.Phase != PhaseEncounterResolution || s.Encounter == nil {
		return invalid("no encounter is pending")
	}
	enc := *s.Encounter
	switch survivorID {
	case enc.AttackerID:
		s.removeUnit(enc.DefenderID)
		s.Units[s.unitIndex(enc.AttackerID)].Position = enc.At
	case enc.DefenderID:
		s.removeUnit(enc.AttackerID)
	default:
		return invalid("unit %q is not part of the encounter", survivorID)
	}
	s.Encounter = nil
	s.Phase = PhaseTurnBased
	settle(s)
	return nil
}

// settle ends the game once a side has no units left.
func settle(s *GameState) {
	if s.Phase == PhaseEncounterResolution {
		return
	}
	for side := 0; side < 2; side++ {
		if len(s.UnitsOf(side)) == 0 {
			s.Phase = PhaseGameOver
			s.Winner = s.Players[1-side]
			return
		}
	}
}

func advanceTurn(s *GameState) {
	next := (s.SideOf(s.CurrentTurn) + 1) % len(s.Players)
	s.CurrentTurn = s.Players[next]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

func clamp(n, lo, hi int) int {
	return min(max(n, lo), hi)
}
