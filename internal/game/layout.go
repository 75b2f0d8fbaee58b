package game

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	BoardWidth  = 8
	BoardHeight = 8
)

type placement struct {
	kind UnitKind
	at   Position
}

// roster is side 0's starting line. Side 1 gets the point mirror.
var roster = []placement{
	{KindDefender, Position{X: 2, Y: 0}},
	{KindChampion, Position{X: 3, Y: 0}},
	{KindMage, Position{X: 4, Y: 0}},
	{KindScout, Position{X: 5, Y: 0}},
}

// walls on side 0's half. Each is mirrored into side 1's half.
var walls = []Position{
	{X: 2, Y: 3},
	{X: 5, Y: 3},
}

func mirror(p Position) Position {
	return Position{X: BoardWidth - 1 - p.X, Y: BoardHeight - 1 - p.Y}
}

// newLayout builds the fixed starting state for a match.
func newLayout(matchID string, players [2]string, catalog *Catalog) GameState {
	tiles := make([][]Tile, BoardHeight)
	for y := range tiles {
		tiles[y] = make([]Tile, BoardWidth)
		for x := range tiles[y] {
			tiles[y][x] = TileEmpty
		}
	}
	for _, w := range walls {
		m := mirror(w)
		tiles[w.Y][w.X] = TileWall
		tiles[m.Y][m.X] = TileWall
	}

	units := make([]Unit, 0, 2*len(roster))
	for side := 0; side < 2; side++ {
		for _, pl := range roster {
			at := pl.at
			if side == 1 {
				at = mirror(at)
			}
			units = append(units, newUnit(catalog, pl.kind, players[side], side, at))
		}
	}

	return GameState{
		MatchID:     matchID,
		Width:       BoardWidth,
		Height:      BoardHeight,
		Tiles:       tiles,
		Units:       units,
		CurrentTurn: players[0],
		Phase:       PhaseTurnBased,
		Players:     players,
	}
}

func newUnit(catalog *Catalog, kind UnitKind, owner string, side int, at Position) Unit {
	stats, ok := catalog.Get(kind)
	if !ok {
		panic(fmt.Sprintf("unit kind %q not in catalog", kind))
	}
	return Unit{
		ID:        uuid.NewString(),
		Kind:      kind,
		Owner:     owner,
		Side:      side,
		Position:  at,
		Health:    stats.MaxHealth,
		MaxHealth: stats.MaxHealth,
		Attack:    stats.Attack,
		Defense:   stats.Defense,
		Movement:  stats.Movement,
	}
}
