package game

import (
	"fmt"
	"sort"
	"sync"
)

// UnitKind names a unit archetype.
type UnitKind string

const (
	KindChampion UnitKind = "champion"
	KindScout    UnitKind = "scout"
	KindDefender UnitKind = "defender"
	KindMage     UnitKind = "mage"
)

// Skill is an action a unit kind can take besides moving.
type Skill struct {
	Name  string `json:"name"`
	Range int    `json:"range"`
}

// KindStats are the base stats shared by every unit of a kind.
type KindStats struct {
	Kind      UnitKind `json:"kind"`
	MaxHealth int      `json:"maxHealth"`
	Attack    int      `json:"attack"`
	Defense   int      `json:"defense"`
	Movement  int      `json:"movement"`
	Skill     *Skill   `json:"skill,omitempty"`
}

// Catalog holds all registered unit kinds.
type Catalog struct {
	mu    sync.RWMutex
	kinds map[UnitKind]KindStats
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{kinds: make(map[UnitKind]KindStats)}
}

// DefaultCatalog returns a catalog with the four standard kinds.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Register(KindStats{Kind: KindChampion, MaxHealth: 12, Attack: 5, Defense: 3, Movement: 2})
	c.Register(KindStats{Kind: KindScout, MaxHealth: 6, Attack: 2, Defense: 1, Movement: 3})
	c.Register(KindStats{Kind: KindDefender, MaxHealth: 14, Attack: 2, Defense: 5, Movement: 1})
	c.Register(KindStats{Kind: KindMage, MaxHealth: 7, Attack: 4, Defense: 1, Movement: 1,
		Skill: &Skill{Name: "bolt", Range: 3}})
	return c
}

// Register adds a unit kind. Panics on duplicate kinds.
func (c *Catalog) Register(k KindStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.kinds[k.Kind]; exists {
		panic(fmt.Sprintf("unit kind %q already registered", k.Kind))
	}
	c.kinds[k.Kind] = k
}

// Get returns the stats of a kind.
func (c *Catalog) Get(kind UnitKind) (KindStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.kinds[kind]
	return k, ok
}

// List returns all registered kinds ordered by name.
func (c *Catalog) List() []KindStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]KindStats, 0, len(c.kinds))
	for _, k := range c.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
