package lobby

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("match not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotAvailable = errors.New("match is not available")
	ErrSlotTaken    = errors.New("slot already taken")
)

// Status represents the match lifecycle.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Slot is one of the two player positions in a match.
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

// ParseSlot accepts "a", "b", "slotA" and "slotB" in any case.
func ParseSlot(s string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "slota":
		return SlotA, nil
	case "b", "slotb":
		return SlotB, nil
	}
	return "", fmt.Errorf("%w: unknown slot %q", ErrInvalidInput, s)
}

// Index is the slot's position in the engine's player order.
func (s Slot) Index() int {
	if s == SlotB {
		return 1
	}
	return 0
}

// Other returns the opposing slot.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// Match is a lobby record: two player slots and their lifecycle.
type Match struct {
	ID        string    `json:"id"`
	SlotA     *string   `json:"slotA"`
	SlotB     *string   `json:"slotB"`
	Status    Status    `json:"status"`
	Winner    Slot      `json:"winner,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Player returns the name in slot, or "" when the slot is empty.
func (m Match) Player(slot Slot) string {
	p := m.slot(slot)
	if *p == nil {
		return ""
	}
	return **p
}

// Players returns both names in engine order. Empty slots are "".
func (m Match) Players() [2]string {
	return [2]string{m.Player(SlotA), m.Player(SlotB)}
}

// Filled reports whether slot holds a player.
func (m Match) Filled(slot Slot) bool {
	return *m.slot(slot) != nil
}

func (m *Match) slot(slot Slot) **string {
	if slot == SlotB {
		return &m.SlotB
	}
	return &m.SlotA
}

func (m *Match) setSlot(slot Slot, name string) {
	*m.slot(slot) = &name
}

// clone copies the slot names so callers cannot reach registry memory.
func (m Match) clone() Match {
	c := m
	if m.SlotA != nil {
		a := *m.SlotA
		c.SlotA = &a
	}
	if m.SlotB != nil {
		b := *m.SlotB
		c.SlotB = &b
	}
	return c
}

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
)

// Event is emitted by the registry after every lifecycle transition.
type Event struct {
	Kind  EventKind `json:"kind"`
	Match Match     `json:"match"`
}
