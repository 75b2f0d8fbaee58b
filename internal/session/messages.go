package session

import (
	"encoding/json"

	"tactics/internal/game"
)

// Message is the JSON envelope for every WebSocket frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> server.
const (
	TypeIdentify = "identify"
	TypeAction   = "action"
	TypePing     = "ping"
)

// Server -> client.
const (
	TypeIdentified   = "identified"
	TypeState        = "state"
	TypeError        = "error"
	TypePong         = "pong"
	TypeMatchCreated = "match_created"
	TypeMatchUpdated = "match_updated"
	TypeMatchRemoved = "match_removed"
)

type IdentifyPayload struct {
	PlayerID string `json:"playerId"`
	MatchID  string `json:"matchId"`
}

type IdentifiedPayload struct {
	PlayerID string         `json:"playerId"`
	MatchID  string         `json:"matchId"`
	State    game.GameState `json:"state"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type MatchRemovedPayload struct {
	MatchID string `json:"matchId"`
}

// Encode builds a frame. Payloads are plain structs, so marshaling cannot fail.
func Encode(msgType string, payload any) []byte {
	p, _ := json.Marshal(payload)
	msg, _ := json.Marshal(Message{Type: msgType, Payload: p})
	return msg
}
