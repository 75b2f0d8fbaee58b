package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"tactics/internal/game"
	"tactics/internal/lobby"
	"tactics/internal/session"
	"tactics/internal/storage"
)

// --- Test environment ---

type testEnv struct {
	ts      *httptest.Server
	lobby   *lobby.Registry
	engine  *game.Engine
	coord   *session.Coordinator
	history *storage.Store
	clock   *clockwork.FakeClock
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithRules(t, game.DefaultRules())
}

func setupTestEnvWithRules(t *testing.T, rules game.Rules) *testEnv {
	t.Helper()
	// WebSocket handlers can outlive the test by a few milliseconds, which a
	// test-bound logger would report as a panic.
	return newTestEnv(t, rules, zap.NewNop())
}

func newTestEnv(t *testing.T, rules game.Rules, logger *zap.Logger) *testEnv {
	t.Helper()
	history, err := storage.New(":memory:")
	require.NoError(t, err, "open db")
	t.Cleanup(func() { history.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	reg := lobby.NewRegistry(clock, logger)
	eng := game.NewEngine(game.DefaultCatalog(), rules, logger)
	coord := session.NewCoordinator(eng, logger)

	srv := New(Deps{
		Lobby:       reg,
		Engine:      eng,
		Coordinator: coord,
		History:     history,
		Clock:       clock,
		Logger:      logger,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, lobby: reg, engine: eng, coord: coord, history: history, clock: clock}
}

func timeoutCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// --- REST helpers ---

// do sends body (a string is sent verbatim, anything else as JSON) and
// decodes the response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "%s %s", method, path)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), "decode %s %s", method, path)
	}
	return resp.StatusCode
}

func (e *testEnv) createMatch(t *testing.T, creator string) lobby.Match {
	t.Helper()
	var m lobby.Match
	status := e.do(t, http.MethodPost, "/api/matches", createMatchRequest{CreatorName: creator}, &m)
	require.Equal(t, http.StatusCreated, status)
	return m
}

func (e *testEnv) joinMatch(t *testing.T, matchID, slot, name string) lobby.Match {
	t.Helper()
	var m lobby.Match
	status := e.do(t, http.MethodPost, "/api/matches/"+matchID+"/join", joinRequest{Slot: slot, PlayerName: name}, &m)
	require.Equal(t, http.StatusOK, status)
	return m
}

// startMatch creates a match for Alice and seats Bob.
func (e *testEnv) startMatch(t *testing.T) lobby.Match {
	t.Helper()
	m := e.createMatch(t, "Alice")
	return e.joinMatch(t, m.ID, "B", "Bob")
}

func (e *testEnv) state(t *testing.T, matchID string) game.GameState {
	t.Helper()
	var st game.GameState
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/matches/"+matchID+"/state", nil, &st))
	return st
}

func unitOf(t *testing.T, st game.GameState, side int, kind game.UnitKind) game.Unit {
	t.Helper()
	for _, u := range st.UnitsOf(side) {
		if u.Kind == kind {
			return u
		}
	}
	t.Fatalf("side %d has no %s", side, kind)
	return game.Unit{}
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws"
}

// dialWS connects and waits for a pong, so the connection is registered
// with the coordinator when it returns.
func dialWS(t *testing.T, e *testEnv) *websocket.Conn {
	t.Helper()
	ctx := timeoutCtx(t)
	conn, _, err := websocket.Dial(ctx, wsURL(e.ts), nil)
	require.NoError(t, err, "ws dial")
	t.Cleanup(func() { conn.CloseNow() })
	sendWS(ctx, t, conn, session.TypePing, nil)
	readType(ctx, t, conn, session.TypePong)
	return conn
}

func sendWS(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, session.Encode(msgType, payload)), "ws write")
}

func readWS(ctx context.Context, t *testing.T, conn *websocket.Conn) session.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err, "ws read")
	var msg session.Message
	require.NoError(t, json.Unmarshal(data, &msg), "unmarshal ws message")
	return msg
}

func isLobbyEvent(msgType string) bool {
	return strings.HasPrefix(msgType, "match_")
}

// readType returns the next message of type want. Lobby events in between
// are skipped; any other message fails the test.
func readType(ctx context.Context, t *testing.T, conn *websocket.Conn, want string) session.Message {
	t.Helper()
	for {
		msg := readWS(ctx, t, conn)
		if msg.Type == want {
			return msg
		}
		if isLobbyEvent(msg.Type) {
			continue
		}
		t.Fatalf("expected %q message, got %q: %s", want, msg.Type, string(msg.Payload))
	}
}

func readState(ctx context.Context, t *testing.T, conn *websocket.Conn) game.GameState {
	t.Helper()
	msg := readType(ctx, t, conn, session.TypeState)
	var st game.GameState
	require.NoError(t, json.Unmarshal(msg.Payload, &st))
	return st
}

func readError(ctx context.Context, t *testing.T, conn *websocket.Conn) session.ErrorPayload {
	t.Helper()
	msg := readType(ctx, t, conn, session.TypeError)
	var ep session.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &ep))
	return ep
}

// identifyWS binds conn and returns the snapshot from the acknowledgement.
func identifyWS(ctx context.Context, t *testing.T, conn *websocket.Conn, playerID, matchID string) game.GameState {
	t.Helper()
	sendWS(ctx, t, conn, session.TypeIdentify, session.IdentifyPayload{PlayerID: playerID, MatchID: matchID})
	msg := readType(ctx, t, conn, session.TypeIdentified)
	var p session.IdentifiedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	require.Equal(t, matchID, p.MatchID)
	return p.State
}
