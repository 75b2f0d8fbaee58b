package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tactics/internal/game"
)

func setupTest(t *testing.T) (*Coordinator, *game.Engine) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	eng := game.NewEngine(game.DefaultCatalog(), game.DefaultRules(), logger)
	eng.Initialize("m1", [2]string{"alice", "bob"})
	eng.Initialize("m2", [2]string{"carol", "dan"})
	return NewCoordinator(eng, logger), eng
}

// next pops one queued frame, failing if none is waiting.
func next(t *testing.T, conn *Conn) Message {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatalf("expected a queued frame for %s", conn.ID)
		return Message{}
	}
}

func nextState(t *testing.T, conn *Conn) game.GameState {
	t.Helper()
	msg := next(t, conn)
	require.Equal(t, TypeState, msg.Type, string(msg.Payload))
	var st game.GameState
	require.NoError(t, json.Unmarshal(msg.Payload, &st))
	return st
}

func identify(t *testing.T, c *Coordinator, playerID, matchID string) *Conn {
	t.Helper()
	conn := c.Connect()
	require.NoError(t, c.Identify(conn.ID, playerID, matchID))
	msg := next(t, conn)
	require.Equal(t, TypeIdentified, msg.Type)
	return conn
}

func TestIdentifySendsCurrentState(t *testing.T) {
	c, _ := setupTest(t)
	conn := c.Connect()
	require.NoError(t, c.Identify(conn.ID, "alice", "m1"))

	msg := next(t, conn)
	require.Equal(t, TypeIdentified, msg.Type)
	var p IdentifiedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "alice", p.PlayerID)
	assert.Equal(t, "m1", p.MatchID)
	assert.Equal(t, "m1", p.State.MatchID)
	assert.Equal(t, 1, c.Subscribers("m1"))
}

func TestIdentifyErrors(t *testing.T) {
	c, _ := setupTest(t)
	conn := c.Connect()

	assert.ErrorIs(t, c.Identify(conn.ID, "", "m1"), ErrInvalidIdentity)
	assert.ErrorIs(t, c.Identify(conn.ID, "alice", " "), ErrInvalidIdentity)
	assert.ErrorIs(t, c.Identify(conn.ID, "alice", "nope"), game.ErrNotFound)
	assert.ErrorIs(t, c.Identify("ghost", "alice", "m1"), ErrUnknownConnection)
	assert.Zero(t, c.Subscribers("m1"))
}

func TestIdentifyRebinds(t *testing.T) {
	c, _ := setupTest(t)
	conn := identify(t, c, "alice", "m1")
	require.NoError(t, c.Identify(conn.ID, "carol", "m2"))

	playerID, matchID := conn.Binding()
	assert.Equal(t, "carol", playerID)
	assert.Equal(t, "m2", matchID)
	assert.Zero(t, c.Subscribers("m1"))
	assert.Equal(t, 1, c.Subscribers("m2"))
}

func TestRouteActionBroadcastsToMatchOnly(t *testing.T) {
	c, _ := setupTest(t)
	alice := identify(t, c, "alice", "m1")
	bob := identify(t, c, "bob", "m1")
	other := identify(t, c, "carol", "m2")

	st, err := c.RouteAction(alice.ID, game.Action{Type: game.ActionEndTurn, PlayerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "bob", st.CurrentTurn)

	assert.Equal(t, st, nextState(t, alice))
	assert.Equal(t, st, nextState(t, bob))
	assert.Empty(t, other.Send, "other matches see nothing")
}

func TestRouteActionFillsPlayerFromBinding(t *testing.T) {
	c, _ := setupTest(t)
	alice := identify(t, c, "alice", "m1")

	st, err := c.RouteAction(alice.ID, game.Action{Type: game.ActionEndTurn})
	require.NoError(t, err)
	assert.Equal(t, "bob", st.CurrentTurn)
}

func TestRouteActionErrorsStayPrivate(t *testing.T) {
	c, eng := setupTest(t)
	alice := identify(t, c, "alice", "m1")
	bob := identify(t, c, "bob", "m1")
	before, _ := eng.State("m1")

	_, err := c.RouteAction(bob.ID, game.Action{Type: game.ActionEndTurn, PlayerID: "bob"})
	assert.ErrorIs(t, err, game.ErrInvalidAction)
	assert.Empty(t, alice.Send)
	assert.Empty(t, bob.Send)

	after, _ := eng.State("m1")
	assert.Equal(t, before, after)
}

func TestRouteActionWithoutBinding(t *testing.T) {
	c, _ := setupTest(t)
	conn := c.Connect()

	_, err := c.RouteAction(conn.ID, game.Action{Type: game.ActionEndTurn, PlayerID: "alice"})
	assert.ErrorIs(t, err, ErrNoMatchBound)

	_, err = c.RouteAction("ghost", game.Action{Type: game.ActionEndTurn})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestDropLeavesGameAlone(t *testing.T) {
	c, eng := setupTest(t)
	alice := identify(t, c, "alice", "m1")
	before, _ := eng.State("m1")

	c.Drop(alice.ID)
	c.Drop(alice.ID)

	select {
	case <-alice.Done():
	default:
		t.Fatal("expected dropped connection to be done")
	}
	assert.Zero(t, c.Subscribers("m1"))
	after, err := eng.State("m1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = c.RouteAction(alice.ID, game.Action{Type: game.ActionEndTurn})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestSlowConnectionIsKicked(t *testing.T) {
	c, _ := setupTest(t)
	slow := identify(t, c, "bob", "m1")
	alice := identify(t, c, "alice", "m1")
	for i := 0; i < cap(slow.Send); i++ {
		slow.Send <- []byte("filler")
	}

	_, err := c.RouteAction(alice.ID, game.Action{Type: game.ActionEndTurn})
	require.NoError(t, err)

	select {
	case <-slow.Done():
	default:
		t.Fatal("expected slow connection to be kicked")
	}
	nextState(t, alice)
}

func TestPublishAllReachesEveryConnection(t *testing.T) {
	c, _ := setupTest(t)
	a := identify(t, c, "alice", "m1")
	b := c.Connect()

	c.PublishAll(Encode(TypeMatchRemoved, MatchRemovedPayload{MatchID: "m9"}))
	for _, conn := range []*Conn{a, b} {
		msg := next(t, conn)
		assert.Equal(t, TypeMatchRemoved, msg.Type)
	}
}

func TestCommitFailureBroadcastsNothing(t *testing.T) {
	c, _ := setupTest(t)
	a := identify(t, c, "alice", "m1")

	_, err := c.Commit("m1", func() (game.GameState, error) { return game.GameState{}, game.ErrNotFound })
	assert.ErrorIs(t, err, game.ErrNotFound)
	assert.Empty(t, a.Send)
}

func TestConcurrentActionsSeenInSameOrder(t *testing.T) {
	c, _ := setupTest(t)
	alice := identify(t, c, "alice", "m1")
	bob := identify(t, c, "bob", "m1")
	watcher := identify(t, c, "spectator", "m1")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		conn, player := alice, "alice"
		if i%2 == 1 {
			conn, player = bob, "bob"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RouteAction(conn.ID, game.Action{Type: game.ActionEndTurn, PlayerID: player})
		}()
	}
	wg.Wait()

	versions := func(conn *Conn) []int {
		var out []int
		for len(conn.Send) > 0 {
			out = append(out, nextState(t, conn).Version)
		}
		return out
	}
	seen := versions(watcher)
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Equal(t, seen[i-1]+1, seen[i], "versions must arrive in order without gaps")
	}
	assert.Equal(t, seen, versions(alice))
	assert.Equal(t, seen, versions(bob))
}

func TestForgetReleasesSequencer(t *testing.T) {
	c, _ := setupTest(t)
	unlock := c.seq.lock("m1")
	unlock()
	c.Forget("m1")

	c.seq.mu.Lock()
	_, ok := c.seq.locks["m1"]
	c.seq.mu.Unlock()
	assert.False(t, ok)
}
