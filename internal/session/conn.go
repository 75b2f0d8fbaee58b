package session

import "sync"

// SendBuffer is the number of frames queued per connection before it is
// considered too slow and kicked.
const SendBuffer = 64

// Conn is one live transport connection and its claimed identity.
type Conn struct {
	ID   string
	Send chan []byte // outbound frames, drained by the transport writer

	mu       sync.RWMutex
	playerID string
	matchID  string

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string) *Conn {
	return &Conn{
		ID:   id,
		Send: make(chan []byte, SendBuffer),
		done: make(chan struct{}),
	}
}

// Binding returns the identity the connection claimed.
func (c *Conn) Binding() (playerID, matchID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID, c.matchID
}

func (c *Conn) bind(playerID, matchID string) {
	c.mu.Lock()
	c.playerID, c.matchID = playerID, matchID
	c.mu.Unlock()
}

func (c *Conn) boundTo(matchID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.matchID == matchID
}

// Done is closed once the connection has been dropped or kicked.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Deliver queues frame without blocking. A full queue kicks the connection
// and reports false.
func (c *Conn) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- frame:
		return true
	default:
		c.close()
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
