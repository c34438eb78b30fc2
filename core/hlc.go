package core

// core/hlc.go — hybrid logical clock. Every fact committed by a client is
// stamped here; the (wall, logical, node) triple gives a total order across
// clients while staying close to physical time.

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Timestamp is a hybrid logical clock reading. Ordering is lexicographic on
// (Wall, Logical, Node).
type Timestamp struct {
	Wall    uint64 // milliseconds since the Unix epoch
	Logical uint32
	Node    uint32
}

// IsZero reports whether t is the zero timestamp, which no clock ever emits.
func (t Timestamp) IsZero() bool {
	return t.Wall == 0 && t.Logical == 0 && t.Node == 0
}

// Compare returns -1, 0 or 1 ordering t against other.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Wall < other.Wall:
		return -1
	case t.Wall > other.Wall:
		return 1
	case t.Logical < other.Logical:
		return -1
	case t.Logical > other.Logical:
		return 1
	case t.Node < other.Node:
		return -1
	case t.Node > other.Node:
		return 1
	}
	return 0
}

// Clock is a hybrid logical clock instance. Successive calls to Now on one
// instance yield strictly increasing timestamps.
type Clock struct {
	mu      sync.Mutex
	wall    uint64
	logical uint32
	node    uint32
	nowMS   func() uint64
}

// NewClock constructs a clock with a random node identifier. Two instances
// collide with negligible probability.
func NewClock() *Clock {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("hlc: node id entropy unavailable: " + err.Error())
	}
	return &Clock{
		node:  binary.BigEndian.Uint32(b[:]),
		nowMS: func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
}

// NewClockAt constructs a clock with a fixed node id and wall-time source.
// Used by tests that need deterministic readings.
func NewClockAt(node uint32, nowMS func() uint64) *Clock {
	return &Clock{node: node, nowMS: nowMS}
}

// Node returns the clock's node identifier.
func (c *Clock) Node() uint32 { return c.node }

// Now returns the next timestamp. If physical time moved forward the logical
// counter resets; otherwise it increments.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	wall := c.nowMS()
	if wall > c.wall {
		c.wall = wall
		c.logical = 0
	} else {
		c.tick()
	}
	return Timestamp{Wall: c.wall, Logical: c.logical, Node: c.node}
}

// Observe folds a remote timestamp into the clock so that the next Now
// reading is strictly greater than both the remote stamp and all earlier
// local ones.
func (c *Clock) Observe(remote Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wall := c.nowMS()
	maxWall := wall
	if c.wall > maxWall {
		maxWall = c.wall
	}
	if remote.Wall > maxWall {
		maxWall = remote.Wall
	}
	switch {
	case maxWall == c.wall && maxWall == remote.Wall:
		if remote.Logical > c.logical {
			c.logical = remote.Logical
		}
		c.tick()
	case maxWall == c.wall:
		c.tick()
	case maxWall == remote.Wall:
		c.wall = maxWall
		c.logical = remote.Logical
		c.tick()
	default:
		c.wall = maxWall
		c.logical = 0
	}
}

// tick advances the logical counter, spilling into the wall component instead
// of wrapping within a physical tick.
func (c *Clock) tick() {
	if c.logical == math.MaxUint32 {
		c.wall++
		c.logical = 0
		return
	}
	c.logical++
}
