// Package clock implements the Hybrid Logical Clock (HLC) that stamps
// every CRDT mutation: a single shared mutable handle producing a
// causally-ordered Timestamp, combining wall-clock time with a logical
// counter so concurrent events on one node still order deterministically.
package clock

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrClockOverflow is returned by Now/Update when the counter would wrap
// past math.MaxUint32 within the same millisecond.
var ErrClockOverflow = errors.New("clock: counter overflow")

// ErrInvalidTimestamp is returned by Parse when the canonical
// "millis:counter:nodeId" form cannot be decoded.
var ErrInvalidTimestamp = errors.New("clock: invalid timestamp")

// Timestamp is the triple (millis, counter, nodeId) with lexicographic
// comparison in that field order.
type Timestamp struct {
	Millis  int64
	Counter uint32
	NodeID  string
}

// String encodes the canonical "millis:counter:nodeId" form, used both
// as Merkle hash input and as the OR-Map tag.
func (t Timestamp) String() string {
	return fmt.Sprintf("%d:%d:%s", t.Millis, t.Counter, t.NodeID)
}

// Parse decodes the canonical form produced by String.
func Parse(s string) (Timestamp, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Timestamp{}, ErrInvalidTimestamp
	}
	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Timestamp{}, ErrInvalidTimestamp
	}
	counter, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Timestamp{}, ErrInvalidTimestamp
	}
	if parts[2] == "" {
		return Timestamp{}, ErrInvalidTimestamp
	}
	return Timestamp{Millis: millis, Counter: uint32(counter), NodeID: parts[2]}, nil
}

// Compare returns -1, 0, or 1 comparing a and b lexicographically on
// (millis, counter, nodeId).
func Compare(a, b Timestamp) int {
	if a.Millis != b.Millis {
		if a.Millis < b.Millis {
			return -1
		}
		return 1
	}
	if a.Counter != b.Counter {
		if a.Counter < b.Counter {
			return -1
		}
		return 1
	}
	return strings.Compare(a.NodeID, b.NodeID)
}

// Source supplies wall-clock millis; tests substitute a deterministic
// source instead of time.Now.
type Source interface {
	NowMillis() int64
}

// SystemSource reads the real wall clock.
type SystemSource struct{}

func (SystemSource) NowMillis() int64 { return time.Now().UnixMilli() }

// Clock is the single shared mutable HLC handle for all maps bound to
// it. Now() and Update() are non-reentrant mutations — the caller must
// serialize cross-map operations sharing one Clock; the mutex here only
// protects the clock's own internal state from
// concurrent host goroutines, it does not provide map-level atomicity.
type Clock struct {
	mu     sync.Mutex
	millis int64
	ctr    uint32
	nodeID string
	src    Source
}

// New constructs a Clock for nodeID using the system wall clock.
func New(nodeID string) *Clock {
	return &Clock{nodeID: nodeID, src: SystemSource{}}
}

// NewWithSource constructs a Clock using a custom time source, for tests.
func NewWithSource(nodeID string, src Source) *Clock {
	return &Clock{nodeID: nodeID, src: src}
}

// Now produces a Timestamp strictly greater than any previously emitted
// or observed timestamp on this clock.
func (c *Clock) Now() (Timestamp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.src.NowMillis()
	if wall > c.millis {
		c.millis = wall
		c.ctr = 0
	} else {
		if c.ctr == math.MaxUint32 {
			return Timestamp{}, ErrClockOverflow
		}
		c.ctr++
	}
	return Timestamp{Millis: c.millis, Counter: c.ctr, NodeID: c.nodeID}, nil
}

// Update folds an observed remote timestamp into the clock so the next
// emission is strictly greater than both the local wall clock and the
// remote timestamp.
func (c *Clock) Update(remote Timestamp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.src.NowMillis()
	prevMillis := c.millis

	maxMillis := wall
	if remote.Millis > maxMillis {
		maxMillis = remote.Millis
	}
	if prevMillis > maxMillis {
		maxMillis = prevMillis
	}

	switch {
	case maxMillis == prevMillis && maxMillis == remote.Millis:
		if c.ctr == math.MaxUint32 || remote.Counter == math.MaxUint32 {
			return ErrClockOverflow
		}
		if remote.Counter > c.ctr {
			c.ctr = remote.Counter
		}
		c.ctr++
	case maxMillis == remote.Millis && maxMillis != prevMillis:
		if remote.Counter == math.MaxUint32 {
			return ErrClockOverflow
		}
		c.ctr = remote.Counter + 1
	case maxMillis == wall && maxMillis != prevMillis && maxMillis != remote.Millis:
		c.ctr = 0
	default:
		// maxMillis == prevMillis only (wall and remote both behind local)
		if c.ctr == math.MaxUint32 {
			return ErrClockOverflow
		}
		c.ctr++
	}
	c.millis = maxMillis
	return nil
}

// NodeID returns the clock's owning node identifier.
func (c *Clock) NodeID() string { return c.nodeID }
