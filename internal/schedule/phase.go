// Package schedule decides when a watch is due for its next check.
//
// Every watch carries a deterministic phase offset derived from its id, so
// that watches sharing a check interval do not all fire in the same tick.
// The offset is stable across restarts: the same id always yields the same
// offset.
package schedule

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"time"
)

// Phase maps watch ids to offsets uniformly spread across a fixed window.
type Phase struct {
	window time.Duration
}

// NewPhase creates a Phase spreading offsets across [0, window).
// A non-positive window collapses every offset to zero.
func NewPhase(window time.Duration) *Phase {
	return &Phase{window: window}
}

// Window returns the spread window.
func (p *Phase) Window() time.Duration {
	return p.window
}

// Offset returns the deterministic offset for a watch id, in [0, window).
func (p *Phase) Offset(id int64) time.Duration {
	secs := int64(p.window / time.Second)
	if secs <= 0 {
		return 0
	}
	h := sha256.Sum256([]byte(strconv.FormatInt(id, 10)))
	n := binary.BigEndian.Uint64(h[:8])
	return time.Duration(n%uint64(secs)) * time.Second
}
