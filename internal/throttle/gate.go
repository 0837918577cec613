// Package throttle decides which camera frames are worth analyzing.
package throttle

import (
	"sync/atomic"
)

// DefaultInterval processes one frame out of every fifteen.
const DefaultInterval = 15

// Status reports the result-state flags that suspend analysis.
type Status interface {
	Searching() bool
	SheetVisible() bool
}

// Gate counts frames and lets every Nth one through while no search is in
// flight and no result sheet is shown. It is safe for concurrent use.
type Gate struct {
	status   Status
	counter  atomic.Uint64
	interval atomic.Int64
}

// NewGate creates a gate consulting status. interval <= 0 means every frame.
func NewGate(status Status, interval int) *Gate {
	g := &Gate{status: status}
	g.SetInterval(interval)
	return g
}

// ShouldProcess reports whether the current frame should be analyzed.
// Suspended frames are not counted.
func (g *Gate) ShouldProcess() bool {
	if g.status != nil && (g.status.Searching() || g.status.SheetVisible()) {
		return false
	}
	n := g.counter.Add(1)
	return n%uint64(g.interval.Load()) == 0
}

// Count returns how many frames have been counted so far.
func (g *Gate) Count() uint64 {
	return g.counter.Load()
}

// Interval returns N.
func (g *Gate) Interval() int {
	return int(g.interval.Load())
}

// SetInterval changes N. Values below one are treated as one.
func (g *Gate) SetInterval(n int) {
	if n < 1 {
		n = 1
	}
	g.interval.Store(int64(n))
}
