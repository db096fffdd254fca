// Package trace implements hot-path detection and trace-based replay for
// the Turtle16 pipeline: a retirement profiler, a recorder that turns the
// executed path into a guarded trace, a set-associative trace cache and an
// executor that replays trace instructions sequentially.
package trace

import "sort"

// DefaultHotThreshold is the retirement count a PC must exceed to be hot.
const DefaultHotThreshold = 2

// Profiler counts retirements per program counter.
type Profiler struct {
	threshold uint64
	counts    map[uint16]uint64
}

// NewProfiler creates a profiler. A PC is hot once its count is strictly
// greater than threshold.
func NewProfiler(threshold uint64) *Profiler {
	return &Profiler{
		threshold: threshold,
		counts:    make(map[uint16]uint64),
	}
}

// Threshold returns the hot threshold.
func (p *Profiler) Threshold() uint64 {
	return p.threshold
}

// RecordRetirement counts one retirement of pc.
func (p *Profiler) RecordRetirement(pc uint16) {
	p.counts[pc]++
}

// Count returns the number of retirements seen for pc.
func (p *Profiler) Count(pc uint16) uint64 {
	return p.counts[pc]
}

// IsHot reports whether pc has retired more than threshold times.
func (p *Profiler) IsHot(pc uint16) bool {
	return p.counts[pc] > p.threshold
}

// HotPCs returns every hot PC in ascending order.
func (p *Profiler) HotPCs() []uint16 {
	var hot []uint16
	for pc, n := range p.counts {
		if n > p.threshold {
			hot = append(hot, pc)
		}
	}
	sort.Slice(hot, func(i, j int) bool { return hot[i] < hot[j] })
	return hot
}

// Reset forgets all counts.
func (p *Profiler) Reset() {
	clear(p.counts)
}
