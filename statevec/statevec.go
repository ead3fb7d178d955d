// Package statevec implements the run-length-encoded per-subject state
// vector: the compact record of which matcher state a subject was in
// across however many groupby invocations it has been through so far.
//
// It is a direct port of statevec.c's run representation: a sequence of
// runs, each either a concrete matcher state repeated some number of
// times, or an "empty" run standing in for the matcher's initial state
// (never materialised, since the overwhelming majority of counters never
// leave the initial state).
package statevec

import "github.com/wbrown/trck/matcher"

// MaxCounterValue bounds a single run's length. It mirrors the original's
// 15-bit counter (the 16th bit flags "this run is the empty/initial
// state"), so one run can never stand for more than this many repeats.
const MaxCounterValue = 0x7FFF

// Run is one element of a state vector: State repeated Count times. Empty
// is true for a run representing the matcher's initial state, in which
// case State is the zero value and never consulted.
type Run struct {
	Count uint16
	Empty bool
	State matcher.State
}

// Vector is an immutable, finished state vector as produced by Builder.Finish.
// A nil Vector (or one with Runs == nil) means "every tracked subject slot is
// still in its initial state" and need not be retained at all — callers
// drop such vectors from the global state map exactly like sv_finish
// returning NULL.
type Vector struct {
	Runs []Run
}

// TotalCount returns the number of logical slots spanned by v.
func (v *Vector) TotalCount() int {
	if v == nil {
		return 0
	}
	n := 0
	for _, r := range v.Runs {
		n += int(r.Count)
	}
	return n
}

// Builder accumulates Append calls into a minimal run list, merging
// adjacent compatible runs exactly as sv_append does: a new state merges
// into the tail run when the tail holds the same state (or both are
// empty), splitting only when a run would overflow MaxCounterValue.
type Builder struct {
	runs []Run
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Append adds n repeats of state to the vector under construction. n must
// be > 0.
func (b *Builder) Append(state matcher.State, n int) {
	b.append(Run{State: state}, n)
}

// AppendEmpty adds n repeats of the matcher's initial (never-entered)
// state.
func (b *Builder) AppendEmpty(n int) {
	b.append(Run{Empty: true}, n)
}

func (b *Builder) append(tmpl Run, n int) {
	for n > 0 {
		chunk := n
		if chunk > MaxCounterValue {
			chunk = MaxCounterValue
		}
		n -= chunk

		if len(b.runs) > 0 {
			tail := &b.runs[len(b.runs)-1]
			if runsCompatible(*tail, tmpl) && int(tail.Count)+chunk <= MaxCounterValue {
				tail.Count += uint16(chunk)
				continue
			}
		}
		b.runs = append(b.runs, Run{Count: uint16(chunk), Empty: tmpl.Empty, State: tmpl.State})
	}
}

func runsCompatible(a, b Run) bool {
	if a.Empty != b.Empty {
		return false
	}
	if a.Empty {
		return true
	}
	return a.State == b.State
}

// Finish trims a trailing run of the initial (empty) state — a trailing
// stretch of "never matched anything new" carries no information worth
// keeping — and returns the resulting Vector. It returns nil if every run
// collapsed away, i.e. the subject never left its initial state at all;
// callers should treat a nil result exactly like sv_finish returning NULL
// and drop the slot from the global state map rather than store it.
func (b *Builder) Finish() *Vector {
	runs := b.runs
	for len(runs) > 0 && runs[len(runs)-1].Empty {
		runs = runs[:len(runs)-1]
	}
	if len(runs) == 0 {
		return nil
	}
	out := make([]Run, len(runs))
	copy(out, runs)
	return &Vector{Runs: out}
}

// Iterator walks a Vector's logical slots one at a time or edge-at-a-time.
type Iterator struct {
	v       *Vector
	runIdx  int
	within  uint16
	pos     int
}

// NewIterator returns an Iterator positioned before the first slot of v. A
// nil v iterates zero slots.
func NewIterator(v *Vector) *Iterator {
	return &Iterator{v: v}
}

// Next returns the next slot's state and whether it is the empty/initial
// state, advancing by exactly one logical slot. ok is false once the
// vector is exhausted.
func (it *Iterator) Next() (state matcher.State, empty bool, ok bool) {
	if it.v == nil || it.runIdx >= len(it.v.Runs) {
		return matcher.State{}, false, false
	}
	r := it.v.Runs[it.runIdx]
	state, empty = r.State, r.Empty
	it.within++
	it.pos++
	if it.within >= r.Count {
		it.runIdx++
		it.within = 0
	}
	return state, empty, true
}

// NextEdge returns the next span of identical (state, empty) slots,
// merging across run boundaries when consecutive runs hold the same
// state (or are both empty) — mirroring sv_iterate_next_edge's
// merge-ahead behaviour so a caller never sees an artificial split that
// the builder's own merging would not have produced. span is the number
// of slots the returned state/empty pair covers.
func (it *Iterator) NextEdge() (state matcher.State, empty bool, span int, ok bool) {
	if it.v == nil || it.runIdx >= len(it.v.Runs) {
		return matcher.State{}, false, 0, false
	}
	first := it.v.Runs[it.runIdx]
	state, empty = first.State, first.Empty
	span = int(first.Count) - int(it.within)
	it.pos += span
	it.runIdx++
	it.within = 0

	for it.runIdx < len(it.v.Runs) {
		r := it.v.Runs[it.runIdx]
		if !runsCompatible(Run{Empty: empty, State: state}, r) {
			break
		}
		span += int(r.Count)
		it.pos += int(r.Count)
		it.runIdx++
	}
	return state, empty, span, true
}

// Position returns the number of slots consumed so far.
func (it *Iterator) Position() int {
	return it.pos
}
