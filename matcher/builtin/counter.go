// Package builtin provides small reference matcher.Program implementations
// used by the CLI demo (the engine/controller/results tests define their
// own test programs instead) — they stand in for the externally compiled pattern-matching program the
// engine is designed to drive.
package builtin

import (
	"github.com/wbrown/trck"
	"github.com/wbrown/trck/matcher"
)

// sequenceState is the opaque state CountField carries:
// how many times the tracked field/value has been seen so far within a
// subject's continuing trail, across any number of invocations.
type sequenceState struct {
	seen int64
}

// CountField yields one "count" result per event whose Field item equals
// Value, and never needs rewind.
type CountField struct {
	Field trck.FieldID
	Value trck.ValueID
}

// NeedsRewind implements matcher.Program.
func (CountField) NeedsRewind() bool { return false }

// MatchTrail implements matcher.Program. Field and Value are fixed at
// construction, so it never reads bindings and always reports
// usedGroupVars=false, letting the engine splat a single invocation
// across every FOREACH tuple that shares a prior state.
func (p CountField) MatchTrail(trail matcher.TrailView, _ matcher.Bindings, in matcher.State, sink matcher.Sink) (matcher.State, bool, error) {
	st, _ := in.Opaque.(sequenceState)
	for i := 0; i < trail.Len(); i++ {
		ev := trail.Event(i)
		if ev.Value(p.Field) == p.Value {
			st.seen++
			sink.AddCount("count", 1)
		}
	}
	return matcher.State{Opaque: st}, false, nil
}

// DistinctValues yields one "values" set entry per distinct value seen for
// Field, formatted as a decimal value id (the caller resolves it back to
// the field's lexicon string if it needs a human-readable label).
type DistinctValues struct {
	Field trck.FieldID
}

// NeedsRewind implements matcher.Program.
func (DistinctValues) NeedsRewind() bool { return false }

// MatchTrail implements matcher.Program. Like CountField, it never reads
// bindings and always reports usedGroupVars=false.
func (p DistinctValues) MatchTrail(trail matcher.TrailView, _ matcher.Bindings, in matcher.State, sink matcher.Sink) (matcher.State, bool, error) {
	for i := 0; i < trail.Len(); i++ {
		ev := trail.Event(i)
		if v := ev.Value(p.Field); v != 0 {
			sink.AddSet("values", formatValueID(v))
		}
	}
	return in, false, nil
}

func formatValueID(v trck.ValueID) string {
	// decimal, smallest representation that round-trips through strconv
	if v == 0 {
		return "0"
	}
	neg := v < 0
	n := int64(v)
	if neg {
		n = -n
	}
	buf := [12]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
