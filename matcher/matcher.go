// Package matcher defines the capability interface the groupby engine
// drives: a compiled pattern-matching program that consumes one subject's
// trail at a time, carries opaque state across invocations (including
// across stores, for cross-store continuity), and yields results into a
// caller-supplied sink.
//
// The program's internals are out of scope for this module — it is an
// external collaborator, exactly as the compiled matcher is external to
// the groupby engine in the system this package's API mirrors.
package matcher

import "github.com/wbrown/trck"

// State is the opaque, comparable per-subject state a Program carries
// between invocations. Comparable so state vectors can merge runs of
// identical states without consulting the program.
type State struct {
	// Opaque is program-defined; the engine never inspects it beyond
	// equality comparison.
	Opaque any
}

// InitialState is the program's starting state, the state every subject
// implicitly holds before its first invocation. It is never materialised
// in a state vector (see statevec.Vector's Empty runs).
var InitialState = State{}

// Bindings supplies a single invocation's external parameter values:
// scalar (%name), set (#name), and the implicit or explicit FOREACH
// binding for this invocation's group.
type Bindings struct {
	// Scalars maps external parameter name ("%foo") to this store's
	// resolved value id. A name absent from the map, or mapped to
	// trck.MissingField-equivalent -1, means the parameter could not be
	// resolved in this store's schema.
	Scalars map[string]trck.ValueID

	// Sets maps external parameter name ("#foo") to the set of value ids
	// resolved in this store.
	Sets map[string][]trck.ValueID
}

// Sink receives a Program's yielded results for one invocation. Calls to
// a Sink must be safe from a single goroutine at a time — the engine
// never calls a Sink concurrently for the same shard, but different
// shards use independent Sinks (see controller, results).
type Sink interface {
	// AddCount adds delta to the named counter.
	AddCount(name string, delta int64)
	// AddSet inserts value into the named set aggregate.
	AddSet(name string, value string)
	// AddHLL folds an already-computed cardinality estimate into the
	// named approximate-distinct-count aggregate. Sketch construction is
	// a Program concern; only the resulting estimate crosses this
	// boundary.
	AddHLL(name string, estimate uint64)
}

// Program is the compiled pattern-matching state machine the engine
// drives. A Program must be safe to run concurrently from multiple
// goroutines provided each call uses its own State value — the engine
// runs one goroutine per shard and never shares a State across shards.
type Program interface {
	// MatchTrail runs the program over one subject's trail, starting
	// from in (matcher.InitialState on the subject's first-ever
	// invocation), yielding any results into sink, and returning the
	// state to carry into the subject's next invocation (which may be in
	// a later store). MatchTrail must be idempotent with respect to in:
	// replaying the same trail/bindings/in always yields the same out
	// and the same sink calls.
	//
	// usedGroupVars reports whether this invocation ever consulted
	// bindings (the FOREACH-bound values) while producing out and sink's
	// calls. When false, out and every sink call would be identical for
	// any other FOREACH tuple sharing in as its prior state, so the
	// engine can splat this one invocation across all of them instead of
	// calling MatchTrail again per tuple (the GROUPBY-not-used fast path;
	// see package engine).
	MatchTrail(trail TrailView, bindings Bindings, in State, sink Sink) (out State, usedGroupVars bool, err error)

	// NeedsRewind reports whether the program ever re-reads earlier
	// events after advancing (TrailDB's rewind capability). A multi-store
	// run refuses to proceed if more than one store is open and the
	// program needs rewind, since cross-store continuity only carries
	// opaque State forward, never trail bytes.
	NeedsRewind() bool
}

// TrailView is the read-only, already-deduplicated and window-clipped
// sequence of events a Program walks. It is produced by package cursor.
type TrailView interface {
	// Len returns the number of events in the trail.
	Len() int
	// Event returns the i'th event, 0 <= i < Len().
	Event(i int) trck.Event
}
