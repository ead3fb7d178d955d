// Package engine implements the per-subject groupby hot loop. For a run
// of FOREACH tuples sharing the same prior state, it first tries one
// representative invocation; if the program reports it never consulted
// the FOREACH binding, that single result is splatted across the whole
// run. Otherwise it falls back to per-index matching for tuples whose
// bound value actually occurs in the trail, and one shared invocation for
// each contiguous span of other ("non-distinct") tuples in the run.
//
// This mirrors run_groupby_match / run_groupby_query2's three-way
// structure: the GROUPBY-not-used early break, per-index matching when
// the matcher's behaviour genuinely depends on the FOREACH binding, and
// a shared run (add_results_vec's splat) for bound values that provably
// can't occur in this subject's trail at all.
package engine

import (
	"github.com/wbrown/trck"
	"github.com/wbrown/trck/cursor"
	"github.com/wbrown/trck/foreachidx"
	"github.com/wbrown/trck/matcher"
)

// Groupby is one store-open's resolved groupby configuration.
type Groupby struct {
	// Fields are the store-local field ids each groupby variable binds
	// to, in variable order. A MissingField entry means that variable's
	// column does not exist in this store.
	Fields []trck.FieldID

	// Tuples[i][j] is variable j's binding within tuple i.
	Tuples [][]foreachidx.TupleValue

	// Index is the FOREACH->tuple-index lookup built from Tuples (see
	// foreachidx.Build), used to find which tuples are "distinct" for a
	// given trail.
	Index *foreachidx.Index
}

// bindingsFor builds the matcher.Bindings for tuple gb.Tuples[tupleIdx].
// Scalar/set parameter name resolution is the caller's concern (package
// params); here only the FOREACH-bound variable values are carried,
// keyed by their groupby variable position.
func bindingsFor(gb *Groupby, tupleIdx int) matcher.Bindings {
	tuple := gb.Tuples[tupleIdx]
	b := matcher.Bindings{
		Scalars: make(map[string]trck.ValueID, len(tuple)),
		Sets:    make(map[string][]trck.ValueID, len(tuple)),
	}
	for j, tv := range tuple {
		name := groupbyVarName(j)
		if tv.IsSet {
			b.Sets[name] = tv.Set
		} else {
			b.Scalars[name] = tv.Scalar
		}
	}
	return b
}

func groupbyVarName(j int) string {
	// Groupby variables are addressed positionally by the engine; a
	// Program that cares about their string names binds through its own
	// compiled layout, not through this placeholder.
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if j < len(letters) {
		return "$group" + string(letters[j])
	}
	return "$group_overflow"
}

// recordedOp is one sink call captured while running a representative
// match on behalf of a non-distinct span, to be replayed against every
// tuple index the span covers.
type recordedOp struct {
	kind  int
	name  string
	delta int64
	value string
	hll   uint64
}

const (
	opCount = iota
	opSet
	opHLL
)

type recordingSink struct {
	ops []recordedOp
}

func (r *recordingSink) AddCount(name string, delta int64) {
	r.ops = append(r.ops, recordedOp{kind: opCount, name: name, delta: delta})
}
func (r *recordingSink) AddSet(name string, value string) {
	r.ops = append(r.ops, recordedOp{kind: opSet, name: name, value: value})
}
func (r *recordingSink) AddHLL(name string, estimate uint64) {
	r.ops = append(r.ops, recordedOp{kind: opHLL, name: name, hll: estimate})
}

// replay applies every recorded op to sink, skipping zero-delta counts —
// the Go counterpart of add_results_vec's "skip if zero" splat rule.
func (r *recordingSink) replay(sink matcher.Sink) {
	for _, op := range r.ops {
		switch op.kind {
		case opCount:
			if op.delta != 0 {
				sink.AddCount(op.name, op.delta)
			}
		case opSet:
			sink.AddSet(op.name, op.value)
		case opHLL:
			sink.AddHLL(op.name, op.hll)
		}
	}
}

// Stats records the per-subject perf counters the engine's hot loop
// maintains, the Go counterpart of ctx->perf_stats: how many times the
// program was actually invoked, and how many tuple positions were
// resolved without a second invocation via the GROUPBY-not-used fast
// path.
type Stats struct {
	MatchCalls  int64
	EarlyBreaks int64
}

// MatchSubject runs gb's groupby tuples against trail, starting from
// priorStates (index i is tuple i's carried-forward state; an index
// beyond len(priorStates) starts from matcher.InitialState, matching a
// subject's first-ever appearance), and returns the updated per-tuple
// states plus this invocation's perf counters. sinkFor(i) is called once
// for every tuple index, whether or not that index produces any sink
// activity.
//
// Three optimisations keep this well under the naive numTuples×len(trail)
// cost:
//
//  1. RLE-aware iteration: consecutive tuple indices sharing the same
//     prior state are found as a single run before any matching happens.
//  2. GROUPBY-not-used detection: the program reports, per invocation,
//     whether it ever consulted the FOREACH binding. If a run's first
//     invocation didn't, its result is splatted across the whole run
//     without invoking the program again for any other index in it —
//     this is the early-break fast path.
//  3. Distinct-value specialisation: if GROUPBY was used, the bound value
//     only matters where it actually occurs somewhere in the trail
//     (see foreachidx.Collect, computed lazily, once per subject). Runs
//     of indices whose bound value never occurs in the trail still
//     collapse to one shared invocation.
func MatchSubject(
	program matcher.Program,
	trail *cursor.Cursor,
	gb *Groupby,
	priorStates []matcher.State,
	sinkFor func(tupleIdx int) matcher.Sink,
) ([]matcher.State, Stats) {
	numTuples := len(gb.Tuples)
	out := make([]matcher.State, numTuples)
	var stats Stats

	if numTuples == 0 {
		return out, stats
	}

	priorOf := func(i int) matcher.State {
		if i < len(priorStates) {
			return priorStates[i]
		}
		return matcher.InitialState
	}

	// Computed lazily: only needed once some run's representative
	// invocation reports GROUPBY was actually used.
	var dv *foreachidx.DistinctValues

	j := 0
	for j < numTuples {
		in := priorOf(j)
		numEqStates := 1
		for j+numEqStates < numTuples && priorOf(j+numEqStates) == in {
			numEqStates++
		}

		rec := &recordingSink{}
		newState, usedGroupVars, _ := program.MatchTrail(trail, bindingsFor(gb, j), in, rec)
		stats.MatchCalls++

		if !usedGroupVars {
			for i := j; i < j+numEqStates; i++ {
				out[i] = newState
				rec.replay(sinkFor(i))
			}
			stats.EarlyBreaks += int64(numEqStates - 1)
			j += numEqStates
			continue
		}

		out[j] = newState
		rec.replay(sinkFor(j))
		j++

		nextDiffState := j + numEqStates - 1
		if dv == nil {
			dv = foreachidx.Collect(trail, gb.Fields, gb.Index)
		}

		for k := j; k < nextDiffState; {
			if dv.Has(k) {
				st, _, _ := program.MatchTrail(trail, bindingsFor(gb, k), in, sinkFor(k))
				stats.MatchCalls++
				out[k] = st
				k++
				continue
			}

			span := dv.NonDistinctRun(k, nextDiffState)
			if span <= 0 {
				span = 1
			}
			rec2 := &recordingSink{}
			st, _, _ := program.MatchTrail(trail, bindingsFor(gb, k), in, rec2)
			stats.MatchCalls++
			for i := k; i < k+span; i++ {
				out[i] = st
				rec2.replay(sinkFor(i))
			}
			k += span
		}
		j = nextDiffState
	}

	return out, stats
}
