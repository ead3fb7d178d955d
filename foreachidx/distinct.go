package foreachidx

import (
	"sort"

	"github.com/wbrown/trck"
	"github.com/wbrown/trck/matcher"
)

// DistinctValues is the per-trail bitset of tuple indices whose bound
// value occurs somewhere in a subject's trail, for the fields relevant to
// a groupby's FOREACH variables. It is the Go counterpart of
// distinct_vals_get_multi / bitvec_t.
type DistinctValues struct {
	present map[int]struct{}
}

// Collect scans trail once per field in fields (skipping fields the index
// never binds, and fields missing from the store's schema), collapsing
// consecutive equal values before each lookup exactly like
// distinct_vals_get_multi's prev_val_id shortcut, and returns the set of
// tuple indices reachable from any value actually present in the trail.
func Collect(trail matcher.TrailView, fields []trck.FieldID, idx *Index) *DistinctValues {
	dv := &DistinctValues{present: make(map[int]struct{})}

	for _, field := range fields {
		if field == trck.MissingField || !idx.HaveField(field) {
			continue
		}

		prev := trck.ValueID(-1)
		hasPrev := false
		for i := 0; i < trail.Len(); i++ {
			val := trail.Event(i).Value(field)
			if hasPrev && val == prev {
				continue
			}
			prev, hasPrev = val, true

			for _, tupleIdx := range idx.Lookup(field, val) {
				dv.present[tupleIdx] = struct{}{}
			}
		}
	}

	return dv
}

// sortedKeys returns dv's tuple indices sorted ascending. It is
// recomputed on every call, so each NonDistinctRun call pays for a sort.
func (dv *DistinctValues) sortedKeys() []int {
	keys := make([]int, 0, len(dv.present))
	for k := range dv.present {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// NonDistinctRun returns how many consecutive tuple indices starting at
// val are NOT present in dv, capped at limit - val. This is the span the
// groupby engine's fast path can run with a single shared matcher state
// instead of invoking the program once per tuple index — the Go
// counterpart of non_distinct_series.
func (dv *DistinctValues) NonDistinctRun(val, limit int) int {
	next := limit
	for _, k := range dv.sortedKeys() {
		if k >= val {
			next = k
			break
		}
	}
	if next > limit {
		next = limit
	}
	return next - val
}

// Has reports whether tupleIdx is a distinct (individually-run) index.
func (dv *DistinctValues) Has(tupleIdx int) bool {
	_, ok := dv.present[tupleIdx]
	return ok
}
