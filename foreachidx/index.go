// Package foreachidx builds and queries the FOREACH tuple index: given a
// store-resolved set of groupby tuples (one tuple per output group, each
// tuple binding one value — or, for set-valued variables, one set of
// values — per groupby variable), it answers "which tuple indices does
// value v of field f participate in?"
//
// This is the Go counterpart of foreach_util.c's vti_index_t, built the
// same way: walk every tuple once, collect tuple indices per (field,
// value) pair, then freeze each collection into a sorted slice for fast,
// allocation-free lookups during matching.
package foreachidx

import (
	"sort"

	"github.com/wbrown/trck"
)

// TupleValue is one groupby variable's binding within a single tuple:
// either a single resolved value id (scalar, "%name") or a set of them
// ("#name"). Exactly one of these is populated per (tuple, variable).
type TupleValue struct {
	Scalar trck.ValueID
	IsSet  bool
	Set    []trck.ValueID
}

// Index maps (field, value) -> sorted tuple indices. It is built once per
// store, since value ids are store-local.
type Index struct {
	byField map[trck.FieldID]map[trck.ValueID][]int
}

// Build constructs an Index from tuples: tuples[i][j] is the binding for
// groupby variable j ("fields[j]") within tuple i.
func Build(fields []trck.FieldID, tuples [][]TupleValue) *Index {
	idx := &Index{byField: make(map[trck.FieldID]map[trck.ValueID][]int)}

	for i, tuple := range tuples {
		for j, field := range fields {
			if field == trck.MissingField {
				continue
			}
			tv := tuple[j]
			if tv.IsSet {
				for _, v := range tv.Set {
					idx.add(field, v, i)
				}
			} else {
				idx.add(field, tv.Scalar, i)
			}
		}
	}

	for _, byValue := range idx.byField {
		for v, indices := range byValue {
			sort.Ints(indices)
			byValue[v] = indices
		}
	}

	return idx
}

func (idx *Index) add(field trck.FieldID, value trck.ValueID, tupleIdx int) {
	byValue, ok := idx.byField[field]
	if !ok {
		byValue = make(map[trck.ValueID][]int)
		idx.byField[field] = byValue
	}
	byValue[value] = append(byValue[value], tupleIdx)
}

// HaveField reports whether any tuple binds field at all.
func (idx *Index) HaveField(field trck.FieldID) bool {
	_, ok := idx.byField[field]
	return ok
}

// Lookup returns the sorted tuple indices that bind value for field, or
// nil if none do.
func (idx *Index) Lookup(field trck.FieldID, value trck.ValueID) []int {
	byValue, ok := idx.byField[field]
	if !ok {
		return nil
	}
	return byValue[value]
}
