package foreachidx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/trck"
)

type fakeTrail []trck.Event

func (f fakeTrail) Len() int            { return len(f) }
func (f fakeTrail) Event(i int) trck.Event { return f[i] }

func TestCollectFindsTuplesPresentInTrail(t *testing.T) {
	fields := []trck.FieldID{1}
	tuples := [][]TupleValue{
		{{Scalar: 10}}, // index 0, present
		{{Scalar: 20}}, // index 1, absent
		{{Scalar: 10}}, // index 2, present (same value as 0)
	}
	idx := Build(fields, tuples)

	trail := fakeTrail{
		{Timestamp: 1, Items: []trck.Item{{Field: 1, Value: 10}}},
		{Timestamp: 2, Items: []trck.Item{{Field: 1, Value: 10}}}, // consecutive equal, collapsed
		{Timestamp: 3, Items: []trck.Item{{Field: 1, Value: 99}}},
	}

	dv := Collect(trail, fields, idx)
	require.True(t, dv.Has(0))
	require.True(t, dv.Has(2))
	require.False(t, dv.Has(1))
}

func TestNonDistinctRunSpansUntilNextDistinctIndex(t *testing.T) {
	dv := &DistinctValues{present: map[int]struct{}{3: {}, 7: {}}}

	require.Equal(t, 3, dv.NonDistinctRun(0, 10)) // stops at index 3
	require.Equal(t, 0, dv.NonDistinctRun(3, 10))  // index 3 itself is distinct -> handled by caller, span 0 here is fine since caller skips distinct indices directly
	require.Equal(t, 3, dv.NonDistinctRun(4, 10))  // 4,5,6 then stop at 7
	require.Equal(t, 0, dv.NonDistinctRun(7, 10))  // index 7 itself is distinct, so the run starting there is empty
}
