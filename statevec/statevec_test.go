package statevec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/trck/matcher"
)

func TestBuilderMergesAdjacentRuns(t *testing.T) {
	b := NewBuilder()
	s1 := matcher.State{Opaque: 1}

	b.AppendEmpty(3)
	b.Append(s1, 2)
	b.Append(s1, 4) // must merge with the previous run

	v := b.Finish()
	require.NotNil(t, v)
	require.Len(t, v.Runs, 2)
	require.True(t, v.Runs[0].Empty)
	require.Equal(t, uint16(3), v.Runs[0].Count)
	require.False(t, v.Runs[1].Empty)
	require.Equal(t, uint16(6), v.Runs[1].Count)
}

func TestFinishTrimsTrailingEmptyRun(t *testing.T) {
	b := NewBuilder()
	s1 := matcher.State{Opaque: "x"}
	b.Append(s1, 1)
	b.AppendEmpty(5)

	v := b.Finish()
	require.NotNil(t, v)
	require.Len(t, v.Runs, 1)
	require.Equal(t, uint16(1), v.Runs[0].Count)
}

func TestFinishReturnsNilWhenAllInitial(t *testing.T) {
	b := NewBuilder()
	b.AppendEmpty(10)
	require.Nil(t, b.Finish())
}

func TestIteratorNextWalksEverySlot(t *testing.T) {
	b := NewBuilder()
	s1 := matcher.State{Opaque: 1}
	s2 := matcher.State{Opaque: 2}
	b.AppendEmpty(2)
	b.Append(s1, 3)
	b.Append(s2, 1)
	v := b.Finish()

	it := NewIterator(v)
	var got []bool
	for {
		_, empty, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, empty)
	}
	require.Equal(t, []bool{true, true, false, false, false, false}, got)
}

func TestIteratorNextEdgeMergesAcrossRunBoundaries(t *testing.T) {
	s1 := matcher.State{Opaque: 1}
	// Built by hand: the Builder would merge the two s1 runs itself (and
	// Finish would trim the trailing empty run), so only a hand-built
	// vector leaves NextEdge's merge-ahead to join them.
	v := &Vector{Runs: []Run{
		{Count: 1, Empty: true},
		{Count: 1, State: s1},
		{Count: 1, State: s1},
		{Count: 1, Empty: true},
	}}
	it := NewIterator(v)

	_, empty, span, ok := it.NextEdge()
	require.True(t, ok)
	require.True(t, empty)
	require.Equal(t, 1, span)

	_, empty, span, ok = it.NextEdge()
	require.True(t, ok)
	require.False(t, empty)
	require.Equal(t, 2, span)

	_, empty, span, ok = it.NextEdge()
	require.True(t, ok)
	require.True(t, empty)
	require.Equal(t, 1, span)

	_, _, _, ok = it.NextEdge()
	require.False(t, ok)
}

func TestBuilderSplitsRunsExceedingMaxCounterValue(t *testing.T) {
	b := NewBuilder()
	s1 := matcher.State{Opaque: 1}
	b.Append(s1, MaxCounterValue+10)

	v := b.Finish()
	require.Len(t, v.Runs, 2)
	require.Equal(t, uint16(MaxCounterValue), v.Runs[0].Count)
	require.Equal(t, uint16(10), v.Runs[1].Count)
	require.Equal(t, MaxCounterValue+10, v.TotalCount())
}
