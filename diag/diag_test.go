package diag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectorCountAccumulatesTotals(t *testing.T) {
	c := NewCollector(nil)
	c.Count(MatchCalls, 3)
	c.Count(MatchCalls, 4)
	c.Count(EarlyBreaks, 1)

	require.Equal(t, int64(7), c.Totals(MatchCalls))
	require.Equal(t, int64(1), c.Totals(EarlyBreaks))
	require.Len(t, c.Events(), 3)
}

func TestCollectorForwardsToHandler(t *testing.T) {
	var seen []Event
	c := NewCollector(func(e Event) { seen = append(seen, e) })

	c.Count(StoreOpened, 1)
	c.Add(Event{Name: SubjectSkipped, Data: map[string]interface{}{"n": int64(2)}})

	require.Len(t, seen, 2)
	require.Equal(t, StoreOpened, seen[0].Name)
	require.Equal(t, SubjectSkipped, seen[1].Name)
}

func TestNilHandlerStillRecordsLocally(t *testing.T) {
	c := NewCollector(nil)
	c.Count(StateMapMerge, 5)
	require.Equal(t, int64(5), c.Totals(StateMapMerge))
}
