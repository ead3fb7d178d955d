package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/trck"
)

type sliceReader struct {
	events []trck.Event
	pos    int
}

func (r *sliceReader) Next() (trck.Event, bool, error) {
	if r.pos >= len(r.events) {
		return trck.Event{}, false, nil
	}
	ev := r.events[r.pos]
	r.pos++
	return ev, true, nil
}

func TestReadDedupsAdjacentIdenticalEvents(t *testing.T) {
	events := []trck.Event{
		{Timestamp: 10, Items: []trck.Item{{Field: 1, Value: 2}}},
		{Timestamp: 10, Items: []trck.Item{{Field: 1, Value: 2}}}, // exact duplicate, dropped
		{Timestamp: 10, Items: []trck.Item{{Field: 1, Value: 3}}}, // same ts, different items, kept
		{Timestamp: 20, Items: nil},
	}

	c, err := Read(&sliceReader{events: events}, Window{})
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())
	require.Equal(t, trck.ValueID(2), c.Event(0).Value(1))
	require.Equal(t, trck.ValueID(3), c.Event(1).Value(1))
	require.Equal(t, uint64(20), c.Event(2).Timestamp)
}

func TestReadClipsToWindow(t *testing.T) {
	events := []trck.Event{
		{Timestamp: 5},
		{Timestamp: 15},
		{Timestamp: 25},
		{Timestamp: 35},
	}

	c, err := Read(&sliceReader{events: events}, Window{Start: 10, End: 30})
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	require.Equal(t, uint64(15), c.Event(0).Timestamp)
	require.Equal(t, uint64(25), c.Event(1).Timestamp)
}

func TestReadZeroWindowMeansUnclipped(t *testing.T) {
	events := []trck.Event{{Timestamp: 1}, {Timestamp: 2}}
	c, err := Read(&sliceReader{events: events}, Window{})
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
}
