package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/trck"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "trck-store-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoaderAssignsStableFieldAndValueIDs(t *testing.T) {
	s := openTestStore(t)
	l := NewLoader(s)

	f1, err := l.FieldID("action")
	require.NoError(t, err)
	f2, err := l.FieldID("action")
	require.NoError(t, err)
	require.Equal(t, f1, f2)

	v1, err := l.ValueID(f1, "click")
	require.NoError(t, err)
	v2, err := l.ValueID(f1, "click")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.NotEqual(t, trck.ValueID(0), v1)

	empty, err := l.ValueID(f1, "")
	require.NoError(t, err)
	require.Equal(t, trck.ValueID(0), empty)
}

func TestAppendEventAndOpenTrail(t *testing.T) {
	s := openTestStore(t)
	l := NewLoader(s)

	field, err := l.FieldID("action")
	require.NoError(t, err)
	clickID, err := l.ValueID(field, "click")
	require.NoError(t, err)
	viewID, err := l.ValueID(field, "view")
	require.NoError(t, err)

	uuid, err := trck.ParseUUID("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	require.NoError(t, l.AppendEvent(uuid, trck.Event{Timestamp: 10, Items: []trck.Item{{Field: field, Value: viewID}}}))
	require.NoError(t, l.AppendEvent(uuid, trck.Event{Timestamp: 20, Items: []trck.Item{{Field: field, Value: clickID}}}))

	require.Equal(t, uint64(20), s.MaxTimestamp())
	require.Equal(t, int64(1), s.NumTrails())

	raw, ok, err := s.OpenTrail(uuid)
	require.NoError(t, err)
	require.True(t, ok)

	var got []trck.Event
	for {
		ev, ok, err := raw.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	require.Equal(t, uint64(10), got[0].Timestamp)
	require.Equal(t, uint64(20), got[1].Timestamp)
}

func TestOpenTrailMissingSubject(t *testing.T) {
	s := openTestStore(t)
	uuid, _ := trck.ParseUUID("fedcba9876543210fedcba9876543210")
	_, ok, err := s.OpenTrail(uuid)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrailsIteratesEverySubjectOnce(t *testing.T) {
	s := openTestStore(t)
	l := NewLoader(s)

	field, err := l.FieldID("action")
	require.NoError(t, err)
	clickID, err := l.ValueID(field, "click")
	require.NoError(t, err)

	u1, _ := trck.ParseUUID("00000000000000000000000000000001")
	u2, _ := trck.ParseUUID("00000000000000000000000000000002")

	require.NoError(t, l.AppendEvent(u1, trck.Event{Timestamp: 1, Items: []trck.Item{{Field: field, Value: clickID}}}))
	require.NoError(t, l.AppendEvent(u1, trck.Event{Timestamp: 2, Items: []trck.Item{{Field: field, Value: clickID}}}))
	require.NoError(t, l.AppendEvent(u2, trck.Event{Timestamp: 1, Items: []trck.Item{{Field: field, Value: clickID}}}))

	it, err := s.Trails()
	require.NoError(t, err)
	defer it.Close()

	seen := map[trck.UUID]bool{}
	for {
		u, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen[u] = true
	}
	require.Len(t, seen, 2)
	require.True(t, seen[u1])
	require.True(t, seen[u2])
}

func TestLexiconOrdersByValueID(t *testing.T) {
	s := openTestStore(t)
	l := NewLoader(s)

	field, err := l.FieldID("action")
	require.NoError(t, err)
	_, err = l.ValueID(field, "click")
	require.NoError(t, err)
	_, err = l.ValueID(field, "view")
	require.NoError(t, err)

	lex := s.Lexicon(field)
	require.Equal(t, []string{"", "click", "view"}, lex)
}
