package params

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/trck"
)

type fakeResolver struct {
	fields map[string]trck.FieldID
	values map[trck.FieldID]map[string]trck.ValueID
	lexes  map[trck.FieldID][]string
}

func (r fakeResolver) FieldID(name string) (trck.FieldID, bool) {
	f, ok := r.fields[name]
	return f, ok
}

func (r fakeResolver) ValueID(field trck.FieldID, value string) (trck.ValueID, bool) {
	v, ok := r.values[field][value]
	return v, ok
}

func (r fakeResolver) Lexicon(field trck.FieldID) []string { return r.lexes[field] }

func newFakeResolver() fakeResolver {
	return fakeResolver{
		fields: map[string]trck.FieldID{"action": 1},
		values: map[trck.FieldID]map[string]trck.ValueID{
			1: {"": 0, "click": 1, "view": 2},
		},
		lexes: map[trck.FieldID][]string{1: {"", "click", "view"}},
	}
}

func TestResolveScalarsUnresolvedValueNeverMatches(t *testing.T) {
	r := newFakeResolver()
	out, err := ResolveScalars(r, "action", []ScalarParam{
		{Name: "%known", Value: "click"},
		{Name: "%unknown", Value: "purchase"},
	})
	require.NoError(t, err)
	require.Equal(t, trck.ValueID(1), out["%known"])
	// "purchase" isn't in this store's lexicon at all, distinct from a
	// resolved lookup landing on the canonical empty string (value id 0).
	require.Equal(t, trck.ValueID(-1), out["%unknown"])
}

func TestResolveScalarsMissingFieldYieldsMissingFieldSentinel(t *testing.T) {
	r := newFakeResolver()
	out, err := ResolveScalars(r, "nonexistent", []ScalarParam{{Name: "%x", Value: "click"}})
	require.NoError(t, err)
	require.Equal(t, trck.ValueID(trck.MissingField), out["%x"])
}

func TestResolveSetsDropsUnresolvedValues(t *testing.T) {
	r := newFakeResolver()
	out := ResolveSets(r, "action", []SetParam{
		{Name: "#actions", Values: []string{"click", "purchase", "view"}},
	})
	require.ElementsMatch(t, []trck.ValueID{1, 2}, out["#actions"])
}

func TestResolveSetsMissingFieldYieldsNil(t *testing.T) {
	r := newFakeResolver()
	out := ResolveSets(r, "nonexistent", []SetParam{{Name: "#x", Values: []string{"click"}}})
	require.Nil(t, out["#x"])
}

func TestImplicitTuplesUnionsAcrossStoresWithEmptyFirst(t *testing.T) {
	tuples := ImplicitTuples([][]string{
		{"", "click", "view"},
		{"", "view", "purchase"},
	})
	require.Equal(t, []string{"", "click", "purchase", "view"}, tuples)
}

func TestArrayTuplesValidatesElementKinds(t *testing.T) {
	_, err := ArrayTuples([]bool{false, true}, [][]any{
		{"click", []string{"a", "b"}},
	})
	require.NoError(t, err)

	_, err = ArrayTuples([]bool{false, true}, [][]any{
		{"click", "not-a-set"},
	})
	require.Error(t, err)

	_, err = ArrayTuples([]bool{false, true}, [][]any{
		{"click"},
	})
	require.Error(t, err)
}
