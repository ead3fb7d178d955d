// Package params resolves a query's external parameters and its FOREACH
// grouping variable(s) against a store's schema.
//
// Three variable kinds are recognised by name prefix, following
// set_params_from_json and mk_groupby_info:
//
//   - "%name" — scalar parameter, resolved to a single value id.
//   - "#name" — set parameter, resolved to a set of value ids.
//   - "@name" — array parameter: a groupby variable whose tuples are
//     supplied explicitly (each tuple element itself scalar-or-set).
//
// A query omitting any explicit groupby variable instead groups implicitly
// by the union of one column's lexicon across every open store (see
// ImplicitTuples), with the canonical empty string prepended at index 0 so the
// "never set" bucket is always tuple index 0.
package params

import (
	"fmt"
	"sort"

	"github.com/wbrown/trck"
)

// Resolver resolves string values to store-local ids. Implementations
// wrap a single open store (see package store).
type Resolver interface {
	FieldID(name string) (trck.FieldID, bool)
	ValueID(field trck.FieldID, value string) (trck.ValueID, bool)
	Lexicon(field trck.FieldID) []string // index-ordered, index 0 is "".
}

// ScalarParam is a "%name" parameter's JSON-supplied string value.
type ScalarParam struct {
	Name  string
	Value string
}

// SetParam is a "#name" parameter's JSON-supplied string values.
type SetParam struct {
	Name   string
	Values []string
}

// ResolveScalars converts each ScalarParam's string value to this store's
// value id, via the named field. A value absent from this store's lexicon
// resolves to -1, db_get_value_id's "never present" sentinel — distinct
// from 0, which is reserved exclusively for a resolved lexicon lookup
// that happens to land on the canonical empty string. The field itself
// being missing from the store resolves to trck.ValueID(trck.MissingField),
// which is also -1, so the returned map does not tell the two cases apart.
func ResolveScalars(r Resolver, field string, ps []ScalarParam) (map[string]trck.ValueID, error) {
	fieldID, ok := r.FieldID(field)
	out := make(map[string]trck.ValueID, len(ps))
	for _, p := range ps {
		if !ok {
			out[p.Name] = trck.ValueID(trck.MissingField)
			continue
		}
		v, found := r.ValueID(fieldID, p.Value)
		if !found {
			v = -1
		}
		out[p.Name] = v
	}
	return out, nil
}

// ResolveSets converts each SetParam's string values to this store's value
// ids, dropping values the store's lexicon does not contain (set_to_local
// only inserts ids that resolved to something real, v > 0).
func ResolveSets(r Resolver, field string, ps []SetParam) map[string][]trck.ValueID {
	fieldID, ok := r.FieldID(field)
	out := make(map[string][]trck.ValueID, len(ps))
	for _, p := range ps {
		if !ok {
			out[p.Name] = nil
			continue
		}
		ids := make([]trck.ValueID, 0, len(p.Values))
		for _, val := range p.Values {
			if v, found := r.ValueID(fieldID, val); found && v > 0 {
				ids = append(ids, v)
			}
		}
		out[p.Name] = ids
	}
	return out
}

// ImplicitTuples builds the FOREACH tuple set from the union of field's
// lexicon across every store: the canonical empty string at index 0,
// followed by every other distinct value in sorted order. Tuples are
// string-valued (not yet store-local) so they can be carried across
// stores and re-resolved against each store's lexicon; see
// mk_groupby_info's single-scalar-variable path.
func ImplicitTuples(lexicons [][]string) []string {
	seen := map[string]struct{}{"": {}}
	out := []string{""}
	for _, lex := range lexicons {
		for _, v := range lex {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out[1:]) // keep "" first, the rest in a deterministic order
	return out
}

// ArrayTuples parses an explicit "@name" groupby array: one tuple per
// element, each tuple itself a mix of scalar strings and sets of strings
// according to varKinds (true = set-valued). Every tuple must supply
// exactly len(varKinds) elements.
func ArrayTuples(varKinds []bool, raw [][]any) ([][]any, error) {
	for i, tuple := range raw {
		if len(tuple) != len(varKinds) {
			return nil, fmt.Errorf("groupby tuple %d: want %d elements, got %d", i, len(varKinds), len(tuple))
		}
		for j, isSet := range varKinds {
			_, isSlice := tuple[j].([]string)
			if isSet != isSlice {
				return nil, fmt.Errorf("groupby tuple %d element %d: kind mismatch", i, j)
			}
		}
	}
	return raw, nil
}
