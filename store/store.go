// Package store defines the columnar trail store interface the engine
// reads from, plus a BadgerDB-backed implementation.
//
// A Store's field and value ids are store-local: the same string value
// can resolve to different ids in two different stores, which is exactly
// why the engine re-resolves every external parameter and FOREACH tuple
// once per store (see package params) rather than caching ids across
// stores.
package store

import (
	"github.com/wbrown/trck"
	"github.com/wbrown/trck/cursor"
)

// Store is a single opened columnar event store.
type Store interface {
	// FieldID resolves a column name to this store's field id. ok is
	// false if the store's schema has no such column.
	FieldID(name string) (trck.FieldID, bool)

	// ValueID resolves a string value to this store's value id within
	// field's lexicon. ok is false if the value never occurs in this
	// store.
	ValueID(field trck.FieldID, value string) (trck.ValueID, bool)

	// Lexicon returns field's values in id order (index 0 is always the
	// canonical empty string).
	Lexicon(field trck.FieldID) []string

	// MaxTimestamp returns the highest event timestamp this store
	// contains, used to clamp a subsequent store's window_start during
	// cross-store continuity.
	MaxTimestamp() uint64

	// NumTrails returns how many subjects this store has data for.
	NumTrails() int64

	// Trails returns an iterator over every subject in this store, in
	// unspecified order, for the no-window-set (whole-store) case.
	Trails() (TrailIterator, error)

	// OpenTrail opens uuid's raw event reader, or ok=false if this store
	// has no data for uuid.
	OpenTrail(uuid trck.UUID) (cursor.RawReader, bool, error)

	Close() error
}

// TrailIterator enumerates a store's subjects.
type TrailIterator interface {
	Next() (uuid trck.UUID, ok bool, err error)
	Close() error
}
