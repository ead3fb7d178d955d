// Package controller drives the cross-store run: it opens each input
// store in order, fans subjects out across a worker pool per store,
// and merges every shard's locally-built state deltas into a global,
// mutex-protected per-subject state map after each store closes — the Go
// counterpart of run_groupby_query2's per-store OpenMP parallel region
// plus critical-section state merge.
package controller

import (
	"sync"

	"github.com/wbrown/trck"
	"github.com/wbrown/trck/matcher"
	"github.com/wbrown/trck/statevec"
)

// StateMap is the global, cross-store per-subject state map: for every
// subject that has left its initial state in at least one FOREACH tuple,
// it holds that subject's full per-tuple state vector.
//
// It is sharded by the subject UUID's first byte into NewStateMap's
// shardCount independent mutex-protected buckets (the REDESIGN FLAGS upgrade over a
// single global critical section) — shard count is purely a contention
// knob; it never changes behaviour, since the original's single judy128
// map under one #pragma omp critical block is semantically a 1-shard
// instance of the same structure.
type StateMap struct {
	shards    []stateShard
	numTuples int
}

type stateShard struct {
	mu sync.Mutex
	m  map[trck.UUID]*statevec.Vector
}

// NewStateMap returns an empty StateMap for a groupby with numTuples
// FOREACH tuples, split across shardCount buckets (minimum 1).
func NewStateMap(numTuples, shardCount int) *StateMap {
	if shardCount < 1 {
		shardCount = 1
	}
	sm := &StateMap{
		shards:    make([]stateShard, shardCount),
		numTuples: numTuples,
	}
	for i := range sm.shards {
		sm.shards[i].m = make(map[trck.UUID]*statevec.Vector)
	}
	return sm
}

func (sm *StateMap) shardFor(uuid trck.UUID) *stateShard {
	return &sm.shards[int(uuid[0])%len(sm.shards)]
}

// Get returns uuid's full per-tuple state, one entry per FOREACH tuple
// index, padding any trailing tuples the stored vector trimmed (because
// they were still in the initial state) with matcher.InitialState.
func (sm *StateMap) Get(uuid trck.UUID) []matcher.State {
	shard := sm.shardFor(uuid)
	shard.mu.Lock()
	out := sm.getLocked(shard, uuid)
	shard.mu.Unlock()
	return out
}

// getLocked is Get's body for callers that already hold shard.mu (e.g.
// Finalize, which iterates shard.m under the lock). Calling Get itself
// in that situation would deadlock: sync.Mutex is not reentrant.
func (sm *StateMap) getLocked(shard *stateShard, uuid trck.UUID) []matcher.State {
	v := shard.m[uuid]

	out := make([]matcher.State, sm.numTuples)
	it := statevec.NewIterator(v)
	for i := 0; i < sm.numTuples; i++ {
		st, empty, ok := it.Next()
		if !ok || empty {
			continue
		}
		out[i] = st
	}
	return out
}

// MergeLocal folds a shard's locally-computed per-subject updates into
// the global map, one subject at a time, each subject's own critical
// section rather than one lock held for the whole batch — the worker
// pool already serialises writers per subject (a subject is only ever
// processed by one shard goroutine within a store), so contention here is
// only against concurrent Get/Finalize calls from other goroutines.
func (sm *StateMap) MergeLocal(updates map[trck.UUID][]matcher.State) {
	for uuid, states := range updates {
		b := statevec.NewBuilder()
		for _, st := range states {
			if st == matcher.InitialState {
				b.AppendEmpty(1)
			} else {
				b.Append(st, 1)
			}
		}
		v := b.Finish()

		shard := sm.shardFor(uuid)
		shard.mu.Lock()
		if v == nil {
			delete(shard.m, uuid)
		} else {
			shard.m[uuid] = v
		}
		shard.mu.Unlock()
	}
}

// Finalize returns every subject still holding non-initial state after
// the last store has been processed, for the finalisation pass (see
// package results).
func (sm *StateMap) Finalize() map[trck.UUID][]matcher.State {
	out := make(map[trck.UUID][]matcher.State)
	for i := range sm.shards {
		shard := &sm.shards[i]
		shard.mu.Lock()
		for uuid := range shard.m {
			out[uuid] = sm.getLocked(shard, uuid)
		}
		shard.mu.Unlock()
	}
	return out
}

// Len returns the number of subjects currently tracked (i.e. not in the
// all-initial state), summed across shards.
func (sm *StateMap) Len() int {
	n := 0
	for i := range sm.shards {
		sm.shards[i].mu.Lock()
		n += len(sm.shards[i].m)
		sm.shards[i].mu.Unlock()
	}
	return n
}
