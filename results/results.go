// Package results accumulates per-FOREACH-tuple aggregates across
// however many shards and stores contributed to them, merges shard-local
// result arrays monoidally (so merge order never affects the outcome),
// and runs the finalisation pass that gives every subject still holding
// non-initial state one last synthetic invocation after the final store
// closes.
//
// Grounded on add_results_vec (splat semantics already folded in by
// package engine) and match_timestamp_only (the finalisation dummy
// event).
package results

import (
	"sort"

	"github.com/wbrown/trck"
	"github.com/wbrown/trck/cursor"
	"github.com/wbrown/trck/matcher"
)

// Bucket is one FOREACH tuple's accumulated aggregates.
type Bucket struct {
	Counts map[string]int64
	Sets   map[string]map[string]struct{}
	HLL    map[string]uint64 // max estimate seen, since estimates from independent sketches don't sum
}

func newBucket() *Bucket {
	return &Bucket{
		Counts: make(map[string]int64),
		Sets:   make(map[string]map[string]struct{}),
		HLL:    make(map[string]uint64),
	}
}

func (b *Bucket) addCount(name string, delta int64) { b.Counts[name] += delta }

func (b *Bucket) addSet(name, value string) {
	s, ok := b.Sets[name]
	if !ok {
		s = make(map[string]struct{})
		b.Sets[name] = s
	}
	s[value] = struct{}{}
}

func (b *Bucket) addHLL(name string, estimate uint64) {
	if cur, ok := b.HLL[name]; !ok || estimate > cur {
		b.HLL[name] = estimate
	}
}

func (b *Bucket) merge(other *Bucket) {
	for k, v := range other.Counts {
		b.Counts[k] += v
	}
	for k, s := range other.Sets {
		dst, ok := b.Sets[k]
		if !ok {
			dst = make(map[string]struct{})
			b.Sets[k] = dst
		}
		for v := range s {
			dst[v] = struct{}{}
		}
	}
	for k, v := range other.HLL {
		b.addHLL(k, v)
	}
}

// Collector holds one Bucket per FOREACH tuple index. A Collector is not
// safe for concurrent use; the controller gives each shard its own
// Collector and merges them under the cross-store critical section (see
// package controller).
type Collector struct {
	buckets []*Bucket
}

// NewCollector returns a Collector with numTuples empty buckets.
func NewCollector(numTuples int) *Collector {
	c := &Collector{buckets: make([]*Bucket, numTuples)}
	for i := range c.buckets {
		c.buckets[i] = newBucket()
	}
	return c
}

// SinkFor returns a matcher.Sink that accumulates into tuple index i's
// bucket.
func (c *Collector) SinkFor(i int) matcher.Sink {
	return bucketSink{b: c.buckets[i]}
}

type bucketSink struct{ b *Bucket }

func (s bucketSink) AddCount(name string, delta int64) { s.b.addCount(name, delta) }
func (s bucketSink) AddSet(name, value string)         { s.b.addSet(name, value) }
func (s bucketSink) AddHLL(name string, estimate uint64) { s.b.addHLL(name, estimate) }

// Bucket returns tuple index i's accumulated results.
func (c *Collector) Bucket(i int) *Bucket {
	return c.buckets[i]
}

// Len returns the number of tuple buckets.
func (c *Collector) Len() int {
	return len(c.buckets)
}

// Merge folds other into c, bucket by bucket. c and other must have the
// same length. Merge is commutative and associative, so shard results can
// be merged in any order.
func (c *Collector) Merge(other *Collector) {
	for i, b := range other.buckets {
		c.buckets[i].merge(b)
	}
}

// dummyTrail is a one-event TrailView standing in for the synthetic
// finalisation event: a single item-less event at trck.MaxTimestamp, the
// Go counterpart of match_timestamp_only's fabricated tdb_event.
type dummyTrail struct{ ev trck.Event }

func (d dummyTrail) Len() int            { return 1 }
func (d dummyTrail) Event(int) trck.Event { return d.ev }

var finalisationTrail matcher.TrailView = dummyTrail{ev: trck.Event{Timestamp: trck.MaxTimestamp}}

// Finalize gives every tuple index in states whose carried state is not
// matcher.InitialState one last invocation against the synthetic
// end-of-time event, folding any resulting sink activity into c. states
// should be the surviving global per-tuple state after every store has
// been processed (see controller.StateMap.Finalize).
func Finalize(program matcher.Program, c *Collector, states []matcher.State) {
	_ = cursor.Window{} // finalisation never windows; kept for doc symmetry with the per-store path
	for i, st := range states {
		if st == matcher.InitialState {
			continue
		}
		program.MatchTrail(finalisationTrail, matcher.Bindings{}, st, c.SinkFor(i))
	}
}

// SortedSetValues returns bucket's set values in a deterministic order,
// for stable CLI/serialised output.
func SortedSetValues(b *Bucket, name string) []string {
	s := b.Sets[name]
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
