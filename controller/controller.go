package controller

import (
	"context"
	"fmt"

	"github.com/wbrown/trck"
	"github.com/wbrown/trck/cursor"
	"github.com/wbrown/trck/diag"
	"github.com/wbrown/trck/engine"
	"github.com/wbrown/trck/matcher"
	"github.com/wbrown/trck/results"
	"github.com/wbrown/trck/store"
	"github.com/wbrown/trck/winexclude"
)

// Options configures a Run.
type Options struct {
	// Workers is the per-store goroutine count (0 = runtime.NumCPU()).
	Workers int
	// StateShards is the global state map's shard count (see
	// StateMap); 0 defaults to 1.
	StateShards int
	// Window optionally clips every subject's trail to a per-subject
	// window, looked up by the subject's UUID. The window file's optional
	// id column is not consulted here.
	Window *winexclude.WindowSet
	// Exclude optionally skips subjects entirely.
	Exclude *winexclude.ExcludeSet
	// Progress, if non-nil, is called after each store finishes with the
	// number of subjects the store held data for.
	Progress func(storeIndex int, subjectCount int64)
	// Diag, if non-nil, receives per-store engine.Stats as
	// diag.MatchCalls / diag.EarlyBreaks counter events.
	Diag *diag.Collector

	// BatchSize groups subjects into chunks of this size before handing
	// each chunk to a worker goroutine (100 if <= 0), amortising
	// per-subject scheduling overhead across a contiguous run of subjects
	// the way run_groupby_query2's static OpenMP schedule does implicitly.
	BatchSize int
}

// Run executes program across stores, in order, against gb's FOREACH
// tuples, returning the merged, finalised result Collector.
//
// Per-subject matcher state survives from one store to the next: a
// subject seen in stores[0] and stores[2] but not stores[1] resumes in
// stores[2] exactly where it left off in stores[0], and stores[1] never
// perturbs it. This is the cross-store continuity invariant the state
// map's merge-after-every-store protocol exists to uphold.
//
// If program.NeedsRewind() and len(stores) > 1, Run refuses to proceed:
// cross-store continuity only carries a Program's opaque State forward,
// never raw trail bytes, so a rewinding Program cannot be given a second
// store's trail and expect to re-read the first store's events.
func Run(ctx context.Context, program matcher.Program, stores []store.Store, gb *engine.Groupby, opts Options) (*results.Collector, error) {
	if program.NeedsRewind() && len(stores) > 1 {
		return nil, fmt.Errorf("controller: program requires rewind, which is incompatible with more than one store (got %d)", len(stores))
	}

	numTuples := len(gb.Tuples)
	stateMap := NewStateMap(numTuples, opts.StateShards)
	pool := NewWorkerPool(opts.Workers)

	global := results.NewCollector(numTuples)
	var mergeMu chan struct{} = make(chan struct{}, 1)
	mergeMu <- struct{}{}

	minTS := uint64(0)

	for storeIdx, st := range stores {
		subjects, err := listSubjects(st, opts.Window)
		if err != nil {
			return nil, fmt.Errorf("controller: listing subjects for store %d: %w", storeIdx, err)
		}

		inputs := make([]interface{}, len(subjects))
		for i, u := range subjects {
			inputs[i] = u
		}

		type shardOutcome struct {
			updates map[trck.UUID][]matcher.State
			local   *results.Collector
		}

		localUpdates := make(map[trck.UUID][]matcher.State)
		localResults := results.NewCollector(numTuples)
		var localStats engine.Stats

		processOne := func(in interface{}) error {
			uuid := in.(trck.UUID)

			if opts.Exclude.Contains(uuid) {
				return nil
			}

			win := cursor.Window{}
			if opts.Window != nil {
				if w, ok := opts.Window.Get(uuid); ok {
					win = w
				}
			}
			if minTS > win.Start {
				win.Start = minTS
			}

			raw, ok, err := st.OpenTrail(uuid)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

			trail, err := cursor.Read(raw, win)
			if err != nil {
				return err
			}

			prior := stateMap.Get(uuid)
			shardLocal := results.NewCollector(numTuples)
			updated, subjectStats := engine.MatchSubject(program, trail, gb, prior, func(i int) matcher.Sink {
				return shardLocal.SinkFor(i)
			})

			<-mergeMu
			localUpdates[uuid] = updated
			localResults.Merge(shardLocal)
			localStats.MatchCalls += subjectStats.MatchCalls
			localStats.EarlyBreaks += subjectStats.EarlyBreaks
			mergeMu <- struct{}{}

			return nil
		}

		_, err = pool.ExecuteParallelBatched(ctx, inputs, opts.BatchSize, func(_ context.Context, batch []interface{}) ([]interface{}, error) {
			for _, in := range batch {
				if err := processOne(in); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		if err != nil {
			return nil, fmt.Errorf("controller: store %d: %w", storeIdx, err)
		}

		stateMap.MergeLocal(localUpdates)
		global.Merge(localResults)

		if opts.Diag != nil {
			opts.Diag.Count(diag.MatchCalls, localStats.MatchCalls)
			opts.Diag.Count(diag.EarlyBreaks, localStats.EarlyBreaks)
		}

		if ts := st.MaxTimestamp(); ts > minTS {
			minTS = ts
		}

		if opts.Progress != nil {
			opts.Progress(storeIdx, int64(len(subjects)))
		}
	}

	finalStates := stateMap.Finalize()
	for _, states := range finalStates {
		results.Finalize(program, global, states)
	}

	return global, nil
}

// listSubjects returns the subjects a store should be iterated over: if a
// window set is configured, every subject the store holds that has a
// window-set entry for its UUID; otherwise every subject the store holds.
func listSubjects(st store.Store, ws *winexclude.WindowSet) ([]trck.UUID, error) {
	if ws == nil {
		it, err := st.Trails()
		if err != nil {
			return nil, err
		}
		defer it.Close()

		var out []trck.UUID
		for {
			u, ok, err := it.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			out = append(out, u)
		}
		return out, nil
	}

	// A window set constrains the run to exactly the subjects it names.
	it, err := st.Trails()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []trck.UUID
	for {
		u, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if _, has := ws.Get(u); has {
			out = append(out, u)
		}
	}
	return out, nil
}
