// Command trck runs a compiled pattern-matching program across one or
// more columnar trail stores and prints per-FOREACH-group aggregate
// results.
//
// Flags mirror a getopt_long-style surface (--params, --output-format,
// --window-file, --exclude-file; there is no --filter flag), translated
// to Go's stdlib flag package.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/wbrown/trck"
	"github.com/wbrown/trck/controller"
	"github.com/wbrown/trck/diag"
	"github.com/wbrown/trck/engine"
	"github.com/wbrown/trck/foreachidx"
	"github.com/wbrown/trck/matcher/builtin"
	"github.com/wbrown/trck/params"
	"github.com/wbrown/trck/results"
	"github.com/wbrown/trck/store"
	"github.com/wbrown/trck/winexclude"
)

func main() {
	var (
		field        = flag.String("field", "", "column to implicitly FOREACH-group by")
		paramsFile   = flag.String("params", "", "JSON file of scalar/set external parameters (reserved for custom Programs)")
		windowFile   = flag.String("window-file", "", "CSV file of per-subject timestamp windows")
		excludeFile  = flag.String("exclude-file", "", "file of excluded subject UUIDs, one per line")
		outputFormat = flag.String("output-format", "table", "json | msgpack | table")
		workers      = flag.Int("workers", 0, "worker goroutines per store (0 = NumCPU)")
		verbose      = flag.Bool("verbose", false, "print per-store diagnostics")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <store-path> [<store-path>...]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *field == "" {
		fmt.Fprintln(os.Stderr, "error: -field is required (implicit FOREACH grouping column)")
		os.Exit(2)
	}

	collector := diag.NewCollector(nil)
	if *verbose {
		collector = diag.NewCollector(diag.NewOutputFormatter(os.Stderr).Handler())
	}

	stores := make([]store.Store, 0, len(paths))
	for _, p := range paths {
		s, err := store.Open(p)
		if err != nil {
			log.Fatalf("failed to open store %q: %v", p, err)
		}
		defer s.Close()
		stores = append(stores, s)
		collector.Add(diag.Event{Name: diag.StoreOpened, Data: map[string]interface{}{"path": p}})
	}

	window := loadWindowSet(*windowFile)
	exclude := loadExcludeSet(*excludeFile)
	if *paramsFile != "" {
		if _, err := os.ReadFile(*paramsFile); err != nil {
			log.Fatalf("failed to read params file: %v", err)
		}
		// Custom matcher.Program implementations read their own scalar
		// and set parameters from this file via package params; the
		// reference CountField program used by this CLI binds no
		// external parameters.
	}

	lexicons := make([][]string, 0, len(stores))
	for _, s := range stores {
		if fid, ok := s.FieldID(*field); ok {
			lexicons = append(lexicons, s.Lexicon(fid))
		}
	}
	labels := params.ImplicitTuples(lexicons)

	program := builtin.CountField{}
	ctx := context.Background()

	merged := results.NewCollector(len(labels))
	for storeIdx, s := range stores {
		fieldID, ok := s.FieldID(*field)
		if !ok {
			fieldID = trck.MissingField
		}

		gb := &engine.Groupby{
			Fields: []trck.FieldID{fieldID},
			Tuples: tuplesForLabels(labels, s, fieldID),
		}
		gb.Index = foreachidx.Build(gb.Fields, gb.Tuples)

		start := time.Now()
		res, err := controller.Run(ctx, program, []store.Store{s}, gb, controller.Options{
			Workers: *workers,
			Window:  window,
			Exclude: exclude,
			Diag:    collector,
			Progress: func(_ int, n int64) {
				collector.Add(diag.Event{Name: diag.StoreCompleted, Duration: time.Since(start), Data: map[string]interface{}{"subjects": n}})
			},
		})
		if err != nil {
			log.Fatalf("store %d: %v", storeIdx, err)
		}
		merged.Merge(res)
	}

	rows := buildRows(merged, labels)

	switch *outputFormat {
	case "json":
		b, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(b))
	case "msgpack":
		b, err := encodeMsgpack(rows)
		if err != nil {
			log.Fatalf("msgpack encode: %v", err)
		}
		os.Stdout.Write(b)
	default:
		printTable(rows)
	}
}

// row is one FOREACH group's output: its grouping label plus every
// aggregate name/value the matcher program yielded for that group.
type row struct {
	Group  string           `json:"group"`
	Counts map[string]int64 `json:"counts,omitempty"`
	Sets   map[string]int   `json:"set_sizes,omitempty"`
	HLL    map[string]uint64 `json:"hll_estimates,omitempty"`
}

func buildRows(c *results.Collector, labels []string) []row {
	rows := make([]row, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		b := c.Bucket(i)
		if len(b.Counts) == 0 && len(b.Sets) == 0 && len(b.HLL) == 0 {
			continue
		}
		r := row{Group: labels[i]}
		if len(b.Counts) > 0 {
			r.Counts = b.Counts
		}
		if len(b.Sets) > 0 {
			r.Sets = make(map[string]int, len(b.Sets))
			for name := range b.Sets {
				r.Sets[name] = len(results.SortedSetValues(b, name))
			}
		}
		if len(b.HLL) > 0 {
			r.HLL = b.HLL
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Group < rows[j].Group })
	return rows
}

func tuplesForLabels(labels []string, s store.Store, field trck.FieldID) [][]foreachidx.TupleValue {
	out := make([][]foreachidx.TupleValue, len(labels))
	for i, v := range labels {
		id, ok := s.ValueID(field, v)
		if !ok {
			id = -1 // not in this store's lexicon: never present, not the empty string
		}
		out[i] = []foreachidx.TupleValue{{Scalar: id}}
	}
	return out
}

func loadWindowSet(path string) *winexclude.WindowSet {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open window file: %v", err)
	}
	defer f.Close()
	ws, err := winexclude.ParseWindowSet(f)
	if err != nil {
		log.Fatalf("failed to parse window file: %v", err)
	}
	return ws
}

func loadExcludeSet(path string) *winexclude.ExcludeSet {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open exclude file: %v", err)
	}
	defer f.Close()
	es, err := winexclude.ParseExcludeSet(f)
	if err != nil {
		log.Fatalf("failed to parse exclude file: %v", err)
	}
	return es
}
