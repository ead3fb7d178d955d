package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// printTable renders rows as a markdown table, one column per aggregate
// name actually present across any row.
func printTable(rows []row) {
	if len(rows) == 0 {
		fmt.Println("_No groups produced any results_")
		return
	}

	countNames := collectNames(rows, func(r row) []string { return keysOf(r.Counts) })
	setNames := collectNames(rows, func(r row) []string { return keysOf(r.Sets) })
	hllNames := collectNames(rows, func(r row) []string { return keysOf(r.HLL) })

	headers := []string{"group"}
	for _, n := range countNames {
		headers = append(headers, n)
	}
	for _, n := range setNames {
		headers = append(headers, n+" (distinct)")
	}
	for _, n := range hllNames {
		headers = append(headers, n+" (~distinct)")
	}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)

	for _, r := range rows {
		out := []string{r.Group}
		for _, n := range countNames {
			out = append(out, fmt.Sprintf("%d", r.Counts[n]))
		}
		for _, n := range setNames {
			out = append(out, fmt.Sprintf("%d", r.Sets[n]))
		}
		for _, n := range hllNames {
			out = append(out, fmt.Sprintf("%d", r.HLL[n]))
		}
		table.Append(out)
	}

	table.Render()
	fmt.Printf("\n_%d groups_\n", len(rows))
}

func keysOf[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func collectNames(rows []row, f func(row) []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range rows {
		for _, n := range f(r) {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}
