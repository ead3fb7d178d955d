package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter renders Events as human-readable, optionally colorized
// lines — one line per store-run diagnostic event.
type OutputFormatter struct {
	w       io.Writer
	useColor bool
}

// NewOutputFormatter returns a formatter writing to w, auto-detecting
// color support: only colorize when w is a terminal.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &OutputFormatter{w: w, useColor: useColor}
}

func (f *OutputFormatter) colorize(c color.Attribute, s string) string {
	if !f.useColor {
		return s
	}
	return color.New(c).Sprint(s)
}

// Handler returns a Handler suitable for passing to NewCollector, which
// renders each event to f's writer as it occurs.
func (f *OutputFormatter) Handler() Handler {
	return func(e Event) {
		switch e.Name {
		case StoreOpened:
			fmt.Fprintf(f.w, "%s %v\n", f.colorize(color.FgCyan, "store opened:"), e.Data["path"])
		case StoreCompleted:
			fmt.Fprintf(f.w, "%s %v subjects in %s\n",
				f.colorize(color.FgGreen, "store completed:"), e.Data["subjects"], e.Duration)
		case SubjectSkipped:
			fmt.Fprintf(f.w, "%s %v\n", f.colorize(color.FgYellow, "skipped (excluded):"), e.Data["uuid"])
		case MatchCalls, EarlyBreaks, StateMapMerge:
			fmt.Fprintf(f.w, "%s %v = %v\n", f.colorize(color.FgMagenta, "counter:"), e.Name, e.Data["n"])
		default:
			fmt.Fprintf(f.w, "%s\n", e.Name)
		}
	}
}
