// Package cursor materialises one subject's trail from a store: it reads
// raw events in timestamp order, clips them to an optional window, and
// collapses adjacent, byte-identical events into one — the groupby
// engine's matcher.Program never sees a duplicate or an out-of-window
// event.
//
// It is grounded directly on ctx_read_trail and ctx_advance: the same
// clip-then-dedup pipeline, the same "window_start clips inclusive,
// window_end clips exclusive" rule, the same equality definition for a
// duplicate (same timestamp, same items).
package cursor

import (
	"reflect"

	"github.com/wbrown/trck"
)

// RawReader yields one subject's trail in timestamp order, already
// decoded into trck.Event values. Implementations (see package store) are
// free to stream rather than materialise the whole trail up front.
type RawReader interface {
	// Next returns the next event, or ok=false once the trail is
	// exhausted.
	Next() (ev trck.Event, ok bool, err error)
}

// Window clips a trail to [Start, End): an event before Start is skipped,
// an event at or after End stops iteration. A zero Start or End disables
// that side of the clip, matching ctx_read_trail's "0 means unset"
// convention.
type Window struct {
	Start uint64
	End   uint64
}

// Cursor is a materialised, deduplicated, window-clipped trail ready for a
// matcher.Program to walk. It implements matcher.TrailView.
type Cursor struct {
	events []trck.Event
}

// Read drains r into a Cursor, applying win and collapsing adjacent
// duplicate events. It stops reading as soon as win.End is reached, even
// if r has more events, mirroring ctx_read_trail's early break.
func Read(r RawReader, win Window) (*Cursor, error) {
	c := &Cursor{}
	var prev *trck.Event

	for {
		ev, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		if win.Start != 0 && ev.Timestamp < win.Start {
			continue
		}
		if win.End != 0 && ev.Timestamp >= win.End {
			break
		}

		if prev != nil && prev.Timestamp == ev.Timestamp && sameEvent(*prev, ev) {
			continue
		}

		c.events = append(c.events, ev)
		prev = &c.events[len(c.events)-1]
	}

	return c, nil
}

func sameEvent(a, b trck.Event) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	return reflect.DeepEqual(a.Items, b.Items)
}

// Len implements matcher.TrailView.
func (c *Cursor) Len() int {
	if c == nil {
		return 0
	}
	return len(c.events)
}

// Event implements matcher.TrailView.
func (c *Cursor) Event(i int) trck.Event {
	return c.events[i]
}
