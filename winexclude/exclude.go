package winexclude

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/wbrown/trck"
)

// ExcludeSet is a set of subjects to skip entirely during a groupby run,
// loaded from a file of one hex UUID per line.
type ExcludeSet struct {
	uuids map[trck.UUID]struct{}
}

// ParseExcludeSet reads an exclude-set file: one hex UUID per line, blank
// lines ignored. A duplicate UUID is a configuration error, matching
// exclude_set.c's fatal duplicate-line check.
func ParseExcludeSet(r io.Reader) (*ExcludeSet, error) {
	es := &ExcludeSet{uuids: make(map[trck.UUID]struct{})}

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		uuid, err := trck.ParseUUID(line)
		if err != nil {
			return nil, fmt.Errorf("exclude set line %d: %w", lineno, err)
		}
		if _, dup := es.uuids[uuid]; dup {
			return nil, fmt.Errorf("exclude set line %d: duplicate uuid %s", lineno, uuid)
		}
		es.uuids[uuid] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return es, nil
}

// Contains reports whether uuid is excluded.
func (es *ExcludeSet) Contains(uuid trck.UUID) bool {
	if es == nil {
		return false
	}
	_, ok := es.uuids[uuid]
	return ok
}

// Len returns the number of excluded subjects.
func (es *ExcludeSet) Len() int {
	if es == nil {
		return 0
	}
	return len(es.uuids)
}
