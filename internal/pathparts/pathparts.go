// Package pathparts splits a request path into the gateway's address
// segments without allocating: every accessor returns a slice of the
// original path string.
package pathparts

import (
	"errors"
	"strings"
)

// ErrBadPath is returned when a path does not start with "/", does not
// match any configured prefix, or lacks the four segments that follow it.
var ErrBadPath = errors.New("pathparts: malformed path")

// Parts is a zero-copy view into a request path: org/channel/event-id/suffix
// addressing for a media event, plus the prefix that selected it.
type Parts struct {
	full string

	prefixEnd int // offset just past the prefix segment
	orgEnd    int
	chanEnd   int
	eventEnd  int
}

// Full returns the entire original path.
func (p Parts) Full() string { return p.full }

// Prefix returns the matched configured prefix, without surrounding slashes.
func (p Parts) Prefix() string { return strings.Trim(p.full[:p.prefixEnd], "/") }

// WithoutPrefix returns everything after the matched prefix, including the
// leading "/" before org.
func (p Parts) WithoutPrefix() string { return p.full[p.prefixEnd:] }

// Org returns the organization segment.
func (p Parts) Org() string { return p.full[p.prefixEnd+1 : p.orgEnd] }

// Channel returns the channel segment.
func (p Parts) Channel() string { return p.full[p.orgEnd+1 : p.chanEnd] }

// EventID returns the event-id segment.
func (p Parts) EventID() string { return p.full[p.chanEnd+1 : p.eventEnd] }

// Suffix returns everything after the event-id segment, verbatim (it may
// itself contain further "/" separators).
func (p Parts) Suffix() string { return p.full[p.eventEnd+1:] }

// Parse matches path against the configured prefixes and splits the
// remainder into org/channel/event-id/suffix. Surrounding slashes are
// trimmed from each prefix, so "static" and "/static" are equivalent.
func Parse(path string, prefixes []string) (Parts, error) {
	if !strings.HasPrefix(path, "/") {
		return Parts{}, ErrBadPath
	}

	rest := path[1:]
	var matched string
	var matchLen int
	for _, p := range prefixes {
		trimmed := strings.Trim(p, "/")
		if trimmed == "" {
			continue
		}
		if rest == trimmed || strings.HasPrefix(rest, trimmed+"/") {
			matched = trimmed
			matchLen = len(trimmed)
			break
		}
	}
	if matched == "" {
		return Parts{}, ErrBadPath
	}

	prefixEnd := 1 + matchLen // offset just past "/"+prefix, pointing at the next "/"

	orgEnd, ok := findAfter(path, prefixEnd)
	if !ok {
		return Parts{}, ErrBadPath
	}
	chanEnd, ok := findAfter(path, orgEnd)
	if !ok {
		return Parts{}, ErrBadPath
	}
	eventEnd, ok := findAfter(path, chanEnd)
	if !ok {
		return Parts{}, ErrBadPath
	}
	// suffix must be non-empty.
	if eventEnd+1 >= len(path) {
		return Parts{}, ErrBadPath
	}

	return Parts{
		full:      path,
		prefixEnd: prefixEnd,
		orgEnd:    orgEnd,
		chanEnd:   chanEnd,
		eventEnd:  eventEnd,
	}, nil
}

// findAfter scans for the next "/" strictly after from, and requires the
// segment between from and that "/" to be non-empty. It returns the offset
// of the found "/".
func findAfter(path string, from int) (int, bool) {
	if from >= len(path) || path[from] != '/' {
		return 0, false
	}
	rel := strings.IndexByte(path[from+1:], '/')
	if rel < 0 {
		return 0, false
	}
	if rel == 0 {
		return 0, false // empty segment
	}
	return from + 1 + rel, true
}
