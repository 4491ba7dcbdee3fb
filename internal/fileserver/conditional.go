package fileserver

import (
	"net/http"
	"strings"
	"time"
)

// isUnmodified honors If-None-Match first (literal "*" always matches;
// otherwise a comma-separated list of ETags, each optionally prefixed
// "W/", compared byte-wise), falling back to If-Modified-Since when no
// If-None-Match header is present.
func isUnmodified(r *http.Request, etag string, modTime time.Time) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if inm == "*" {
			return true
		}
		for _, candidate := range strings.Split(inm, ",") {
			candidate = strings.TrimSpace(candidate)
			candidate = strings.TrimPrefix(candidate, "W/")
			if candidate == etag {
				return true
			}
		}
		return false
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			return !modTime.Truncate(time.Second).After(t)
		}
	}
	return false
}
