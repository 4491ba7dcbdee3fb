// Package tokensource extracts a raw bearer token from a request, trying a
// configured, ordered list of locations until one yields a value.
package tokensource

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-logr/logr"
)

// Source describes one place to look for a token. Exactly one of QueryParam
// or HeaderName should be set; construct via QuerySource / HeaderSource.
type Source struct {
	// QueryParam, when non-empty, names a query parameter to read.
	QueryParam string
	// HeaderName, when non-empty, names a request header to read.
	HeaderName string
	// HeaderPrefix is stripped from the header value when present
	// (e.g. "Bearer ").
	HeaderPrefix string
}

// QuerySource builds a Source that reads query parameter name.
func QuerySource(name string) Source { return Source{QueryParam: name} }

// HeaderSource builds a Source that reads header name, stripping prefix.
func HeaderSource(name, prefix string) Source {
	return Source{HeaderName: name, HeaderPrefix: prefix}
}

// Extract returns the first value produced by sources, in order, or false
// if none yielded one.
func Extract(req *http.Request, sources []Source, log logr.Logger) (string, bool) {
	for _, s := range sources {
		if s.QueryParam != "" {
			if v := req.URL.Query().Get(s.QueryParam); v != "" {
				return v, true
			}
			continue
		}
		if s.HeaderName != "" {
			raw := req.Header.Get(s.HeaderName)
			if raw == "" {
				continue
			}
			if !utf8.ValidString(raw) {
				log.V(1).Info("skipping non-UTF-8 header value", "header", s.HeaderName)
				continue
			}
			v := strings.TrimPrefix(raw, s.HeaderPrefix)
			if v == "" {
				continue
			}
			return v, true
		}
	}
	return "", false
}
