package jwks

import (
	"errors"
	"time"

	"github.com/opencast/mediagate/internal/jwkkeys"
)

// ErrAlgoMismatch is returned when a kid-matched key's algorithm disagrees
// with the token's declared algorithm — a fast-fail, not a fall-through to
// other candidates.
var ErrAlgoMismatch = errors.New("jwks: kid-matched key's algorithm differs from token algorithm")

// Source tracks one configured key-set URL's staleness bookkeeping.
type Source struct {
	URL       string
	LastFetch time.Time
}

// Stale reports whether this source's last fetch is older than cacheDuration.
func (s *Source) Stale(now time.Time, cacheDuration time.Duration) bool {
	if s.LastFetch.IsZero() {
		return true
	}
	return now.Sub(s.LastFetch) > cacheDuration
}

// Entry pairs a verification key with the source it came from.
type Entry struct {
	Kid    string
	Key    jwkkeys.Key
	Source *Source
}

// Pool is an immutable snapshot of trusted keys: an index by kid, a list of
// keys whose descriptor carried no kid, and every configured source's
// staleness record. Readers obtain a Pool via Manager.Snapshot without
// blocking; writers build a new Pool and swap it in.
type Pool struct {
	byKid   map[string]Entry
	noKid   []Entry
	sources map[string]*Source
}

// NewPool builds an empty pool pre-registered with the given source URLs
// (no keys fetched yet, every source considered stale).
func NewPool(urls []string) *Pool {
	sources := make(map[string]*Source, len(urls))
	for _, u := range urls {
		sources[u] = &Source{URL: u}
	}
	return &Pool{byKid: map[string]Entry{}, sources: sources}
}

// Candidates implements the key-selection policy: if kid is non-empty and
// present in the pool, only that entry is returned (kidMatched=true) —
// and ErrAlgoMismatch short-circuits everything else if its algorithm
// disagrees with algo. If kid is non-empty but absent from the pool, every
// no-kid entry matching algo is returned. If kid is empty, every entry
// (kid-indexed or not) matching algo is returned.
func (p *Pool) Candidates(kid string, algo jwkkeys.Algorithm) (entries []Entry, kidMatched bool, err error) {
	if kid != "" {
		if e, ok := p.byKid[kid]; ok {
			if e.Key.Algorithm() != algo {
				return nil, true, ErrAlgoMismatch
			}
			return []Entry{e}, true, nil
		}
		return filterAlgo(p.noKid, algo), false, nil
	}

	all := make([]Entry, 0, len(p.byKid)+len(p.noKid))
	for _, e := range p.byKid {
		all = append(all, e)
	}
	all = append(all, p.noKid...)
	return filterAlgo(all, algo), false, nil
}

func filterAlgo(entries []Entry, algo jwkkeys.Algorithm) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Key.Algorithm() == algo {
			out = append(out, e)
		}
	}
	return out
}

// SourceURLs returns every configured source URL.
func (p *Pool) SourceURLs() []string {
	urls := make([]string, 0, len(p.sources))
	for u := range p.sources {
		urls = append(urls, u)
	}
	return urls
}

// StaleSourceURLs returns the subset of urls whose source is stale as of now.
func (p *Pool) StaleSourceURLs(urls []string, now time.Time, cacheDuration time.Duration) []string {
	var out []string
	for _, u := range urls {
		if s, ok := p.sources[u]; ok && s.Stale(now, cacheDuration) {
			out = append(out, u)
		}
	}
	return out
}

// EarliestExpiry returns the source URL whose last_fetch+cacheDuration is
// soonest, and that expiry instant. ok is false when no source has ever
// been fetched (all are already due).
func (p *Pool) EarliestExpiry(cacheDuration time.Duration) (url string, expiry time.Time, ok bool) {
	for u, s := range p.sources {
		if s.LastFetch.IsZero() {
			continue
		}
		exp := s.LastFetch.Add(cacheDuration)
		if !ok || exp.Before(expiry) {
			url, expiry, ok = u, exp, true
		}
	}
	return
}

// URLsExpiringWithin returns every source URL whose expiry (last_fetch +
// cacheDuration) is at most `within` away from now (treating never-fetched
// sources as already due).
func (p *Pool) URLsExpiringWithin(cacheDuration, within time.Duration, now time.Time) []string {
	var out []string
	for u, s := range p.sources {
		if s.LastFetch.IsZero() {
			out = append(out, u)
			continue
		}
		exp := s.LastFetch.Add(cacheDuration)
		if exp.Sub(now) <= within {
			out = append(out, u)
		}
	}
	return out
}

// ApplySourceUpdate returns a new Pool with all entries for url removed and
// replaced by the keys in fetched, under a freshly stamped Source record.
func (p *Pool) ApplySourceUpdate(url string, fetched []FetchedKey, now time.Time) *Pool {
	next := p.clone()
	src := &Source{URL: url, LastFetch: now}
	next.sources[url] = src

	next.removeBySourceURL(url)
	for _, fk := range fetched {
		e := Entry{Kid: fk.Kid, Key: fk.Key, Source: src}
		if fk.Kid != "" {
			next.byKid[fk.Kid] = e
		} else {
			next.noKid = append(next.noKid, e)
		}
	}
	return next
}

// DropSource returns a new Pool with all entries for url removed, but its
// LastFetch stamped to now regardless — used on fetch failure so repeated
// failures don't repeatedly look "never fetched" and starve the background
// loop's lead-time scheduling.
func (p *Pool) DropSource(url string, now time.Time) *Pool {
	next := p.clone()
	existing, ok := next.sources[url]
	src := &Source{URL: url, LastFetch: now}
	if ok {
		src.URL = existing.URL
	}
	next.sources[url] = src
	next.removeBySourceURL(url)
	return next
}

func (p *Pool) removeBySourceURL(url string) {
	for k, e := range p.byKid {
		if e.Source.URL == url {
			delete(p.byKid, k)
		}
	}
	filtered := p.noKid[:0:0]
	for _, e := range p.noKid {
		if e.Source.URL != url {
			filtered = append(filtered, e)
		}
	}
	p.noKid = filtered
}

func (p *Pool) clone() *Pool {
	byKid := make(map[string]Entry, len(p.byKid))
	for k, v := range p.byKid {
		byKid[k] = v
	}
	noKid := make([]Entry, len(p.noKid))
	copy(noKid, p.noKid)
	sources := make(map[string]*Source, len(p.sources))
	for u, s := range p.sources {
		sources[u] = &Source{URL: s.URL, LastFetch: s.LastFetch}
	}
	return &Pool{byKid: byKid, noKid: noKid, sources: sources}
}
