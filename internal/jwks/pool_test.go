package jwks

import (
	"testing"
	"time"

	"github.com/opencast/mediagate/internal/jwkkeys"
	"github.com/stretchr/testify/require"
)

func TestApplySourceUpdateAndCandidates(t *testing.T) {
	pool := NewPool([]string{"https://issuer.example/jwks"})
	key := mustES256Key(t)

	pool = pool.ApplySourceUpdate("https://issuer.example/jwks", []FetchedKey{{Kid: "k1", Key: key}}, time.Now())

	entries, matched, err := pool.Candidates("k1", jwkkeys.ES256)
	require.NoError(t, err)
	require.True(t, matched)
	require.Len(t, entries, 1)
	require.Equal(t, "k1", entries[0].Kid)
}

func TestCandidatesAlgoMismatchOnKidMatch(t *testing.T) {
	pool := NewPool([]string{"https://issuer.example/jwks"})
	key := mustES256Key(t)
	pool = pool.ApplySourceUpdate("https://issuer.example/jwks", []FetchedKey{{Kid: "k1", Key: key}}, time.Now())

	_, matched, err := pool.Candidates("k1", jwkkeys.ES384)
	require.True(t, matched)
	require.ErrorIs(t, err, ErrAlgoMismatch)
}

func TestCandidatesKidAbsentFallsBackToNoKid(t *testing.T) {
	pool := NewPool([]string{"https://issuer.example/jwks"})
	key := mustES256Key(t)
	pool = pool.ApplySourceUpdate("https://issuer.example/jwks", []FetchedKey{{Key: key}}, time.Now())

	entries, matched, err := pool.Candidates("unknown-kid", jwkkeys.ES256)
	require.NoError(t, err)
	require.False(t, matched)
	require.Len(t, entries, 1)
}

func TestCandidatesNoKidRequestedReturnsAllMatchingAlgo(t *testing.T) {
	pool := NewPool([]string{"https://a", "https://b"})
	k1 := mustES256Key(t)
	k2 := mustES256Key(t)
	pool = pool.ApplySourceUpdate("https://a", []FetchedKey{{Kid: "k1", Key: k1}}, time.Now())
	pool = pool.ApplySourceUpdate("https://b", []FetchedKey{{Key: k2}}, time.Now())

	entries, matched, err := pool.Candidates("", jwkkeys.ES256)
	require.NoError(t, err)
	require.False(t, matched)
	require.Len(t, entries, 2)
}

func TestApplySourceUpdateReplacesPriorEntriesForSameSource(t *testing.T) {
	pool := NewPool([]string{"https://a"})
	k1 := mustES256Key(t)
	k2 := mustES256Key(t)
	pool = pool.ApplySourceUpdate("https://a", []FetchedKey{{Kid: "old", Key: k1}}, time.Now())
	pool = pool.ApplySourceUpdate("https://a", []FetchedKey{{Kid: "new", Key: k2}}, time.Now())

	_, _, err := pool.Candidates("old", jwkkeys.ES256)
	entries, matched, err2 := pool.Candidates("new", jwkkeys.ES256)
	require.NoError(t, err)
	require.NoError(t, err2)
	require.True(t, matched)
	require.Len(t, entries, 1)

	// "old" kid should no longer resolve to a kid-matched entry; it falls
	// back to no-kid candidates (empty here), proving removal happened.
	entriesOld, matchedOld, _ := pool.Candidates("old", jwkkeys.ES256)
	require.False(t, matchedOld)
	require.Empty(t, entriesOld)
}

func TestDropSourceRemovesEntriesButStampsLastFetch(t *testing.T) {
	pool := NewPool([]string{"https://a"})
	k1 := mustES256Key(t)
	pool = pool.ApplySourceUpdate("https://a", []FetchedKey{{Kid: "k1", Key: k1}}, time.Now())

	before := pool
	droppedAt := time.Now()
	pool = pool.DropSource("https://a", droppedAt)

	entries, _, _ := pool.Candidates("k1", jwkkeys.ES256)
	require.Empty(t, entries)
	require.NotSame(t, before, pool)
	require.Equal(t, droppedAt, pool.sources["https://a"].LastFetch)
}

func TestEarliestExpiryIgnoresNeverFetchedSources(t *testing.T) {
	pool := NewPool([]string{"https://a", "https://b"})
	k1 := mustES256Key(t)
	pool = pool.ApplySourceUpdate("https://a", []FetchedKey{{Kid: "k1", Key: k1}}, time.Now())

	url, _, ok := pool.EarliestExpiry(10 * time.Minute)
	require.True(t, ok)
	require.Equal(t, "https://a", url)
}

func TestSourceURLsInvariantEveryEntryHasSourceInList(t *testing.T) {
	pool := NewPool([]string{"https://a"})
	k1 := mustES256Key(t)
	pool = pool.ApplySourceUpdate("https://a", []FetchedKey{{Kid: "k1", Key: k1}}, time.Now())

	entries, _, _ := pool.Candidates("k1", jwkkeys.ES256)
	require.Len(t, entries, 1)
	found := false
	for _, u := range pool.SourceURLs() {
		if u == entries[0].Source.URL {
			found = true
		}
	}
	require.True(t, found)
}
