package jwks

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/opencast/mediagate/internal/jwkkeys"
)

// countingClient wraps a real httptest server transport but counts calls,
// optionally blocking the first call until release is closed so concurrent
// Refresh calls can be made to race deterministically.
type countingClient struct {
	inner   HTTPClient
	calls   int32
	block   chan struct{}
	release chan struct{}
}

func (c *countingClient) Do(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if n == 1 && c.block != nil {
		close(c.block)
		<-c.release
	}
	return c.inner.Do(req)
}

func TestRefreshSingleFlight(t *testing.T) {
	priv, _ := mustES256Pair(t)
	srv := testJWKSServer(t, jose.JSONWebKey{Key: &priv.PublicKey, KeyID: "k1", Algorithm: "ES256", Use: "sig"})
	defer srv.Close()

	client := &countingClient{inner: http.DefaultClient, block: make(chan struct{}), release: make(chan struct{})}
	m := NewManager([]string{srv.URL}, 10*time.Minute, 3*time.Second, client, logr.Discard())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = m.Refresh(context.Background(), srv.URL)
	}()
	go func() {
		defer wg.Done()
		<-client.block // wait until the first call has started
		_ = m.Refresh(context.Background(), srv.URL)
	}()

	time.AfterFunc(50*time.Millisecond, func() { close(client.release) })
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&client.calls))

	pool := m.Snapshot()
	entries, _, err := pool.Candidates("k1", jwkkeys.ES256)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestBackupRefreshRateLimited(t *testing.T) {
	priv, _ := mustES256Pair(t)
	srv := testJWKSServer(t, jose.JSONWebKey{Key: &priv.PublicKey, KeyID: "k1", Algorithm: "ES256", Use: "sig"})
	defer srv.Close()

	m := NewManager([]string{srv.URL}, 10*time.Minute, 3*time.Second, http.DefaultClient, logr.Discard())

	first := m.BackupRefresh(context.Background(), []string{srv.URL})
	require.True(t, first)

	second := m.BackupRefresh(context.Background(), []string{srv.URL})
	require.False(t, second, "a second backup refresh within the rate-limit window must be suppressed")
}

func TestBackupRefreshConcurrentCallersShareOutcome(t *testing.T) {
	priv, _ := mustES256Pair(t)
	srv := testJWKSServer(t, jose.JSONWebKey{Key: &priv.PublicKey, KeyID: "k1", Algorithm: "ES256", Use: "sig"})
	defer srv.Close()

	m := NewManager([]string{srv.URL}, 10*time.Minute, 3*time.Second, http.DefaultClient, logr.Discard())

	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.BackupRefresh(context.Background(), []string{srv.URL})
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		require.True(t, r, "caller %d must observe the same outcome as whichever caller actually performed the refresh", i)
	}
}

func TestInitializePopulatesPool(t *testing.T) {
	priv, _ := mustES256Pair(t)
	srv := testJWKSServer(t, jose.JSONWebKey{Key: &priv.PublicKey, KeyID: "k1", Algorithm: "ES256", Use: "sig"})
	defer srv.Close()

	m := NewManager([]string{srv.URL}, 10*time.Minute, 3*time.Second, http.DefaultClient, logr.Discard())
	require.NoError(t, m.Initialize(context.Background()))

	entries, _, err := m.Snapshot().Candidates("k1", jwkkeys.ES256)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
