package jwks

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-logr/logr"

	"github.com/opencast/mediagate/internal/metrics"
)

// BackupRefreshRateLimit bounds how often an unverifiable token is allowed
// to trigger an out-of-band revalidation of every configured key source.
const BackupRefreshRateLimit = 15 * time.Second

// Manager orchestrates fetch, per-source single-flight refresh, background
// refresh-ahead-of-expiry, and rate-limited backup refresh over a
// lock-free-readable Pool snapshot.
type Manager struct {
	client        HTTPClient
	urls          []string
	cacheDuration time.Duration
	leadTime      time.Duration
	log           logr.Logger

	pool atomic.Pointer[Pool]

	poolMu sync.Mutex // serializes ApplySourceUpdate/DropSource swaps

	semaphores map[string]chan struct{} // one 1-buffered chan per URL

	backupMu       sync.Mutex
	backupLast     time.Time     // when the most recent backup refresh completed
	backupInFlight chan struct{} // non-nil and open while one is running; closed on completion
}

// NewManager builds a Manager with an empty (all-stale) pool pre-registered
// for every url. Call Initialize to perform the first synchronous fetch.
func NewManager(urls []string, cacheDuration, leadTime time.Duration, client HTTPClient, log logr.Logger) *Manager {
	m := &Manager{
		client:        client,
		urls:          append([]string(nil), urls...),
		cacheDuration: cacheDuration,
		leadTime:      leadTime,
		log:           log,
		semaphores:    make(map[string]chan struct{}, len(urls)),
	}
	for _, u := range urls {
		m.semaphores[u] = make(chan struct{}, 1)
	}
	m.pool.Store(NewPool(urls))
	return m
}

// Snapshot returns the current pool, a lock-free read.
func (m *Manager) Snapshot() *Pool { return m.pool.Load() }

// CacheDuration returns the configured source staleness threshold.
func (m *Manager) CacheDuration() time.Duration { return m.cacheDuration }

// Initialize fetches every configured source synchronously and logs the
// resulting key count.
func (m *Manager) Initialize(ctx context.Context) error {
	err := m.RefreshMany(ctx, m.urls)
	pool := m.Snapshot()
	m.log.Info("initial key fetch complete", "sources", len(m.urls), "keys", len(pool.byKid)+len(pool.noKid))
	return err
}

// BackgroundLoop runs until ctx is cancelled: it sleeps until lead time
// before the earliest source expiry, then refreshes every source due
// within leadTime+500ms of that threshold.
func (m *Manager) BackgroundLoop(ctx context.Context) {
	const slack = 500 * time.Millisecond
	for {
		pool := m.Snapshot()
		_, expiry, ok := pool.EarliestExpiry(m.cacheDuration)

		var wait time.Duration
		if !ok {
			wait = m.cacheDuration
		} else {
			wait = time.Until(expiry.Add(-m.leadTime))
			if wait < 0 {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		due := m.Snapshot().URLsExpiringWithin(m.cacheDuration, m.leadTime+slack, time.Now())
		if len(due) > 0 {
			if err := m.RefreshMany(ctx, due); err != nil {
				m.log.V(1).Info("background refresh encountered errors", "err", err)
			}
		}
	}
}

// Refresh enforces per-URL single-flight: if no fetch for url is in
// flight, this call becomes the fetcher and publishes the result; if one
// is already in flight, this call blocks until it completes and then
// returns without fetching itself — both paths return only after the pool
// reflects the outcome.
func (m *Manager) Refresh(ctx context.Context, url string) error {
	sem, ok := m.semaphores[url]
	if !ok {
		return nil // not a configured source; nothing to do
	}

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
		return m.doFetch(ctx, url)
	default:
		// Someone else is fetching. Wait for their slot to free, which
		// only happens after they've published, then release it again
		// without fetching ourselves.
		select {
		case sem <- struct{}{}:
			<-sem
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) doFetch(ctx context.Context, url string) error {
	fetched, err := retry.DoWithData(
		func() ([]FetchedKey, error) { return Fetch(ctx, m.client, url, m.log) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)

	now := time.Now()
	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	current := m.pool.Load()

	if err != nil {
		m.log.Info("key source refresh failed", "url", url, "err", err)
		m.pool.Store(current.DropSource(url, now))
		metrics.KeyFetches.WithLabelValues(url, "error").Inc()
		return err
	}

	m.pool.Store(current.ApplySourceUpdate(url, fetched, now))
	m.log.V(1).Info("key source refreshed", "url", url, "keys", len(fetched))
	metrics.KeyFetches.WithLabelValues(url, "ok").Inc()
	return nil
}

// RefreshMany runs Refresh for every url concurrently and waits for all to
// complete, returning the first error encountered (if any).
func (m *Manager) RefreshMany(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	errs := make([]error, len(urls))
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			errs[i] = m.Refresh(ctx, u)
		}(i, u)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// BackupRefresh revalidates every url in urls, but at most once per
// BackupRefreshRateLimit. A caller that arrives while a refresh is already
// in flight waits for it and shares its outcome (true) rather than being
// told no refresh happened on its behalf; only a caller that finds no
// refresh running and the rate limit not yet elapsed is refused (false).
func (m *Manager) BackupRefresh(ctx context.Context, urls []string) bool {
	ran := m.backupRefresh(ctx, urls)
	metrics.BackupRefreshes.WithLabelValues(strconv.FormatBool(ran)).Inc()
	return ran
}

func (m *Manager) backupRefresh(ctx context.Context, urls []string) bool {
	m.backupMu.Lock()
	if inFlight := m.backupInFlight; inFlight != nil {
		m.backupMu.Unlock()
		select {
		case <-inFlight:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if time.Since(m.backupLast) < BackupRefreshRateLimit {
		m.backupMu.Unlock()
		return false
	}
	done := make(chan struct{})
	m.backupInFlight = done
	m.backupMu.Unlock()

	_ = m.RefreshMany(ctx, urls)

	m.backupMu.Lock()
	m.backupLast = time.Now()
	m.backupInFlight = nil
	m.backupMu.Unlock()
	close(done)

	return true
}
