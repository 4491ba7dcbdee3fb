package gateway

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/opencast/mediagate/internal/config"
	"github.com/opencast/mediagate/internal/jwks"
)

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func signES256(t *testing.T, priv *ecdsa.PrivateKey, header, payload map[string]any) string {
	t.Helper()
	hb, err := json.Marshal(header)
	require.NoError(t, err)
	pb, err := json.Marshal(payload)
	require.NoError(t, err)
	signedMessage := b64(hb) + "." + b64(pb)

	h := sha256.New()
	h.Write([]byte(signedMessage))
	r, s, err := ecdsa.Sign(rand.Reader, priv, h.Sum(nil))
	require.NoError(t, err)
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return signedMessage + "." + b64(sig)
}

func jwksServer(t *testing.T, pub *ecdsa.PublicKey, kid string) *httptest.Server {
	t.Helper()
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: pub, KeyID: kid, Algorithm: "ES256", Use: "sig"}}}
	body, err := json.Marshal(set)
	require.NoError(t, err)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
}

func future(d time.Duration) int64 { return time.Now().Add(d).Unix() }

func testServer(t *testing.T, mutate func(*config.Config)) (*Server, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	jwksSrv := jwksServer(t, &priv.PublicKey, "k1")
	t.Cleanup(jwksSrv.Close)

	m := jwks.NewManager([]string{jwksSrv.URL}, 10*time.Minute, time.Minute, http.DefaultClient, logr.Discard())
	require.NoError(t, m.Initialize(context.Background()))

	cfg := config.Default()
	cfg.Opencast.PathPrefixes = []string{"/static"}
	cfg.JWT.TrustedKeys = []string{jwksSrv.URL}
	if mutate != nil {
		mutate(&cfg)
	}

	return New(cfg, m, afero.NewMemMapFs(), logr.Discard()), priv
}

func tokenFor(t *testing.T, priv *ecdsa.PrivateKey, oc map[string][]string) string {
	return signES256(t, priv,
		map[string]any{"alg": "ES256", "kid": "k1"},
		map[string]any{"exp": future(time.Hour), "oc": oc},
	)
}

// Scenario 1: on_allow=empty, valid token for the requested event → 204, no
// CORS headers (Origin absent).
func TestScenarioAllowEmptyNoOrigin(t *testing.T) {
	s, priv := testServer(t, nil)
	tok := tokenFor(t, priv, map[string][]string{"e:EVT-1": {"read"}})

	req := httptest.NewRequest(http.MethodGet, "/static/mh_default_org/engage-player/EVT-1/chunk/foo.txt", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, w.Body.String())
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// Scenario 2: on_allow=x-accel-redirect:/protected → 204 + X-Accel-Redirect
// over the path without its prefix.
func TestScenarioAllowXAccelRedirect(t *testing.T) {
	s, priv := testServer(t, func(c *config.Config) { c.HTTP.OnAllow = "x-accel-redirect:/protected" })
	tok := tokenFor(t, priv, map[string][]string{"e:EVT-1": {"read"}})

	req := httptest.NewRequest(http.MethodGet, "/static/mh_default_org/engage-player/EVT-1/chunk/foo.txt", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "/protected/mh_default_org/engage-player/EVT-1/chunk/foo.txt", w.Header().Get("X-Accel-Redirect"))
}

// Scenario 3: token only grants a different event → deny shape.
func TestScenarioDenyWrongEvent(t *testing.T) {
	s, priv := testServer(t, nil)
	tok := tokenFor(t, priv, map[string][]string{"e:EVT-2": {"read"}})

	req := httptest.NewRequest(http.MethodGet, "/static/mh_default_org/engage-player/EVT-1/chunk/foo.txt", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

// Scenario 4: expired token (outside clock skew) → deny.
func TestScenarioDenyExpiredToken(t *testing.T) {
	s, priv := testServer(t, nil)
	tok := signES256(t, priv,
		map[string]any{"alg": "ES256", "kid": "k1"},
		map[string]any{"exp": future(-10 * time.Second), "oc": map[string][]string{"e:EVT-1": {"read"}}},
	)

	req := httptest.NewRequest(http.MethodGet, "/static/mh_default_org/engage-player/EVT-1/chunk/foo.txt", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

// Scenario 5: Range request against a served file → 206 partial content.
func TestScenarioRangeRequest(t *testing.T) {
	s, priv := testServer(t, func(c *config.Config) {
		c.HTTP.OnAllow = "file"
		c.Opencast.DownloadsPath = "/downloads"
	})
	require.NoError(t, afero.WriteFile(s.fs, "/downloads/mh_default_org/engage-player/EVT-1/chunk/foo.txt",
		[]byte("0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abcdefghijklmnopqrstuvwxyzAB"), 0o644))
	tok := tokenFor(t, priv, map[string][]string{"e:EVT-1": {"read"}})

	req := httptest.NewRequest(http.MethodGet, "/static/mh_default_org/engage-player/EVT-1/chunk/foo.txt", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Range", "bytes=0-9")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusPartialContent, w.Code)
	require.Equal(t, "bytes 0-9/100", w.Header().Get("Content-Range"))
	require.Equal(t, "10", w.Header().Get("Content-Length"))
	require.Equal(t, "0123456789", w.Body.String())
}

// Scenario 6: If-None-Match against the current ETag → 304.
func TestScenarioConditionalGetNotModified(t *testing.T) {
	s, priv := testServer(t, func(c *config.Config) {
		c.HTTP.OnAllow = "file"
		c.Opencast.DownloadsPath = "/downloads"
	})
	require.NoError(t, afero.WriteFile(s.fs, "/downloads/mh_default_org/engage-player/EVT-1/chunk/foo.txt", []byte("hello"), 0o644))
	tok := tokenFor(t, priv, map[string][]string{"e:EVT-1": {"read"}})

	reqPath := "/static/mh_default_org/engage-player/EVT-1/chunk/foo.txt"
	req1 := httptest.NewRequest(http.MethodGet, reqPath, nil)
	req1.Header.Set("Authorization", "Bearer "+tok)
	w1 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w1, req1)
	require.Equal(t, http.StatusOK, w1.Code)
	etag := w1.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req2 := httptest.NewRequest(http.MethodGet, reqPath, nil)
	req2.Header.Set("Authorization", "Bearer "+tok)
	req2.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w2, req2)
	require.Equal(t, http.StatusNotModified, w2.Code)
	require.Equal(t, etag, w2.Header().Get("ETag"))
}

// Scenario 7: OPTIONS preflight with a whitelisted origin → 204 with the
// full CORS set and Access-Control-Max-Age: 86400.
func TestScenarioPreflight(t *testing.T) {
	s, _ := testServer(t, func(c *config.Config) {
		c.HTTP.CORSAllowedOrigins = []string{"https://app.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/static/mh_default_org/engage-player/EVT-1/chunk/foo.txt", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := testServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/static/mh_default_org/engage-player/EVT-1/chunk/foo.txt", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestBadPath(t *testing.T) {
	s, _ := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpointServed(t *testing.T) {
	s, _ := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
