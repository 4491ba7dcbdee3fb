// Package jwt splits, decodes, and verifies a bearer token against the
// currently trusted key pool, then projects its claims into an
// authorization grant.
package jwt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/opencast/mediagate/internal/jwkkeys"
	"github.com/opencast/mediagate/internal/jwks"
)

// Decode failure modes, one per row of the token decoder's error taxonomy.
var (
	ErrInvalidJWT       = errors.New("jwt: not a well-formed token")
	ErrInvalidJSON      = errors.New("jwt: header or payload is malformed JSON")
	ErrUnsupportedAlg   = errors.New("jwt: unsupported algorithm")
	ErrNoSuitableKey    = errors.New("jwt: no key was attempted")
	ErrInvalidSignature = errors.New("jwt: signature verification failed")
	ErrExpMissing       = errors.New("jwt: exp claim missing")
	ErrExpired          = errors.New("jwt: token expired")
	ErrNotValidYet      = errors.New("jwt: token not valid yet")
)

// Header is a token's JOSE header.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
}

// Payload is a token's claim set. Unknown fields are ignored, keeping the
// decoder resilient to issuer extensions.
type Payload struct {
	Exp   *int64              `json:"exp,omitempty"`
	Nbf   *int64              `json:"nbf,omitempty"`
	Roles []string            `json:"roles,omitempty"`
	Oc    map[string][]string `json:"oc,omitempty"`
}

// TokenInfo is the authorization grant produced by a successful decode.
// Produced fresh per request; consumed once.
type TokenInfo struct {
	IsAdmin        bool
	ReadableEvents map[string]struct{}
}

// CanRead reports whether eventID is among the token's readable events.
func (t TokenInfo) CanRead(eventID string) bool {
	_, ok := t.ReadableEvents[eventID]
	return ok
}

func parseAlgorithm(alg string) (jwkkeys.Algorithm, bool) {
	switch alg {
	case string(jwkkeys.ES256):
		return jwkkeys.ES256, true
	case string(jwkkeys.ES384):
		return jwkkeys.ES384, true
	case string(jwkkeys.EdDSA):
		return jwkkeys.EdDSA, true
	default:
		return "", false
	}
}

func b64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// Decode implements the fast/refresh/backup-pass verification algorithm
// against manager's key pool, then checks time-based claims and projects
// the claim set into a TokenInfo.
func Decode(ctx context.Context, raw string, manager *jwks.Manager, clockSkew time.Duration, log logr.Logger) (TokenInfo, error) {
	segs := strings.Split(raw, ".")
	if len(segs) != 3 {
		return TokenInfo{}, ErrInvalidJWT
	}
	headerB64, payloadB64, sigB64 := segs[0], segs[1], segs[2]

	headerJSON, err := b64Decode(headerB64)
	if err != nil {
		return TokenInfo{}, ErrInvalidJWT
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return TokenInfo{}, ErrInvalidJSON
	}

	payloadJSON, err := b64Decode(payloadB64)
	if err != nil {
		return TokenInfo{}, ErrInvalidJWT
	}
	var payload Payload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return TokenInfo{}, ErrInvalidJSON
	}

	sig, err := b64Decode(sigB64)
	if err != nil {
		return TokenInfo{}, ErrInvalidJWT
	}

	algo, ok := parseAlgorithm(header.Alg)
	if !ok {
		return TokenInfo{}, ErrUnsupportedAlg
	}

	signedMessage := []byte(headerB64 + "." + payloadB64)

	verified, attempted, err := verifyToken(ctx, manager, header.Kid, algo, signedMessage, sig)
	if err != nil {
		return TokenInfo{}, err
	}
	if !verified {
		if attempted {
			return TokenInfo{}, ErrInvalidSignature
		}
		return TokenInfo{}, ErrNoSuitableKey
	}

	now := time.Now().Unix()
	skewSec := int64(clockSkew.Seconds())
	if payload.Exp == nil {
		return TokenInfo{}, ErrExpMissing
	}
	if *payload.Exp+skewSec < now {
		return TokenInfo{}, ErrExpired
	}
	if payload.Nbf != nil && *payload.Nbf > now+skewSec {
		return TokenInfo{}, ErrNotValidYet
	}

	return projectClaims(payload, log), nil
}

// verifyToken runs the fast/refresh/backup-pass algorithm and returns
// whether a verifying key was found, and whether any key was attempted at
// all (distinguishing NoSuitableKey from InvalidSignature at the caller).
func verifyToken(ctx context.Context, manager *jwks.Manager, kid string, algo jwkkeys.Algorithm, msg, sig []byte) (verified, attempted bool, err error) {
	pool := manager.Snapshot()

	v, att, stale, kidMatched, cerr := verifyFastPass(pool, manager.CacheDuration(), kid, algo, msg, sig)
	if cerr != nil {
		return false, att, cerr
	}
	if v {
		return true, true, nil
	}
	if kidMatched && att {
		// The kid-matched candidate was attempted and failed: no amount of
		// refreshing other sources changes that outcome.
		return false, true, nil
	}
	attempted = att

	allSources := pool.SourceURLs()
	staleList := setKeys(stale)

	if len(staleList) > 0 {
		_ = manager.RefreshMany(ctx, staleList)
		pool = manager.Snapshot()
		v, att, kidMatched2, cerr := verifyRestricted(pool, kid, algo, msg, sig, stale)
		if cerr != nil {
			return false, attempted || att, cerr
		}
		attempted = attempted || att
		if v {
			return true, true, nil
		}
		if kidMatched2 && att {
			return false, true, nil
		}
	}

	if len(staleList) < len(allSources) {
		remaining := subtract(allSources, stale)
		if manager.BackupRefresh(ctx, remaining) {
			pool = manager.Snapshot()
			remainingSet := toSet(remaining)
			v, att, kidMatched3, cerr := verifyRestricted(pool, kid, algo, msg, sig, remainingSet)
			if cerr != nil {
				return false, attempted || att, cerr
			}
			attempted = attempted || att
			if v {
				return true, true, nil
			}
			if kidMatched3 && att {
				return false, true, nil
			}
		}
	}

	return false, attempted, nil
}

func verifyFastPass(pool *jwks.Pool, cacheDuration time.Duration, kid string, algo jwkkeys.Algorithm, msg, sig []byte) (verified, attempted bool, stale map[string]bool, kidMatched bool, err error) {
	entries, kidMatched, cerr := pool.Candidates(kid, algo)
	if cerr != nil {
		return false, false, nil, kidMatched, cerr
	}
	stale = map[string]bool{}
	now := time.Now()
	for _, e := range entries {
		if e.Source.Stale(now, cacheDuration) {
			stale[e.Source.URL] = true
			continue
		}
		attempted = true
		if e.Key.Verify(msg, sig) {
			return true, attempted, stale, kidMatched, nil
		}
	}
	return false, attempted, stale, kidMatched, nil
}

func verifyRestricted(pool *jwks.Pool, kid string, algo jwkkeys.Algorithm, msg, sig []byte, urlSet map[string]bool) (verified, attempted, kidMatched bool, err error) {
	entries, kidMatched, cerr := pool.Candidates(kid, algo)
	if cerr != nil {
		return false, false, kidMatched, cerr
	}
	for _, e := range entries {
		if !urlSet[e.Source.URL] {
			continue
		}
		attempted = true
		if e.Key.Verify(msg, sig) {
			return true, attempted, kidMatched, nil
		}
	}
	return false, attempted, kidMatched, nil
}

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func subtract(all []string, minus map[string]bool) []string {
	out := make([]string, 0, len(all))
	for _, u := range all {
		if !minus[u] {
			out = append(out, u)
		}
	}
	return out
}

func toSet(urls []string) map[string]bool {
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		out[u] = true
	}
	return out
}

func projectClaims(p Payload, log logr.Logger) TokenInfo {
	info := TokenInfo{ReadableEvents: map[string]struct{}{}}
	for _, r := range p.Roles {
		if r == "ROLE_ADMIN" {
			info.IsAdmin = true
		}
	}
	for key, actions := range p.Oc {
		kind, id, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		switch kind {
		case "e":
			if containsStr(actions, "read") {
				info.ReadableEvents[id] = struct{}{}
			}
		case "s", "p":
			// Recognized but not modeled by this gateway; ignored.
		default:
			log.V(1).Info("ignoring unknown oc claim kind", "kind", kind)
		}
	}
	return info
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
