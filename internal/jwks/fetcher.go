// Package jwks fetches remote key-set documents, interprets their key
// descriptors into verification keys, and orchestrates the concurrent,
// single-flight, background-refreshed pool of trusted keys used to verify
// incoming tokens.
package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-logr/logr"

	"github.com/opencast/mediagate/internal/jwkkeys"
)

// FetchedKey pairs a verification key with its optional key id, as produced
// by interpreting one descriptor from a fetched key-set document.
type FetchedKey struct {
	Kid string // empty when the descriptor carried no "kid"
	Key jwkkeys.Key
}

// HTTPClient is the minimal surface this package needs from an HTTP client;
// satisfied by *http.Client and mockable in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrFetch classifies network/transport/non-2xx failures; ErrParse
// classifies a response body that isn't a valid key-set document.
var (
	ErrFetch = errors.New("jwks: fetch failed")
	ErrParse = errors.New("jwks: parse failed")
)

// Fetch retrieves and interprets the key-set document at url. Descriptors
// this gateway doesn't support (unsupported kty/crv, use != "sig", an alg
// that disagrees with the descriptor's key shape) are logged and skipped,
// not treated as a fetch failure.
func Fetch(ctx context.Context, client HTTPClient, url string, log logr.Logger) ([]FetchedKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	out := make([]FetchedKey, 0, len(set.Keys))
	for _, jwk := range set.Keys {
		fk, ok := interpretDescriptor(jwk, log)
		if ok {
			out = append(out, fk)
		}
	}
	return out, nil
}

func interpretDescriptor(jwk jose.JSONWebKey, log logr.Logger) (FetchedKey, bool) {
	if jwk.Use != "" && jwk.Use != "sig" {
		log.V(1).Info("skipping key descriptor: use is not sig", "kid", jwk.KeyID, "use", jwk.Use)
		return FetchedKey{}, false
	}

	switch pub := jwk.Key.(type) {
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P256():
			if jwk.Algorithm != "" && jwk.Algorithm != string(jwkkeys.ES256) {
				log.V(1).Info("skipping key descriptor: alg disagrees with P-256 curve", "kid", jwk.KeyID, "alg", jwk.Algorithm)
				return FetchedKey{}, false
			}
			key, err := jwkkeys.NewES256(pub)
			if err != nil {
				log.V(1).Info("skipping key descriptor: invalid ES256 key", "kid", jwk.KeyID, "err", err)
				return FetchedKey{}, false
			}
			return FetchedKey{Kid: jwk.KeyID, Key: key}, true
		case elliptic.P384():
			if jwk.Algorithm != "" && jwk.Algorithm != string(jwkkeys.ES384) {
				log.V(1).Info("skipping key descriptor: alg disagrees with P-384 curve", "kid", jwk.KeyID, "alg", jwk.Algorithm)
				return FetchedKey{}, false
			}
			key, err := jwkkeys.NewES384(pub)
			if err != nil {
				log.V(1).Info("skipping key descriptor: invalid ES384 key", "kid", jwk.KeyID, "err", err)
				return FetchedKey{}, false
			}
			return FetchedKey{Kid: jwk.KeyID, Key: key}, true
		default:
			log.V(1).Info("skipping key descriptor: unsupported EC curve", "kid", jwk.KeyID)
			return FetchedKey{}, false
		}
	case ed25519.PublicKey:
		if jwk.Algorithm != "" && jwk.Algorithm != string(jwkkeys.EdDSA) {
			log.V(1).Info("skipping key descriptor: alg disagrees with Ed25519 key", "kid", jwk.KeyID, "alg", jwk.Algorithm)
			return FetchedKey{}, false
		}
		key, err := jwkkeys.NewEdDSA(pub)
		if err != nil {
			log.V(1).Info("skipping key descriptor: invalid EdDSA key", "kid", jwk.KeyID, "err", err)
			return FetchedKey{}, false
		}
		return FetchedKey{Kid: jwk.KeyID, Key: key}, true
	default:
		log.V(1).Info("skipping key descriptor: unsupported kty", "kid", jwk.KeyID)
		return FetchedKey{}, false
	}
}
