package jwks

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/opencast/mediagate/internal/jwkkeys"
)

func genECDSA(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return priv
}

func mustES256Key(t *testing.T) jwkkeys.Key {
	t.Helper()
	priv := genECDSA(t)
	k, err := jwkkeys.NewES256(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func mustES256Pair(t *testing.T) (*ecdsa.PrivateKey, jwkkeys.Key) {
	t.Helper()
	priv := genECDSA(t)
	k, err := jwkkeys.NewES256(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	return priv, k
}
