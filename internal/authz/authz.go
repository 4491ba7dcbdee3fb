// Package authz composes a decoded token with a request's path to produce
// an allow/deny decision, racing token verification against a timeout.
package authz

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/opencast/mediagate/internal/jwks"
	"github.com/opencast/mediagate/internal/jwt"
	"github.com/opencast/mediagate/internal/pathparts"
)

// VerifyTimeout bounds how long token decode/verification may run before
// the decider gives up and denies.
const VerifyTimeout = 2500 * time.Millisecond

// Decision is the outcome of Decide.
type Decision struct {
	Allow bool
	// TimedOut is set when the verification timeout won the race; the
	// dispatcher counts this distinctly from an ordinary deny.
	TimedOut bool
}

// Decide evaluates whether the caller may access parts.EventID(), given the
// raw token string (absent when hasToken is false).
func Decide(ctx context.Context, parts pathparts.Parts, rawToken string, hasToken bool, manager *jwks.Manager, clockSkew time.Duration, log logr.Logger) Decision {
	if !hasToken {
		log.V(2).Info("no token present", "path", parts.Full())
		return Decision{Allow: false}
	}

	verifyCtx, cancel := context.WithTimeout(ctx, VerifyTimeout)
	defer cancel()

	type result struct {
		info jwt.TokenInfo
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := jwt.Decode(verifyCtx, rawToken, manager, clockSkew, log)
		done <- result{info, err}
	}()

	select {
	case <-verifyCtx.Done():
		log.Info("token verification timed out", "path", parts.Full())
		return Decision{Allow: false, TimedOut: true}
	case r := <-done:
		if r.err != nil {
			log.V(1).Info("token rejected", "path", parts.Full(), "reason", r.err)
			return Decision{Allow: false}
		}
		if r.info.IsAdmin {
			return Decision{Allow: true}
		}
		if r.info.CanRead(parts.EventID()) {
			return Decision{Allow: true}
		}
		return Decision{Allow: false}
	}
}
