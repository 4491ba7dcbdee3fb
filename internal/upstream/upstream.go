// Package upstream probes the configured Opencast host as a fallback when
// the local authorization decision denies a request.
package upstream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
)

// Mode selects how the gateway probes the upstream host.
type Mode string

const (
	ModeNone Mode = "none"
	ModeHead Mode = "head"
	ModeGet  Mode = "get"
)

// ProbeTimeout bounds the upstream round-trip.
const ProbeTimeout = 3 * time.Second

// Outcome classifies the probe's result for the dispatcher.
type Outcome int

const (
	// OutcomeDeny leaves the original denial in place.
	OutcomeDeny Outcome = iota
	// OutcomeAllow overrides the denial: upstream answered 2xx.
	OutcomeAllow
	// OutcomeNotFound: upstream answered 404; the caller should respond 404.
	OutcomeNotFound
	// OutcomeBadGateway: the upstream request failed at the network level.
	OutcomeBadGateway
	// OutcomeGatewayTimeout: the upstream request exceeded ProbeTimeout.
	OutcomeGatewayTimeout
)

// Result carries the probe's outcome plus any WWW-Authenticate header value
// observed on a 401 response, which is passed through on the gateway's
// deny response for compatibility with browser basic-auth fallback flows.
type Result struct {
	Outcome         Outcome
	WWWAuthenticate string
}

// Probe builds a request to host+originalPathAndQuery using mode's method,
// copies every header from original, and classifies the response.
func Probe(ctx context.Context, client *http.Client, mode Mode, host, originalPathAndQuery string, original *http.Request, log logr.Logger) Result {
	method := http.MethodHead
	if mode == ModeGet {
		method = http.MethodGet
	}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, host+originalPathAndQuery, nil)
	if err != nil {
		log.Info("upstream probe request build failed", "err", err)
		return Result{Outcome: OutcomeBadGateway}
	}
	for name, values := range original.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Info("upstream probe timed out", "host", host)
			return Result{Outcome: OutcomeGatewayTimeout}
		}
		log.Info("upstream probe failed", "host", host, "err", err)
		return Result{Outcome: OutcomeBadGateway}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Outcome: OutcomeAllow}
	case resp.StatusCode == http.StatusNotFound:
		return Result{Outcome: OutcomeNotFound}
	case resp.StatusCode == http.StatusUnauthorized:
		return Result{Outcome: OutcomeDeny, WWWAuthenticate: resp.Header.Get("WWW-Authenticate")}
	default:
		return Result{Outcome: OutcomeDeny}
	}
}
