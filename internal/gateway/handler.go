package gateway

import (
	"net/http"
	"time"

	"github.com/opencast/mediagate/internal/authz"
	"github.com/opencast/mediagate/internal/fileserver"
	"github.com/opencast/mediagate/internal/metrics"
	"github.com/opencast/mediagate/internal/pathparts"
	"github.com/opencast/mediagate/internal/tokensource"
	"github.com/opencast/mediagate/internal/upstream"
)

// dispatch implements the per-request state machine: METHOD_CHECK →
// PATH_PARSE → EXTRACT_TOKEN → AUTHORIZE → (ALLOW|DENY) → RESPOND.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.RequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	if r.Method == http.MethodOptions {
		s.handlePreflight(w, r)
		outcome = "preflight"
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		outcome = "method_not_allowed"
		return
	}

	parts, err := pathparts.Parse(r.URL.Path, s.cfg.Opencast.PathPrefixes)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		outcome = "bad_path"
		return
	}

	rawToken, hasToken := tokensource.Extract(r, s.sources, s.log)

	decision := authz.Decide(r.Context(), parts, rawToken, hasToken, s.manager, s.cfg.JWT.AllowedClockSkew.Duration, s.log)
	result := "deny"
	if decision.Allow {
		result = "allow"
	}
	if decision.TimedOut {
		result = "timeout"
	}
	metrics.AuthzDecisions.WithLabelValues(result).Inc()

	allow := decision.Allow
	fallbackMode := upstream.Mode(s.cfg.Opencast.Fallback)
	if !allow && fallbackMode != "" && fallbackMode != upstream.ModeNone && s.cfg.Opencast.Host != "" {
		probe := upstream.Probe(r.Context(), s.upclient, fallbackMode, s.cfg.Opencast.Host, r.URL.RequestURI(), r, s.log)
		switch probe.Outcome {
		case upstream.OutcomeAllow:
			allow = true
		case upstream.OutcomeNotFound:
			http.Error(w, "not found", http.StatusNotFound)
			outcome = "not_found"
			return
		case upstream.OutcomeBadGateway:
			http.Error(w, "bad gateway", http.StatusBadGateway)
			outcome = "bad_gateway"
			return
		case upstream.OutcomeGatewayTimeout:
			http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
			outcome = "gateway_timeout"
			return
		default:
			if probe.WWWAuthenticate != "" {
				w.Header().Set("WWW-Authenticate", probe.WWWAuthenticate)
			}
		}
	}

	s.applyCORS(w, r)

	if !allow {
		writeDeny(w, s.denyShape, parts.Full())
		outcome = "deny"
		return
	}

	if s.allowShape.kind == shapeFile {
		res := fileserver.Serve(s.fs, s.cfg.Opencast.DownloadsPath, parts.Org(), parts.Channel(), parts.EventID(), parts.Suffix(), w, r, s.log)
		metrics.FileResponses.WithLabelValues(fileStatusLabel(res.Status)).Inc()
		outcome = "file:" + fileStatusLabel(res.Status)
		return
	}

	writeAllowEmptyOrRedirect(w, s.allowShape, parts.WithoutPrefix())
	outcome = "allow"
}

func fileStatusLabel(s fileserver.Status) string {
	switch s {
	case fileserver.StatusOK:
		return "ok"
	case fileserver.StatusNotModified:
		return "not_modified"
	case fileserver.StatusPartial:
		return "partial"
	case fileserver.StatusBadRequest:
		return "bad_request"
	case fileserver.StatusNotFound:
		return "not_found"
	case fileserver.StatusRangeNotSatisfiable:
		return "range_not_satisfiable"
	case fileserver.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}
