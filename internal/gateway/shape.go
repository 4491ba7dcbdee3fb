package gateway

import (
	"net/http"
	"strings"
)

// shape is a parsed http.on_allow / http.on_deny configuration value.
type shape struct {
	kind   shapeKind
	target string // url-path prefix, for kind == shapeRedirect
}

type shapeKind int

const (
	shapeEmpty shapeKind = iota
	shapeFile
	shapeRedirect
)

func parseAllowShape(raw string) shape {
	if raw == "file" {
		return shape{kind: shapeFile}
	}
	if target, ok := strings.CutPrefix(raw, "x-accel-redirect:"); ok {
		return shape{kind: shapeRedirect, target: target}
	}
	return shape{kind: shapeEmpty}
}

func parseDenyShape(raw string) shape {
	if target, ok := strings.CutPrefix(raw, "x-accel-redirect:"); ok {
		return shape{kind: shapeRedirect, target: target}
	}
	return shape{kind: shapeEmpty}
}

// writeDeny answers a denied request per the deny shape: empty body with
// 403, or a 204 plus an X-Accel-Redirect header over the full request path.
func writeDeny(w http.ResponseWriter, sh shape, fullPath string) {
	if sh.kind == shapeRedirect {
		w.Header().Set("X-Accel-Redirect", strings.TrimSuffix(sh.target, "/")+fullPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

// writeAllowEmptyOrRedirect answers an allowed request for the "empty" or
// "x-accel-redirect" allow shapes. It must not be called for shapeFile,
// which streams a body via the file responder instead.
func writeAllowEmptyOrRedirect(w http.ResponseWriter, sh shape, withoutPrefix string) {
	if sh.kind == shapeRedirect {
		w.Header().Set("X-Accel-Redirect", strings.TrimSuffix(sh.target, "/")+withoutPrefix)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
