// Package fileserver serves a single file from a canonicalized,
// containment-checked path under a downloads root, honoring Range and
// conditional-GET headers.
package fileserver

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
)

// Status classifies the outcome for the caller (the dispatcher maps these
// to metrics labels); Serve writes the response itself and returns
// Status/Err for logging/metrics at the call site.
type Status int

const (
	StatusOK Status = iota
	StatusNotModified
	StatusPartial
	StatusBadRequest
	StatusNotFound
	StatusRangeNotSatisfiable
	StatusServiceUnavailable
	StatusInternalError
)

// Result is returned by Serve for logging/metrics at the call site.
type Result struct {
	Status Status
	Err    error
}

// Serve canonicalizes downloadsRoot/org/channel/eventID/suffix, enforces
// that it stays within downloadsRoot/org/channel/eventID, and answers w
// per the Range/conditional-GET/streaming algorithm. download=1 in the
// request's query adds Content-Disposition: attachment.
func Serve(fs afero.Fs, downloadsRoot, org, channel, eventID, suffix string, w http.ResponseWriter, r *http.Request, log logr.Logger) Result {
	eventDir := filepath.Join(downloadsRoot, org, channel, eventID)
	target := filepath.Join(downloadsRoot, org, channel, eventID, suffix)

	// A lexical filepath.Clean only catches "../.." traversal; it never
	// resolves symlinks, so a symlink planted anywhere under eventDir
	// (including downloadsRoot itself) could point outside the downloads
	// tree and still pass a purely lexical containment check. Resolve both
	// sides against the real filesystem before comparing.
	canonicalEventDir, err := canonicalize(fs, eventDir)
	if err != nil {
		return handleIOError(w, err, log)
	}
	canonical, err := canonicalize(fs, target)
	if err != nil {
		return handleIOError(w, err, log)
	}
	if !withinDir(canonicalEventDir, canonical) {
		log.Info("directory traversal attempt rejected", "target", target)
		http.Error(w, "bad request", http.StatusBadRequest)
		return Result{Status: StatusBadRequest}
	}

	f, err := fs.Open(canonical)
	if err != nil {
		return handleIOError(w, err, log)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return handleIOError(w, err, log)
	}
	if fi.IsDir() {
		return handleIOError(w, errIsADirectory, log)
	}

	etag := computeETag(fi)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Last-Modified", fi.ModTime().UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", etag)
	if ct := mime.TypeByExtension(filepath.Ext(canonical)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", "attachment")
	}

	if isUnmodified(r, etag, fi.ModTime()) {
		w.WriteHeader(http.StatusNotModified)
		return Result{Status: StatusNotModified}
	}

	size := fi.Size()
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		return serveRange(f, size, rangeHeader, w, r, log)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		if _, err := io.Copy(w, f); err != nil {
			logStreamError(err, log)
		}
	}
	return Result{Status: StatusOK}
}

// canonicalize resolves path to its real, symlink-free form when fs is
// backed by the real filesystem; afero's in-memory/test filesystems have no
// symlinks to resolve, so a lexical Clean is already canonical for them.
func canonicalize(fs afero.Fs, path string) (string, error) {
	if _, ok := fs.(*afero.OsFs); ok {
		return filepath.EvalSymlinks(path)
	}
	return filepath.Clean(path), nil
}

func withinDir(dir, target string) bool {
	dir = filepath.Clean(dir)
	if target == dir {
		return true
	}
	return strings.HasPrefix(target, dir+string(filepath.Separator))
}
