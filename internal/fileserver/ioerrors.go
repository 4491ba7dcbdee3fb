package fileserver

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
)

// errIsADirectory is a local sentinel: afero/os Stat succeeds on a
// directory, so this gateway must detect that case itself rather than
// relying on an Open failure.
var errIsADirectory = errors.New("fileserver: is a directory")

// handleIOError maps an I/O-layer error to its HTTP status per the
// gateway's error taxonomy and writes the response.
func handleIOError(w http.ResponseWriter, err error, log logr.Logger) Result {
	switch {
	case os.IsNotExist(err), errors.Is(err, errIsADirectory):
		log.V(1).Info("not found", "err", err)
		http.Error(w, "not found", http.StatusNotFound)
		return Result{Status: StatusNotFound, Err: err}

	case isInvalidArgument(err):
		log.Info("bad request", "err", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return Result{Status: StatusBadRequest, Err: err}

	case errors.Is(err, os.ErrDeadlineExceeded), isResourceBusy(err):
		log.Info("service unavailable", "err", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return Result{Status: StatusServiceUnavailable, Err: err}

	case os.IsPermission(err):
		log.Error(err, "permission denied serving file")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return Result{Status: StatusInternalError, Err: err}

	default:
		log.Error(err, "unclassified I/O error serving file")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return Result{Status: StatusInternalError, Err: err}
	}
}

func isInvalidArgument(err error) bool {
	return errors.Is(err, syscall.EINVAL) || strings.Contains(err.Error(), "invalid argument")
}

func isResourceBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY) || strings.Contains(err.Error(), "resource busy")
}

// logStreamError classifies connection-level errors encountered while
// streaming a response body: client-triggered resets or premature closes
// are routine and logged at debug; anything else is logged at info, the
// highest non-error level logr offers (no warn-level entry is emitted).
func logStreamError(err error, log logr.Logger) {
	msg := err.Error()
	if errors.Is(err, os.ErrClosed) || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset") {
		log.V(1).Info("client closed connection during response streaming", "err", err)
		return
	}
	log.Info("error streaming response body", "err", err)
}
