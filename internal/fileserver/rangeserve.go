package fileserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

var (
	// ErrMultipleRanges is returned when a Range header names more than
	// one byte range; this gateway only supports a single range.
	ErrMultipleRanges = errors.New("fileserver: multiple ranges not supported")
	// ErrInvalidRange is returned when the Range header is malformed.
	ErrInvalidRange = errors.New("fileserver: invalid range header")
	// ErrRangeNotSatisfiable is returned when the requested range doesn't
	// overlap the resource.
	ErrRangeNotSatisfiable = errors.New("fileserver: range not satisfiable")
)

type byteRange struct {
	start, end int64 // inclusive, end < size
}

// parseSingleRange accepts exactly the single-range form "bytes=A-B",
// "bytes=A-" (to EOF), or "bytes=-N" (last N bytes).
func parseSingleRange(header string, size int64) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, ErrInvalidRange
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return byteRange{}, ErrMultipleRanges
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return byteRange{}, ErrInvalidRange
	}

	if parts[0] == "" {
		// suffix range: last N bytes
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, ErrInvalidRange
		}
		if n > size {
			n = size
		}
		if size == 0 {
			return byteRange{}, ErrRangeNotSatisfiable
		}
		return byteRange{start: size - n, end: size - 1}, nil
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, ErrInvalidRange
	}

	var end int64
	if parts[1] == "" {
		end = size - 1
	} else {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return byteRange{}, ErrInvalidRange
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start >= size {
		return byteRange{}, ErrRangeNotSatisfiable
	}
	return byteRange{start: start, end: end}, nil
}

type seekReader interface {
	io.Reader
	io.Seeker
}

func serveRange(f seekReader, size int64, header string, w http.ResponseWriter, r *http.Request, log logr.Logger) Result {
	br, err := parseSingleRange(header, size)
	switch {
	case errors.Is(err, ErrMultipleRanges), errors.Is(err, ErrInvalidRange):
		http.Error(w, "bad request", http.StatusBadRequest)
		return Result{Status: StatusBadRequest, Err: err}
	case errors.Is(err, ErrRangeNotSatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return Result{Status: StatusRangeNotSatisfiable, Err: err}
	case err != nil:
		http.Error(w, "bad request", http.StatusBadRequest)
		return Result{Status: StatusBadRequest, Err: err}
	}

	if _, err := f.Seek(br.start, io.SeekStart); err != nil {
		return handleIOError(w, err, log)
	}

	length := br.end - br.start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method != http.MethodHead {
		if _, err := io.CopyN(w, f, length); err != nil {
			logStreamError(err, log)
		}
	}
	return Result{Status: StatusPartial}
}
