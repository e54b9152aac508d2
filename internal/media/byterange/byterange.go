// Package byterange parses single-range HTTP Range headers against a known
// resource size. It never touches the filesystem.
package byterange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformed     = errors.New("malformed range header")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

const unit = "bytes="

// Range is an inclusive byte window with 0 <= Start <= End < total.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value for a 206 response.
func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// UnsatisfiedContentRange formats the Content-Range header value for a 416 response.
func UnsatisfiedContentRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// Resolve parses header against total. ok is false when no range was
// requested. A missing start means 0, a missing end means total-1, and an end
// past the last byte is clamped to it.
func Resolve(header string, total int64) (rng Range, ok bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Range{}, false, nil
	}

	if !strings.HasPrefix(strings.ToLower(header), unit) {
		return Range{}, false, fmt.Errorf("%w: unsupported unit", ErrMalformed)
	}
	spec := strings.TrimSpace(header[len(unit):])
	if strings.Contains(spec, ",") {
		return Range{}, false, fmt.Errorf("%w: multiple ranges are not supported", ErrMalformed)
	}

	rawStart, rawEnd, found := strings.Cut(spec, "-")
	if !found {
		return Range{}, false, fmt.Errorf("%w: missing '-'", ErrMalformed)
	}

	start, err := parseBound(rawStart, 0)
	if err != nil {
		return Range{}, false, err
	}
	end, err := parseBound(rawEnd, total-1)
	if err != nil {
		return Range{}, false, err
	}

	if start >= total || start > end {
		return Range{}, false, fmt.Errorf("%w: %d-%d of %d", ErrUnsatisfiable, start, end, total)
	}
	if end >= total {
		end = total - 1
	}

	return Range{Start: start, End: end}, true, nil
}

func parseBound(raw string, def int64) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 || strings.HasPrefix(raw, "+") {
		return 0, fmt.Errorf("%w: invalid offset %q", ErrMalformed, raw)
	}
	return v, nil
}
