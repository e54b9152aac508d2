// Package stream writes a stored file, or one byte window of it, to an HTTP
// response in bounded chunks.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/princekumarofficial/video-service/internal/media/byterange"
)

const DefaultChunkSize = 1 << 20

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".flv":  "video/x-flv",
	".jpg":  "image/jpeg",
}

// ContentTypeFor maps a file extension to the Content-Type served for it.
func ContentTypeFor(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

type Responder struct {
	ChunkSize int
}

func New(chunkSize int) *Responder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Responder{ChunkSize: chunkSize}
}

// Serve writes src to w. With rng == nil the whole file is sent with 200,
// otherwise the window is sent with 206. onStart runs once, right after the
// headers are committed and before any body bytes are copied.
//
// A file shorter than total ends the body early without an error; the number
// of body bytes written is returned either way. Errors after the headers are
// committed come from the client connection and cannot change the status.
func (s *Responder) Serve(w http.ResponseWriter, src io.ReadSeeker, total int64, rng *byterange.Range, contentType string, onStart func()) (int64, error) {
	offset, length := int64(0), total
	status := http.StatusOK
	if rng != nil {
		offset, length = rng.Start, rng.Length()
		status = http.StatusPartialContent
	}

	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			return 0, fmt.Errorf("seek to %d: %w", offset, err)
		}
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	if rng != nil {
		h.Set("Content-Range", rng.ContentRange(total))
	}
	w.WriteHeader(status)

	if onStart != nil {
		onStart()
	}

	return s.copyWindow(w, src, length)
}

func (s *Responder) copyWindow(w http.ResponseWriter, src io.Reader, length int64) (int64, error) {
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	buf := make([]byte, chunk)
	flusher, _ := w.(http.Flusher)

	var written int64
	for written < length {
		want := int64(len(buf))
		if remaining := length - written; remaining < want {
			want = remaining
		}

		n, readErr := src.Read(buf[:want])
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if errors.Is(readErr, io.EOF) {
			// truncated file
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}

	return written, nil
}
