package stream

import (
	"bytes"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/princekumarofficial/video-service/internal/media/byterange"
)

func payload(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("Failed to generate payload: %v", err)
	}
	return b
}

func TestServe_FullMode(t *testing.T) {
	data := payload(t, 10_000)
	s := New(1024)
	rec := httptest.NewRecorder()
	starts := 0

	n, err := s.Serve(rec, bytes.NewReader(data), int64(len(data)), nil, "video/mp4", func() { starts++ })
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if n != int64(len(data)) || !bytes.Equal(rec.Body.Bytes(), data) {
		t.Fatalf("Expected full body of %d bytes, got %d", len(data), rec.Body.Len())
	}
	if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(len(data)) {
		t.Fatalf("Expected Content-Length %d, got %s", len(data), got)
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Fatal("Expected Accept-Ranges: bytes")
	}
	if rec.Header().Get("Content-Range") != "" {
		t.Fatal("Did not expect Content-Range in full mode")
	}
	if starts != 1 {
		t.Fatalf("Expected onStart once, got %d", starts)
	}
}

func TestServe_PartialRoundTrip(t *testing.T) {
	const total = 257
	data := payload(t, total)
	s := New(16)

	for start := int64(0); start < total; start += 7 {
		for end := start; end < total; end += 11 {
			rng := &byterange.Range{Start: start, End: end}
			rec := httptest.NewRecorder()

			n, err := s.Serve(rec, bytes.NewReader(data), total, rng, "video/mp4", nil)
			if err != nil {
				t.Fatalf("[%d,%d]: unexpected error: %v", start, end, err)
			}
			if rec.Code != http.StatusPartialContent {
				t.Fatalf("[%d,%d]: expected 206, got %d", start, end, rec.Code)
			}
			if n != end-start+1 || !bytes.Equal(rec.Body.Bytes(), data[start:end+1]) {
				t.Fatalf("[%d,%d]: body does not match file slice", start, end)
			}
			if got := rec.Header().Get("Content-Range"); got != rng.ContentRange(total) {
				t.Fatalf("[%d,%d]: unexpected Content-Range %s", start, end, got)
			}
			if got := rec.Header().Get("Content-Length"); got != strconv.FormatInt(end-start+1, 10) {
				t.Fatalf("[%d,%d]: unexpected Content-Length %s", start, end, got)
			}
		}
	}
}

func TestServe_ExampleWindow(t *testing.T) {
	const total = 3 << 20
	data := payload(t, total)
	rng, ok, err := byterange.Resolve("bytes=1048576-2097151", total)
	if err != nil || !ok {
		t.Fatalf("Failed to resolve range: ok=%v err=%v", ok, err)
	}

	rec := httptest.NewRecorder()
	if _, err := New(0).Serve(rec, bytes.NewReader(data), total, &rng, "video/mp4", nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("Expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 1048576-2097151/3145728" {
		t.Fatalf("Unexpected Content-Range %s", got)
	}
	if rec.Body.Len() != 1048576 {
		t.Fatalf("Expected 1048576 bytes, got %d", rec.Body.Len())
	}
}

func TestServe_TruncatedFileStopsEarly(t *testing.T) {
	data := payload(t, 100)
	rec := httptest.NewRecorder()

	// declared size larger than what is on disk
	n, err := New(32).Serve(rec, bytes.NewReader(data), 500, nil, "video/mp4", nil)
	if err != nil {
		t.Fatalf("Expected truncated file to end without error, got %v", err)
	}
	if n != 100 || rec.Body.Len() != 100 {
		t.Fatalf("Expected 100 bytes delivered, got %d", n)
	}
}

type recordingReader struct {
	r   *bytes.Reader
	max int
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	if len(p) > rr.max {
		rr.max = len(p)
	}
	return rr.r.Read(p)
}

func (rr *recordingReader) Seek(off int64, whence int) (int64, error) {
	return rr.r.Seek(off, whence)
}

func TestServe_ReadsBoundedByChunkSize(t *testing.T) {
	data := payload(t, 50_000)
	src := &recordingReader{r: bytes.NewReader(data)}

	if _, err := New(4096).Serve(httptest.NewRecorder(), src, int64(len(data)), nil, "video/mp4", nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if src.max > 4096 {
		t.Fatalf("Expected reads of at most 4096 bytes, saw %d", src.max)
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		".mp4":  "video/mp4",
		".MOV":  "video/quicktime",
		".webm": "video/webm",
		".bin":  "application/octet-stream",
	}
	for ext, want := range cases {
		if got := ContentTypeFor(ext); got != want {
			t.Fatalf("ContentTypeFor(%s) = %s, want %s", ext, got, want)
		}
	}
}
