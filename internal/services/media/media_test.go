package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/princekumarofficial/video-service/internal/config"
)

// fakeS3 answers just enough of the S3 API for bucket setup and deletes.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	// Bucket requests arrive as "/bucket/".
	parts := strings.SplitN(strings.Trim(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case len(parts) == 2 && r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestService(t *testing.T, existing ...string) (*Service, *fakeS3) {
	t.Helper()
	fake := &fakeS3{buckets: map[string]bool{}}
	for _, b := range existing {
		fake.buckets[b] = true
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := NewService(context.Background(), config.MinIO{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		BucketName:      "thumbnails",
		PresignTTL:      15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc, fake
}

func TestNewService_Disabled(t *testing.T) {
	if _, err := NewService(context.Background(), config.MinIO{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Expected ErrDisabled, got %v", err)
	}
}

func TestNewService_CreatesBucket(t *testing.T) {
	_, fake := newTestService(t)
	if !fake.buckets["thumbnails"] {
		t.Fatalf("Expected bucket to be created, requests: %v", fake.requests)
	}
}

func TestNewService_ReusesExistingBucket(t *testing.T) {
	_, fake := newTestService(t, "thumbnails")
	if len(fake.requests) == 0 || fake.requests[0] != "HEAD /thumbnails/" {
		t.Fatalf("Expected a bucket check first, got %v", fake.requests)
	}
	for _, req := range fake.requests {
		if strings.HasPrefix(req, http.MethodPut) {
			t.Fatalf("Expected existing bucket to be reused, got %v", fake.requests)
		}
	}
}

func TestPresignedThumbnailURL(t *testing.T) {
	svc, _ := newTestService(t)

	u, err := svc.PresignedThumbnailURL(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if u.Path != "/thumbnails/thumbnails/abc.jpg" {
		t.Fatalf("Unexpected path %s", u.Path)
	}
	if u.Query().Get("X-Amz-Expires") != "900" {
		t.Fatalf("Expected 900s expiry, got %s", u.Query().Get("X-Amz-Expires"))
	}
}

func TestDeleteThumbnail(t *testing.T) {
	svc, fake := newTestService(t)

	if err := svc.DeleteThumbnail(context.Background(), "abc"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	last := fake.requests[len(fake.requests)-1]
	if last != "DELETE /thumbnails/thumbnails/abc.jpg" {
		t.Fatalf("Unexpected request %s", last)
	}
}
