package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/princekumarofficial/video-service/internal/storage"
	"github.com/princekumarofficial/video-service/internal/storage/sqlite"
	"github.com/princekumarofficial/video-service/internal/storage/sqlstore"
	"github.com/princekumarofficial/video-service/internal/types"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createOwner(t *testing.T, store *sqlstore.Store, username string) string {
	t.Helper()
	id, err := store.CreateUser(context.Background(), username, username+"@example.com", "hash")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return id
}

func createVideo(t *testing.T, store *sqlstore.Store, ownerID string) *types.VideoRecord {
	t.Helper()
	id := uuid.NewString()
	v := &types.VideoRecord{
		ID:               id,
		Filename:         id + ".mp4",
		OriginalFilename: "clip.mp4",
		Title:            "clip",
		FileSize:         3 << 20,
		OwnerID:          ownerID,
	}
	if err := store.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("Failed to create video: %v", err)
	}
	return v
}

func ptr[T any](v T) *T { return &v }

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := createOwner(t, store, "alice")

	u, err := store.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if u.ID != id || u.Email != "alice@example.com" || u.Password != "hash" {
		t.Fatalf("Unexpected user: %+v", u)
	}

	if _, err := store.CreateUser(ctx, "alice", "other@example.com", "x"); !errors.Is(err, storage.ErrUserExists) {
		t.Fatalf("Expected ErrUserExists, got %v", err)
	}
	if _, err := store.GetUserByUsername(ctx, "bob"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreateAndGetVideo(t *testing.T) {
	store := newTestStore(t)
	owner := createOwner(t, store, "alice")
	v := createVideo(t, store, owner)

	got, err := store.GetVideo(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Processing.Status != types.StatusPending {
		t.Fatalf("Expected pending, got %s", got.Processing.Status)
	}
	if got.FileSize != 3<<20 || got.OwnerID != owner || got.Views != 0 {
		t.Fatalf("Unexpected record: %+v", got)
	}
	if got.DurationSeconds != nil || got.ThumbnailRef != nil {
		t.Fatal("Expected no duration or thumbnail before processing")
	}

	if _, err := store.GetVideo(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransitionStatus_HappyPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v := createVideo(t, store, createOwner(t, store, "alice"))

	if err := store.TransitionStatus(ctx, v.ID, types.StatusUpdate{To: types.StatusProcessing}); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	err := store.TransitionStatus(ctx, v.ID, types.StatusUpdate{
		To:        types.StatusCompleted,
		Duration:  ptr(12.5),
		Thumbnail: ptr(v.ID + ".jpg"),
	})
	if err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}

	got, _ := store.GetVideo(ctx, v.ID)
	if got.Processing.Status != types.StatusCompleted {
		t.Fatalf("Expected completed, got %s", got.Processing.Status)
	}
	if got.DurationSeconds == nil || *got.DurationSeconds != 12.5 || got.ThumbnailRef == nil {
		t.Fatalf("Expected duration and thumbnail with completed, got %+v", got)
	}
}

func TestTransitionStatus_Monotone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v := createVideo(t, store, createOwner(t, store, "alice"))

	// completed straight from pending is not allowed
	err := store.TransitionStatus(ctx, v.ID, types.StatusUpdate{To: types.StatusCompleted, Duration: ptr(1.0), Thumbnail: ptr("t")})
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}

	if err := store.TransitionStatus(ctx, v.ID, types.StatusUpdate{To: types.StatusProcessing}); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if err := store.TransitionStatus(ctx, v.ID, types.StatusUpdate{To: types.StatusProcessing}); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("Expected a second claim to be rejected, got %v", err)
	}
	if err := store.TransitionStatus(ctx, v.ID, types.StatusUpdate{To: types.StatusFailed, Reason: "boom"}); err != nil {
		t.Fatalf("Failed to fail: %v", err)
	}

	for _, to := range []types.StatusUpdate{
		{To: types.StatusPending},
		{To: types.StatusProcessing},
		{To: types.StatusCompleted, Duration: ptr(1.0), Thumbnail: ptr("t")},
		{To: types.StatusFailed, Reason: "again"},
	} {
		if err := store.TransitionStatus(ctx, v.ID, to); !errors.Is(err, storage.ErrInvalidTransition) {
			t.Fatalf("Expected terminal state to reject %s, got %v", to.To, err)
		}
	}

	got, _ := store.GetVideo(ctx, v.ID)
	if got.Processing.Status != types.StatusFailed || got.Processing.Reason != "boom" {
		t.Fatalf("Expected failed(boom), got %+v", got.Processing)
	}
}

func TestTransitionStatus_FailPreservesFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v := createVideo(t, store, createOwner(t, store, "alice"))

	if _, err := store.IncrementViews(ctx, v.ID); err != nil {
		t.Fatalf("Failed to increment: %v", err)
	}
	if err := store.TransitionStatus(ctx, v.ID, types.StatusUpdate{To: types.StatusProcessing}); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if err := store.TransitionStatus(ctx, v.ID, types.StatusUpdate{To: types.StatusFailed, Reason: "ffprobe exited 1"}); err != nil {
		t.Fatalf("Failed to fail: %v", err)
	}

	got, _ := store.GetVideo(ctx, v.ID)
	if got.FileSize != v.FileSize || got.Title != v.Title || got.Filename != v.Filename || got.Views != 1 {
		t.Fatalf("Expected fields preserved after failure, got %+v", got)
	}
	if got.Processing.Reason != "ffprobe exited 1" {
		t.Fatalf("Unexpected reason %q", got.Processing.Reason)
	}
}

func TestTransitionStatus_UnknownID(t *testing.T) {
	store := newTestStore(t)
	err := store.TransitionStatus(context.Background(), "missing", types.StatusUpdate{To: types.StatusProcessing})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestIncrementViews_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v := createVideo(t, store, createOwner(t, store, "alice"))

	const m = 50
	var wg sync.WaitGroup
	errs := make(chan error, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementViews(ctx, v.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Increment failed: %v", err)
	}

	got, _ := store.GetVideo(ctx, v.ID)
	if got.Views != m {
		t.Fatalf("Expected %d views, got %d", m, got.Views)
	}

	if _, err := store.IncrementViews(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteVideo_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	v := createVideo(t, store, createOwner(t, store, "alice"))

	removed, err := store.DeleteVideo(ctx, v.ID)
	if err != nil || !removed {
		t.Fatalf("Expected first delete to remove the row, got removed=%v err=%v", removed, err)
	}
	removed, err = store.DeleteVideo(ctx, v.ID)
	if err != nil || removed {
		t.Fatalf("Expected second delete to be a no-op, got removed=%v err=%v", removed, err)
	}
}

func TestListVideosByOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := createOwner(t, store, "alice")
	bob := createOwner(t, store, "bob")

	for i := 0; i < 5; i++ {
		createVideo(t, store, alice)
	}
	createVideo(t, store, bob)

	page, err := store.ListVideosByOwner(ctx, alice, 0, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("Expected 3 videos, got %d", len(page))
	}
	rest, _ := store.ListVideosByOwner(ctx, alice, 3, 10)
	if len(rest) != 2 {
		t.Fatalf("Expected 2 remaining videos, got %d", len(rest))
	}
	for _, v := range append(page, rest...) {
		if v.OwnerID != alice {
			t.Fatalf("Listed a video of another owner: %+v", v)
		}
	}
}

func TestFailStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createOwner(t, store, "alice")

	stuckPending := createVideo(t, store, owner)
	stuckProcessing := createVideo(t, store, owner)
	done := createVideo(t, store, owner)

	if err := store.TransitionStatus(ctx, stuckProcessing.ID, types.StatusUpdate{To: types.StatusProcessing}); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if err := store.TransitionStatus(ctx, done.ID, types.StatusUpdate{To: types.StatusProcessing}); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if err := store.TransitionStatus(ctx, done.ID, types.StatusUpdate{To: types.StatusCompleted, Duration: ptr(3.0), Thumbnail: ptr("t.jpg")}); err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}

	// nothing is older than a cutoff in the past
	ids, err := store.FailStale(ctx, time.Now().Add(-time.Hour), "stale")
	if err != nil || len(ids) != 0 {
		t.Fatalf("Expected no stale records, got %v err=%v", ids, err)
	}

	ids, err = store.FailStale(ctx, time.Now().Add(time.Minute), "processing timed out")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 stale records, got %v", ids)
	}

	for _, id := range []string{stuckPending.ID, stuckProcessing.ID} {
		got, _ := store.GetVideo(ctx, id)
		if got.Processing != types.Failed("processing timed out") {
			t.Fatalf("Expected %s failed, got %+v", id, got.Processing)
		}
	}
	got, _ := store.GetVideo(ctx, done.ID)
	if got.Processing.Status != types.StatusCompleted {
		t.Fatalf("Expected completed record untouched, got %s", got.Processing.Status)
	}
}

func TestRebindKeepsArgumentOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createOwner(t, store, "alice")

	for i := 0; i < 3; i++ {
		v := createVideo(t, store, owner)
		got, err := store.GetVideo(ctx, v.ID)
		if err != nil || got.ID != v.ID {
			t.Fatalf("%d: expected %s, got %+v err=%v", i, v.ID, got, err)
		}
		if got.Filename != fmt.Sprintf("%s.mp4", v.ID) {
			t.Fatalf("Unexpected filename %s", got.Filename)
		}
	}
}
