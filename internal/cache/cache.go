package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/video-service/internal/storage"
	"github.com/princekumarofficial/video-service/internal/types"
	"github.com/princekumarofficial/video-service/internal/types/users"
)

// CacheService wraps storage with a Redis read-through cache of video records.
// Every write that touches a record bumps its version and drops its cache
// entry. A read-through fill runs under WATCH on that version, so a fill that
// raced a write is discarded instead of caching the older record.
type CacheService struct {
	storage storage.Storage
	redis   *redis.Client
}

var _ storage.Storage = (*CacheService)(nil)

// NewCacheService creates a new cache service
func NewCacheService(storage storage.Storage, redisClient *redis.Client) *CacheService {
	return &CacheService{
		storage: storage,
		redis:   redisClient,
	}
}

// Cache key patterns
const (
	VideoKey        = "video:%s"         // video:videoID
	VideoVersionKey = "video_version:%s" // video_version:videoID
	VideoPattern    = "video:*"
)

// Terminal records change only through views; pending ones move quickly.
const (
	VideoCacheDuration        = 10 * time.Minute
	PendingVideoCacheDuration = 15 * time.Second
)

func videoKey(id string) string {
	return fmt.Sprintf(VideoKey, id)
}

func videoVersionKey(id string) string {
	return fmt.Sprintf(VideoVersionKey, id)
}

// GetVideo returns the cached record or fetches it from the store.
// Redis failures fall through to the store.
func (c *CacheService) GetVideo(ctx context.Context, id string) (*types.VideoRecord, error) {
	key := videoKey(id)

	cached, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var video types.VideoRecord
		if err := json.Unmarshal(cached, &video); err == nil {
			return &video, nil
		}
	case !errors.Is(err, redis.Nil):
		slog.Warn("Video cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	var (
		video    *types.VideoRecord
		storeErr error
	)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		video, storeErr = c.storage.GetVideo(ctx, id)
		if storeErr != nil {
			return storeErr
		}
		return c.cacheVideo(ctx, tx, video)
	}, videoVersionKey(id))

	switch {
	case storeErr != nil:
		return nil, storeErr
	case video == nil:
		// WATCH itself failed; Redis is unreachable.
		slog.Warn("Video cache watch failed", slog.String("key", key), slog.String("error", err.Error()))
		return c.storage.GetVideo(ctx, id)
	case errors.Is(err, redis.TxFailedErr):
		slog.Debug("Video cache fill raced a write", slog.String("video_id", id))
	case err != nil:
		slog.Warn("Video cache write failed", slog.String("video_id", id), slog.String("error", err.Error()))
	}
	return video, nil
}

// cacheVideo stores the record inside the caller's transaction. EXEC fails
// with redis.TxFailedErr if the watched version moved.
func (c *CacheService) cacheVideo(ctx context.Context, tx *redis.Tx, video *types.VideoRecord) error {
	ttl := VideoCacheDuration
	if !video.Processing.Status.Terminal() {
		ttl = PendingVideoCacheDuration
	}

	data, err := json.Marshal(video)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, videoKey(video.ID), data, ttl)
		return nil
	})
	return err
}

// InvalidateVideo bumps the version of every given video and drops its
// cached record. Version keys outlive any cached entry they guard.
func (c *CacheService) InvalidateVideo(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}

	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, videoVersionKey(id))
			pipe.Expire(ctx, videoVersionKey(id), 2*VideoCacheDuration)
			pipe.Del(ctx, videoKey(id))
		}
		return nil
	})
	if err != nil {
		slog.Warn("Video cache invalidation failed", slog.Any("video_ids", ids), slog.String("error", err.Error()))
	}
}

func (c *CacheService) CreateVideo(ctx context.Context, video *types.VideoRecord) error {
	return c.storage.CreateVideo(ctx, video)
}

func (c *CacheService) ListVideosByOwner(ctx context.Context, ownerID string, offset, limit int) ([]types.VideoRecord, error) {
	return c.storage.ListVideosByOwner(ctx, ownerID, offset, limit)
}

func (c *CacheService) DeleteVideo(ctx context.Context, id string) (bool, error) {
	removed, err := c.storage.DeleteVideo(ctx, id)
	c.InvalidateVideo(ctx, id)
	return removed, err
}

func (c *CacheService) IncrementViews(ctx context.Context, id string) (int64, error) {
	views, err := c.storage.IncrementViews(ctx, id)
	if err != nil {
		return 0, err
	}
	c.InvalidateVideo(ctx, id)
	return views, nil
}

func (c *CacheService) TransitionStatus(ctx context.Context, id string, update types.StatusUpdate) error {
	if err := c.storage.TransitionStatus(ctx, id, update); err != nil {
		return err
	}
	c.InvalidateVideo(ctx, id)
	return nil
}

func (c *CacheService) FailStale(ctx context.Context, olderThan time.Time, reason string) ([]string, error) {
	ids, err := c.storage.FailStale(ctx, olderThan, reason)
	if err != nil {
		return nil, err
	}
	c.InvalidateVideo(ctx, ids...)
	return ids, nil
}

func (c *CacheService) CreateUser(ctx context.Context, username, email, passwordHash string) (string, error) {
	return c.storage.CreateUser(ctx, username, email, passwordHash)
}

func (c *CacheService) GetUserByUsername(ctx context.Context, username string) (*users.User, error) {
	return c.storage.GetUserByUsername(ctx, username)
}

func (c *CacheService) Close() error {
	return c.storage.Close()
}
