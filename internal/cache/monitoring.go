package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/video-service/internal/utils/response"
)

const scanBatch = 100

// CacheStats represents cache performance statistics
type CacheStats struct {
	RedisConnected bool              `json:"redis_connected"`
	RedisInfo      map[string]string `json:"redis_info"`
	CacheKeys      []string          `json:"cache_keys_sample"`
	VideoKeyCount  int               `json:"video_keys"`
	KeyCount       int               `json:"total_keys"`
}

// patterns maps the ?type= values accepted by ClearCache.
var patterns = map[string]string{
	"videos":    VideoPattern,
	"ratelimit": "rate_limit:*",
	"all":       "*",
}

// scanKeys walks the keyspace with SCAN so large databases are not blocked.
func scanKeys(ctx context.Context, rdb *redis.Client, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// parseInfo keeps the key:value lines of an INFO reply.
func parseInfo(raw string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			info[k] = v
		}
	}
	return info
}

// GetCacheStats returns cache performance statistics
func GetCacheStats(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		stats := CacheStats{
			RedisConnected: true,
			RedisInfo:      make(map[string]string),
		}

		if err := redisClient.Ping(ctx).Err(); err != nil {
			stats.RedisConnected = false
			response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache stats retrieved", stats))
			return
		}

		if raw, err := redisClient.Info(ctx, "memory", "stats").Result(); err == nil {
			stats.RedisInfo = parseInfo(raw)
		}

		if keys, err := scanKeys(ctx, redisClient, VideoPattern); err == nil {
			stats.VideoKeyCount = len(keys)
			stats.CacheKeys = keys[:min(len(keys), 10)]
		}

		if n, err := redisClient.DBSize(ctx).Result(); err == nil {
			stats.KeyCount = int(n)
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache stats retrieved", stats))
	}
}

// ClearCache deletes the keys of one cache family, selected by ?type=
// (videos, ratelimit, all). The default is videos.
func ClearCache(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cacheType := r.URL.Query().Get("type")
		if cacheType == "" {
			cacheType = "videos"
		}
		pattern, ok := patterns[cacheType]
		if !ok {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(
				errors.New("unknown cache type: "+cacheType)))
			return
		}

		keys, err := scanKeys(ctx, redisClient, pattern)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if len(keys) == 0 {
			result := map[string]interface{}{
				"pattern":      pattern,
				"deleted_keys": 0,
			}
			response.WriteJSON(w, http.StatusOK, response.RequestOK("No cache keys to clear", result))
			return
		}

		deleted, err := redisClient.Del(ctx, keys...).Result()
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		result := map[string]interface{}{
			"pattern":      pattern,
			"deleted_keys": deleted,
			"keys_sample":  keys[:min(len(keys), 5)],
		}
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache cleared successfully", result))
	}
}
