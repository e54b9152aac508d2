package storage

import (
	"context"
	"errors"
	"time"

	"github.com/princekumarofficial/video-service/internal/types"
	"github.com/princekumarofficial/video-service/internal/types/users"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUserExists        = errors.New("user already exists")
)

// Storage is the metadata store. Implementations must apply IncrementViews
// and TransitionStatus atomically per record.
type Storage interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (string, error)
	GetUserByUsername(ctx context.Context, username string) (*users.User, error)

	CreateVideo(ctx context.Context, video *types.VideoRecord) error
	GetVideo(ctx context.Context, id string) (*types.VideoRecord, error)
	ListVideosByOwner(ctx context.Context, ownerID string, offset, limit int) ([]types.VideoRecord, error)
	// DeleteVideo reports whether a row was removed; a missing row is not an error.
	DeleteVideo(ctx context.Context, id string) (bool, error)

	IncrementViews(ctx context.Context, id string) (int64, error)
	// TransitionStatus applies update only if the current status may move to
	// update.To, returning ErrInvalidTransition otherwise.
	TransitionStatus(ctx context.Context, id string, update types.StatusUpdate) error
	// FailStale fails every pending or processing record not updated since
	// olderThan and returns their ids.
	FailStale(ctx context.Context, olderThan time.Time, reason string) ([]string, error)

	Close() error
}
