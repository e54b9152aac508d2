// Package sqlstore implements storage.Storage on database/sql. Queries are
// written with $N placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/princekumarofficial/video-service/internal/storage"
	"github.com/princekumarofficial/video-service/internal/types"
	"github.com/princekumarofficial/video-service/internal/types/users"
)

// Dialect captures what differs between the supported drivers.
type Dialect struct {
	Name   string
	Schema []string
	// Placeholder renders the n-th bind parameter; nil keeps $n.
	Placeholder func(n int) string
	// IsUniqueViolation recognizes the driver's unique constraint error.
	IsUniqueViolation func(err error) bool
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ storage.Storage = (*Store)(nil)

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// CreateTables applies the dialect schema. Every statement is idempotent.
func (s *Store) CreateTables(ctx context.Context) error {
	for _, q := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%s schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

func (s *Store) rebind(q string) string {
	if s.dialect.Placeholder == nil {
		return q
	}
	return placeholderRe.ReplaceAllStringFunc(q, func(m string) string {
		n, _ := strconv.Atoi(m[1:])
		return s.dialect.Placeholder(n)
	})
}

// inList renders "$start, $start+1, ..." for n parameters.
func inList(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (string, error) {
	var userID int64
	query := `
	INSERT INTO users (username, email, password, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id
	`

	err := s.db.QueryRowContext(ctx, s.rebind(query), username, email, passwordHash, time.Now().UTC()).Scan(&userID)
	if err != nil {
		if s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err) {
			return "", storage.ErrUserExists
		}
		return "", err
	}

	return strconv.FormatInt(userID, 10), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*users.User, error) {
	var (
		u         users.User
		userID    int64
		createdAt time.Time
	)
	query := `SELECT id, username, email, password, created_at FROM users WHERE username = $1`

	err := s.db.QueryRowContext(ctx, s.rebind(query), username).
		Scan(&userID, &u.Username, &u.Email, &u.Password, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.ID = strconv.FormatInt(userID, 10)
	u.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return &u, nil
}

const videoColumns = `id, filename, original_filename, title, description, file_size,
	duration, thumbnail, processing_status, failure_reason, views, owner_id,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*types.VideoRecord, error) {
	var (
		v         types.VideoRecord
		duration  sql.NullFloat64
		thumbnail sql.NullString
		status    string
	)

	err := row.Scan(&v.ID, &v.Filename, &v.OriginalFilename, &v.Title, &v.Description, &v.FileSize,
		&duration, &thumbnail, &status, &v.Processing.Reason, &v.Views, &v.OwnerID,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}

	v.Processing.Status, err = types.ParseProcessingStatus(status)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		d := duration.Float64
		v.DurationSeconds = &d
	}
	if thumbnail.Valid {
		t := thumbnail.String
		v.ThumbnailRef = &t
	}
	return &v, nil
}

func (s *Store) CreateVideo(ctx context.Context, video *types.VideoRecord) error {
	now := time.Now().UTC()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}
	video.UpdatedAt = video.CreatedAt
	if video.Processing.Status == "" {
		video.Processing = types.Pending()
	}

	query := `
	INSERT INTO videos (` + videoColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		video.ID, video.Filename, video.OriginalFilename, video.Title, video.Description, video.FileSize,
		video.DurationSeconds, video.ThumbnailRef, string(video.Processing.Status), video.Processing.Reason,
		video.Views, video.OwnerID, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert video %s: %w", video.ID, err)
	}
	return nil
}

func (s *Store) GetVideo(ctx context.Context, id string) (*types.VideoRecord, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	v, err := scanVideo(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) ListVideosByOwner(ctx context.Context, ownerID string, offset, limit int) ([]types.VideoRecord, error) {
	query := `
	SELECT ` + videoColumns + `
	FROM videos
	WHERE owner_id = $1
	ORDER BY created_at DESC, id
	LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := make([]types.VideoRecord, 0, limit)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

func (s *Store) DeleteVideo(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM videos WHERE id = $1`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementViews leaves updated_at alone so the stale sweeper only sees
// processing activity.
func (s *Store) IncrementViews(ctx context.Context, id string) (int64, error) {
	var views int64
	query := `UPDATE videos SET views = views + 1 WHERE id = $1 RETURNING views`

	err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(&views)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	return views, err
}

func (s *Store) TransitionStatus(ctx context.Context, id string, update types.StatusUpdate) error {
	if err := update.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidTransition, err)
	}

	now := time.Now().UTC()
	var (
		set  string
		args []any
	)
	switch update.To {
	case types.StatusCompleted:
		set = `processing_status = $1, failure_reason = '', duration = $2, thumbnail = $3, updated_at = $4`
		args = []any{string(update.To), *update.Duration, *update.Thumbnail, now}
	case types.StatusFailed:
		set = `processing_status = $1, failure_reason = $2, updated_at = $3`
		args = []any{string(update.To), types.Failed(update.Reason).Reason, now}
	default:
		set = `processing_status = $1, updated_at = $2`
		args = []any{string(update.To), now}
	}

	from := update.To.Predecessors()
	args = append(args, id)
	idParam := len(args)
	for _, st := range from {
		args = append(args, string(st))
	}

	query := `UPDATE videos SET ` + set +
		` WHERE id = $` + strconv.Itoa(idParam) +
		` AND processing_status IN (` + inList(idParam+1, len(from)) + `)`

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("transition %s to %s: %w", id, update.To, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT processing_status FROM videos WHERE id = $1`), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, current, update.To)
}

func (s *Store) FailStale(ctx context.Context, olderThan time.Time, reason string) ([]string, error) {
	query := `
	UPDATE videos
	SET processing_status = $1, failure_reason = $2, updated_at = $3
	WHERE processing_status IN ($4, $5) AND updated_at < $6
	RETURNING id
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query),
		string(types.StatusFailed), types.Failed(reason).Reason, time.Now().UTC(),
		string(types.StatusPending), string(types.StatusProcessing), olderThan.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
