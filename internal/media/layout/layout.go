// Package layout maps video identities to files under the configured media
// directories (uploads, processed, thumbnails).
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/princekumarofficial/video-service/internal/config"
)

var ErrInvalidFilename = errors.New("invalid filename")

const thumbnailExt = ".jpg"

type Layout struct {
	uploads    string
	processed  string
	thumbnails string
}

// New creates the media directories if they are missing.
func New(cfg config.Media) (*Layout, error) {
	l := &Layout{
		uploads:    cfg.UploadDir,
		processed:  cfg.ProcessedDir,
		thumbnails: cfg.ThumbnailDir,
	}

	for _, dir := range []string{l.uploads, l.processed, l.thumbnails} {
		if dir == "" {
			return nil, fmt.Errorf("media directory must not be empty")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
		}
	}

	return l, nil
}

// Allocate returns a fresh video id and the upload path for it. Ids are random
// UUIDv4 values, so collisions are cryptographically negligible; the ingestion
// writer additionally opens the path with O_EXCL.
func (l *Layout) Allocate(ext string) (string, string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate video id: %w", err)
	}

	filename := id.String() + strings.ToLower(ext)
	path, err := l.Resolve(filename)
	if err != nil {
		return "", "", err
	}

	return id.String(), path, nil
}

// Resolve maps a stored filename to its upload path.
func (l *Layout) Resolve(filename string) (string, error) {
	if err := checkName(filename); err != nil {
		return "", err
	}
	return filepath.Join(l.uploads, filename), nil
}

// ProcessedPath is where a transcoded rendition of filename would live.
func (l *Layout) ProcessedPath(filename string) (string, error) {
	if err := checkName(filename); err != nil {
		return "", err
	}
	return filepath.Join(l.processed, filename), nil
}

func (l *Layout) ThumbnailPath(id string) (string, error) {
	name := id + thumbnailExt
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.thumbnails, name), nil
}

func (l *Layout) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes path. A missing file is not an error; the bool reports
// whether something was actually deleted.
func (l *Layout) Remove(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// RemoveAll deletes every file belonging to a video across all areas.
// It keeps going after a failure and returns the joined errors.
func (l *Layout) RemoveAll(id, filename string) (int, error) {
	var (
		removed int
		errs    []error
	)

	paths := make([]string, 0, 3)
	if p, err := l.Resolve(filename); err == nil {
		paths = append(paths, p)
	} else {
		errs = append(errs, err)
	}
	if p, err := l.ProcessedPath(filename); err == nil {
		paths = append(paths, p)
	}
	if p, err := l.ThumbnailPath(id); err == nil {
		paths = append(paths, p)
	}

	for _, p := range paths {
		ok, err := l.Remove(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			continue
		}
		if ok {
			removed++
		}
	}

	return removed, errors.Join(errs...)
}

// RemoveByID deletes whatever files remain for id when its record is gone and
// the stored filename is unknown. Uploads are named "<id><ext>", so any
// "<id>.*" in the upload and processed areas belongs to it. id must be a
// canonical UUID.
func (l *Layout) RemoveByID(id string) (int, error) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFilename, id)
	}

	var paths []string
	for _, dir := range []string{l.uploads, l.processed} {
		matches, err := filepath.Glob(filepath.Join(dir, id+".*"))
		if err != nil {
			return 0, err
		}
		paths = append(paths, matches...)
	}
	if p, err := l.ThumbnailPath(id); err == nil {
		paths = append(paths, p)
	}

	var (
		removed int
		errs    []error
	)
	for _, p := range paths {
		ok, err := l.Remove(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			continue
		}
		if ok {
			removed++
		}
	}

	return removed, errors.Join(errs...)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}
