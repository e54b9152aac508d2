// Package ingest writes an incoming byte stream of unknown length to disk in
// bounded chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const DefaultChunkSize = 1 << 20

var DefaultAllowedExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm", ".flv"}

var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrTooLarge             = errors.New("upload exceeds maximum size")
)

// IngestError reports a failure after the destination file was created.
// The partial file has already been removed when it is returned.
type IngestError struct {
	Path string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Allocator hands out destination paths for new uploads.
type Allocator interface {
	Allocate(ext string) (id string, path string, err error)
}

type Result struct {
	ID       string
	Filename string
	Path     string
	Size     int64
}

type Writer struct {
	alloc     Allocator
	chunkSize int
	maxBytes  int64
	allowed   map[string]struct{}
}

// NewWriter builds a writer. A zero chunkSize means DefaultChunkSize; maxBytes
// <= 0 disables the size limit; an empty allow-list means the defaults.
func NewWriter(alloc Allocator, chunkSize int, maxBytes int64, allowed []string) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedExtensions
	}

	set := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}

	return &Writer{
		alloc:     alloc,
		chunkSize: chunkSize,
		maxBytes:  maxBytes,
		allowed:   set,
	}
}

// Extension returns the lowercased extension of name if it is allowed.
func (w *Writer) Extension(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := w.allowed[ext]; !ok || ext == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	return ext, nil
}

// Ingest validates the extension of originalName, then copies src into a
// freshly allocated file one chunk at a time. The returned size is the
// number of bytes actually written.
func (w *Writer) Ingest(ctx context.Context, originalName string, src io.Reader) (Result, error) {
	ext, err := w.Extension(originalName)
	if err != nil {
		return Result{}, err
	}

	id, path, err := w.alloc.Allocate(ext)
	if err != nil {
		return Result{}, fmt.Errorf("allocate upload path: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Result{}, &IngestError{Path: path, Err: err}
	}

	size, err := w.copyChunks(ctx, f, src)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Error("Failed to remove partial upload",
				slog.String("path", path),
				slog.String("error", rmErr.Error()))
		}
		return Result{}, &IngestError{Path: path, Err: err}
	}

	return Result{
		ID:       id,
		Filename: filepath.Base(path),
		Path:     path,
		Size:     size,
	}, nil
}

func (w *Writer) copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, w.chunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		// A short read is fine; io.ErrUnexpectedEOF from a multipart part means
		// the body was truncated and must fail the upload.
		n, readErr := src.Read(buf)
		if n > 0 {
			if w.maxBytes > 0 && written+int64(n) > w.maxBytes {
				return written, ErrTooLarge
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
