package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/princekumarofficial/video-service/internal/events"
	"github.com/princekumarofficial/video-service/internal/http/middleware"
	"github.com/princekumarofficial/video-service/internal/media/byterange"
	"github.com/princekumarofficial/video-service/internal/media/ingest"
	"github.com/princekumarofficial/video-service/internal/media/layout"
	"github.com/princekumarofficial/video-service/internal/media/stream"
	"github.com/princekumarofficial/video-service/internal/metrics"
	"github.com/princekumarofficial/video-service/internal/processing"
	"github.com/princekumarofficial/video-service/internal/storage"
	"github.com/princekumarofficial/video-service/internal/types"
	"github.com/princekumarofficial/video-service/internal/utils/response"
)

const (
	// maxFieldBytes bounds the title and description parts.
	maxFieldBytes = 16 << 10

	// maxFilenameLength matches the title limit; the name is the default title.
	maxFilenameLength = 255

	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	errMissingFile   = errors.New("file part is required")
	errMultipleFiles = errors.New("only one file part is allowed")
	errFieldTooLarge = errors.New("form field too large")
	errNotOwner      = errors.New("you can only delete your own videos")
	errNotFound      = errors.New("video not found")

	errFilenameTooLong = fmt.Errorf("file name must be at most %d characters", maxFilenameLength)
)

// Enqueuer accepts newly ingested videos for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job processing.Job) error
}

// ThumbnailStore is the object storage copy of generated thumbnails.
type ThumbnailStore interface {
	PresignedThumbnailURL(ctx context.Context, videoID string) (*url.URL, error)
	DeleteThumbnail(ctx context.Context, videoID string) error
}

// Handler serves the video endpoints. Publisher and Thumbnails are optional.
type Handler struct {
	Store      storage.Storage
	Layout     *layout.Layout
	Ingest     *ingest.Writer
	Responder  *stream.Responder
	Queue      Enqueuer
	Publisher  events.Publisher
	Thumbnails ThumbnailStore

	validate *validator.Validate
}

func New(h Handler) *Handler {
	if h.Publisher == nil {
		h.Publisher = events.Nop{}
	}
	if h.Responder == nil {
		h.Responder = stream.New(stream.DefaultChunkSize)
	}
	h.validate = validator.New()
	return &h
}

// UploadResponse is returned once the file is stored and queued.
type UploadResponse struct {
	VideoID string                 `json:"video_id"`
	Status  types.ProcessingStatus `json:"status"`
}

// Upload handles streaming video uploads
// @Summary Upload a video
// @Description Streams the multipart file part to disk in chunks, stores the metadata and queues processing
// @Tags videos
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Video file (.mp4, .avi, .mov, .mkv, .webm, .flv)"
// @Param title formData string false "Title, defaults to the file name"
// @Param description formData string false "Description"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 413 {object} response.Response "File too large"
// @Failure 429 {object} response.Response "Rate limit exceeded"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /api/upload [post]
func (h *Handler) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
			return
		}

		req, stored, err := h.readUpload(r)
		if err != nil {
			metrics.Uploads.WithLabelValues("rejected").Inc()
			writeUploadError(w, err)
			return
		}

		if err := h.validate.Struct(req); err != nil {
			h.discard(stored.Path)
			metrics.Uploads.WithLabelValues("rejected").Inc()
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteError(w, http.StatusBadRequest, err)
			return
		}

		title := req.Title
		if title == "" {
			title = req.originalName
		}

		video := &types.VideoRecord{
			ID:               stored.ID,
			Filename:         stored.Filename,
			OriginalFilename: req.originalName,
			Title:            title,
			Description:      req.Description,
			FileSize:         stored.Size,
			Processing:       types.Pending(),
			OwnerID:          userID,
		}

		if err := h.Store.CreateVideo(r.Context(), video); err != nil {
			slog.Error("Failed to create video record", slog.String("video_id", video.ID), slog.String("error", err.Error()))
			h.discard(stored.Path)
			metrics.Uploads.WithLabelValues("failed").Inc()
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to store video"))
			return
		}

		status := types.StatusPending
		job := processing.Job{VideoID: video.ID, OwnerID: userID, Filename: video.Filename}
		if err := h.Queue.Enqueue(r.Context(), job); err != nil {
			// The file is stored; report it but leave the record terminal.
			slog.Error("Failed to queue video for processing", slog.String("video_id", video.ID), slog.String("error", err.Error()))
			state := types.Failed("failed to queue for processing")
			ctx := context.WithoutCancel(r.Context())
			if terr := h.Store.TransitionStatus(ctx, video.ID, types.StatusUpdate{To: types.StatusFailed, Reason: state.Reason}); terr != nil {
				slog.Error("Failed to mark video as failed", slog.String("video_id", video.ID), slog.String("error", terr.Error()))
			} else {
				status = types.StatusFailed
			}
		}

		metrics.Uploads.WithLabelValues("ok").Inc()
		metrics.UploadBytes.Add(float64(stored.Size))
		slog.Info("Video uploaded",
			slog.String("video_id", video.ID),
			slog.String("user_id", userID),
			slog.Int64("size", stored.Size))

		response.WriteJSON(w, http.StatusCreated, UploadResponse{VideoID: video.ID, Status: status})
	}
}

type uploadRequest struct {
	types.VideoUploadRequest
	originalName string
}

// readUpload walks the multipart body once. The file part is streamed to
// disk as it arrives; the small text parts are read into memory.
func (h *Handler) readUpload(r *http.Request) (uploadRequest, ingest.Result, error) {
	var (
		req    uploadRequest
		stored ingest.Result
		have   bool
	)

	fail := func(err error) (uploadRequest, ingest.Result, error) {
		if have {
			h.discard(stored.Path)
		}
		return uploadRequest{}, ingest.Result{}, err
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return fail(fmt.Errorf("invalid multipart body: %w", err))
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("invalid multipart body: %w", err))
		}

		switch part.FormName() {
		case "file":
			if have {
				part.Close()
				return fail(errMultipleFiles)
			}
			name := part.FileName()
			if name == "" {
				part.Close()
				return fail(errMissingFile)
			}
			if err := h.validate.Var(name, fmt.Sprintf("max=%d", maxFilenameLength)); err != nil {
				part.Close()
				return fail(errFilenameTooLong)
			}
			stored, err = h.Ingest.Ingest(r.Context(), name, part)
			if err != nil {
				part.Close()
				return fail(err)
			}
			have = true
			req.originalName = name
		case "title":
			req.Title, err = readField(part)
		case "description":
			req.Description, err = readField(part)
		}
		part.Close()
		if err != nil {
			return fail(err)
		}
	}

	if !have {
		return fail(errMissingFile)
	}
	return req, stored, nil
}

func readField(part io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("invalid multipart body: %w", err)
	}
	if len(b) > maxFieldBytes {
		return "", errFieldTooLarge
	}
	return string(b), nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	var ingestErr *ingest.IngestError
	switch {
	case errors.Is(err, ingest.ErrTooLarge):
		response.WriteError(w, http.StatusRequestEntityTooLarge, ingest.ErrTooLarge)
	case errors.Is(err, ingest.ErrUnsupportedExtension):
		response.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, context.Canceled):
		slog.Info("Upload cancelled by client")
	case errors.As(err, &ingestErr):
		slog.Error("Failed to store upload", slog.String("error", err.Error()))
		response.WriteError(w, http.StatusInternalServerError, errors.New("failed to store upload"))
	default:
		response.WriteError(w, http.StatusBadRequest, err)
	}
}

func (h *Handler) discard(path string) {
	if _, err := h.Layout.Remove(path); err != nil {
		slog.Error("Failed to remove upload", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Stream serves a stored video with byte-range support
// @Summary Stream a video
// @Description Returns the whole file (200) or a single byte range (206). The view counter increases when the response starts.
// @Tags videos
// @Produce octet-stream
// @Param id path string true "Video ID"
// @Param Range header string false "Byte range, e.g. bytes=0-1023"
// @Success 200 {file} binary
// @Success 206 {file} binary
// @Failure 400 {object} response.Response "Malformed range"
// @Failure 404 {object} response.Response "Video not found"
// @Failure 416 {object} response.Response "Range not satisfiable"
// @Router /api/stream/{id} [get]
func (h *Handler) Stream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := h.lookup(w, r)
		if !ok {
			return
		}

		path, err := h.Layout.Resolve(video.Filename)
		if err != nil {
			slog.Error("Invalid stored filename", slog.String("video_id", video.ID), slog.String("error", err.Error()))
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to open video"))
			return
		}

		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				response.WriteError(w, http.StatusNotFound, errors.New("video file not found"))
				return
			}
			slog.Error("Failed to open video file", slog.String("video_id", video.ID), slog.String("error", err.Error()))
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to open video"))
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			slog.Error("Failed to stat video file", slog.String("video_id", video.ID), slog.String("error", err.Error()))
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to open video"))
			return
		}
		total := info.Size()

		rng, partial, err := byterange.Resolve(r.Header.Get("Range"), total)
		switch {
		case errors.Is(err, byterange.ErrUnsatisfiable):
			metrics.RangeRejections.WithLabelValues("unsatisfiable").Inc()
			w.Header().Set("Content-Range", byterange.UnsatisfiedContentRange(total))
			response.WriteError(w, http.StatusRequestedRangeNotSatisfiable, err)
			return
		case err != nil:
			metrics.RangeRejections.WithLabelValues("malformed").Inc()
			response.WriteError(w, http.StatusBadRequest, err)
			return
		}

		var window *byterange.Range
		mode := "full"
		if partial {
			window = &rng
			mode = "partial"
		}

		started := false
		onStart := func() {
			started = true
			metrics.Streams.WithLabelValues(mode).Inc()
			// Count the view even if the client goes away mid-body.
			ctx := context.WithoutCancel(r.Context())
			if _, err := h.Store.IncrementViews(ctx, video.ID); err != nil {
				slog.Error("Failed to increment views", slog.String("video_id", video.ID), slog.String("error", err.Error()))
			}
		}

		n, err := h.Responder.Serve(w, f, total, window, stream.ContentTypeFor(filepath.Ext(video.Filename)), onStart)
		metrics.StreamBytes.Add(float64(n))
		if err != nil {
			if !started {
				slog.Error("Failed to start stream", slog.String("video_id", video.ID), slog.String("error", err.Error()))
				response.WriteError(w, http.StatusInternalServerError, errors.New("failed to read video"))
				return
			}
			slog.Debug("Stream ended early", slog.String("video_id", video.ID), slog.Int64("bytes", n), slog.String("error", err.Error()))
		}
	}
}

// GetVideo returns the public metadata of a video
// @Summary Get video metadata
// @Description Processing status, duration and view count
// @Tags videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} types.VideoSnapshot
// @Failure 404 {object} response.Response "Video not found"
// @Failure 500 {object} response.Response "Internal server error"
// @Router /api/video/{id} [get]
func (h *Handler) GetVideo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := h.lookup(w, r)
		if !ok {
			return
		}
		response.WriteJSON(w, http.StatusOK, video.Snapshot())
	}
}

// Thumbnail serves the generated thumbnail
// @Summary Get video thumbnail
// @Description JPEG thumbnail, or a redirect to object storage when mirroring is enabled
// @Tags videos
// @Produce jpeg
// @Param id path string true "Video ID"
// @Success 200 {file} binary
// @Success 302 "Redirect to presigned URL"
// @Failure 404 {object} response.Response "Thumbnail not found"
// @Router /api/video/{id}/thumbnail [get]
func (h *Handler) Thumbnail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := h.lookup(w, r)
		if !ok {
			return
		}
		if !video.Processed() || video.ThumbnailRef == nil {
			response.WriteError(w, http.StatusNotFound, errors.New("thumbnail not available"))
			return
		}

		if h.Thumbnails != nil {
			u, err := h.Thumbnails.PresignedThumbnailURL(r.Context(), video.ID)
			if err == nil {
				http.Redirect(w, r, u.String(), http.StatusFound)
				return
			}
			slog.Warn("Failed to presign thumbnail, serving from disk", slog.String("video_id", video.ID), slog.String("error", err.Error()))
		}

		path, err := h.Layout.ThumbnailPath(video.ID)
		if err != nil {
			response.WriteError(w, http.StatusNotFound, errors.New("thumbnail not available"))
			return
		}
		f, err := os.Open(path)
		if err != nil {
			response.WriteError(w, http.StatusNotFound, errors.New("thumbnail not available"))
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to read thumbnail"))
			return
		}

		w.Header().Set("Content-Type", stream.ContentTypeFor(filepath.Ext(path)))
		http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
	}
}

// ListVideos returns the caller's videos, newest first
// @Summary List my videos
// @Tags videos
// @Produce json
// @Param skip query int false "Offset" default(0)
// @Param limit query int false "Page size (max 100, 0 means default)" default(20)
// @Success 200 {object} response.Response{data=[]types.VideoSnapshot}
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /api/videos [get]
func (h *Handler) ListVideos() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
			return
		}

		skip, err := queryInt(r, "skip", 0)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, err)
			return
		}
		limit, err := queryInt(r, "limit", defaultListLimit)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, err)
			return
		}
		switch {
		case limit == 0:
			limit = defaultListLimit
		case limit > maxListLimit:
			limit = maxListLimit
		}

		records, err := h.Store.ListVideosByOwner(r.Context(), userID, skip, limit)
		if err != nil {
			slog.Error("Failed to list videos", slog.String("user_id", userID), slog.String("error", err.Error()))
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to list videos"))
			return
		}

		snapshots := make([]types.VideoSnapshot, 0, len(records))
		for _, v := range records {
			snapshots = append(snapshots, v.Snapshot())
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Videos fetched successfully", snapshots))
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// DeleteVideo removes a video and its files
// @Summary Delete a video
// @Description Owner only. Deleting a video that is already gone succeeds.
// @Tags videos
// @Produce json
// @Param id path string true "Video ID"
// @Success 200 {object} response.Response "Video deleted"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 403 {object} response.Response "Not the owner"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /api/video/{id} [delete]
func (h *Handler) DeleteVideo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
			return
		}

		id := r.PathValue("id")
		video, err := h.Store.GetVideo(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			h.removeOrphan(w, id)
			return
		}
		if err != nil {
			slog.Error("Failed to get video", slog.String("video_id", id), slog.String("error", err.Error()))
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to delete video"))
			return
		}

		if video.OwnerID != userID {
			response.WriteError(w, http.StatusForbidden, errNotOwner)
			return
		}

		// Files go first so a failed delete leaves the record for a retry.
		// Open streams keep reading the unlinked file until they finish.
		removed, err := h.Layout.RemoveAll(video.ID, video.Filename)
		if err != nil {
			slog.Error("Failed to remove video files", slog.String("video_id", id), slog.String("error", err.Error()))
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to delete video"))
			return
		}

		if h.Thumbnails != nil && video.ThumbnailRef != nil {
			if err := h.Thumbnails.DeleteThumbnail(context.WithoutCancel(r.Context()), id); err != nil {
				slog.Warn("Failed to delete mirrored thumbnail", slog.String("video_id", id), slog.String("error", err.Error()))
			}
		}

		if _, err := h.Store.DeleteVideo(r.Context(), id); err != nil {
			slog.Error("Failed to delete video record", slog.String("video_id", id), slog.String("error", err.Error()))
			response.WriteError(w, http.StatusInternalServerError, errors.New("failed to delete video"))
			return
		}

		if err := h.Publisher.PublishVideoDeleted(userID, id); err != nil {
			slog.Warn("Failed to publish delete event", slog.String("video_id", id), slog.String("error", err.Error()))
		}

		slog.Info("Video deleted", slog.String("video_id", id), slog.Int("files_removed", removed))
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Video deleted successfully", nil))
	}
}

// removeOrphan finishes a delete whose record is already gone. Files left by
// an earlier partial delete are found by id alone.
func (h *Handler) removeOrphan(w http.ResponseWriter, id string) {
	removed, err := h.Layout.RemoveByID(id)
	switch {
	case errors.Is(err, layout.ErrInvalidFilename):
		// Not an id this service could have issued; nothing to clean.
	case err != nil:
		slog.Error("Failed to remove orphaned video files", slog.String("video_id", id), slog.String("error", err.Error()))
		response.WriteError(w, http.StatusInternalServerError, errors.New("failed to delete video"))
		return
	case removed > 0:
		slog.Info("Removed orphaned video files", slog.String("video_id", id), slog.Int("files_removed", removed))
	}
	response.WriteJSON(w, http.StatusOK, response.RequestOK("Video deleted successfully", nil))
}

// lookup loads the record named by the {id} path value, writing 404 or 500
// itself when it cannot.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*types.VideoRecord, bool) {
	id := r.PathValue("id")
	video, err := h.Store.GetVideo(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		response.WriteError(w, http.StatusNotFound, errNotFound)
		return nil, false
	}
	if err != nil {
		slog.Error("Failed to get video", slog.String("video_id", id), slog.String("error", err.Error()))
		response.WriteError(w, http.StatusInternalServerError, errors.New("failed to get video"))
		return nil, false
	}
	return video, true
}
