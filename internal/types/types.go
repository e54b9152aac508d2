package types

import "time"

// VideoRecord is the metadata row attached to every stored upload.
type VideoRecord struct {
	ID               string          `json:"id"`
	Filename         string          `json:"filename"`
	OriginalFilename string          `json:"original_filename"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	FileSize         int64           `json:"file_size"`
	DurationSeconds  *float64        `json:"duration,omitempty"`
	ThumbnailRef     *string         `json:"thumbnail,omitempty"`
	Processing       ProcessingState `json:"processing"`
	Views            int64           `json:"views"`
	OwnerID          string          `json:"owner_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Processed reports whether post-upload enrichment finished successfully.
func (v VideoRecord) Processed() bool {
	return v.Processing.Status == StatusCompleted
}

// VideoUploadRequest carries the optional form fields sent alongside the file part.
type VideoUploadRequest struct {
	Title       string `validate:"max=255" json:"title"`
	Description string `validate:"max=5000" json:"description"`
}

// VideoSnapshot is the public view returned by the metadata endpoints.
type VideoSnapshot struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	Filename         string           `json:"filename"`
	OriginalFilename string           `json:"original_filename"`
	FileSize         int64            `json:"file_size"`
	DurationSeconds  *float64         `json:"duration,omitempty"`
	Views            int64            `json:"views"`
	Status           ProcessingStatus `json:"processing_status"`
	FailureReason    string           `json:"failure_reason,omitempty"`
	Processed        bool             `json:"processed"`
	HasThumbnail     bool             `json:"has_thumbnail"`
	UploadDate       string           `json:"upload_date"`
}

func (v VideoRecord) Snapshot() VideoSnapshot {
	return VideoSnapshot{
		ID:               v.ID,
		Title:            v.Title,
		Description:      v.Description,
		Filename:         v.Filename,
		OriginalFilename: v.OriginalFilename,
		FileSize:         v.FileSize,
		DurationSeconds:  v.DurationSeconds,
		Views:            v.Views,
		Status:           v.Processing.Status,
		FailureReason:    v.Processing.Reason,
		Processed:        v.Processed(),
		HasThumbnail:     v.ThumbnailRef != nil,
		UploadDate:       v.CreatedAt.UTC().Format(time.RFC3339),
	}
}
