package records

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a medical record.
type Status string

const (
	StatusUploaded    Status = "UPLOADED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusCompleted   Status = "COMPLETED"
)

// AllowedContentTypes are the payload types a patient may upload.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
}

// Record is a single uploaded medical document. FileData is only populated
// when the payload is explicitly loaded; list queries return metadata only.
type Record struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"ownerId"`
	Title       string     `json:"title"`
	Category    string     `json:"category,omitempty"`
	ReportDate  string     `json:"reportDate,omitempty"`
	FileName    string     `json:"fileName"`
	ContentType string     `json:"contentType"`
	FileSize    int64      `json:"fileSize"`
	FileData    []byte     `json:"-"`
	Status      Status     `json:"status"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Stats summarizes a patient's records for the dashboard.
type Stats struct {
	Total       int `json:"total"`
	Uploaded    int `json:"uploaded"`
	UnderReview int `json:"underReview"`
	Completed   int `json:"completed"`
}
