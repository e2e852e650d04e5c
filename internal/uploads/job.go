package uploads

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/queue"
)

// JobUploadListingImages is the job name used on the imageUpload queue.
const JobUploadListingImages = "upload-listing-images"

// DefaultDelay keeps workers from racing the listing's own commit.
const DefaultDelay = 2 * time.Second

// Image is one queued file. Data is base64 encoded.
type Image struct {
	Data         string `json:"data"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName"`
	FieldIndex   int    `json:"fieldIndex"`
}

// Job is the imageUpload payload. FileFieldMapping maps an image field index
// to the listing value it fills.
type Job struct {
	ListingID        uuid.UUID      `json:"listingId"`
	CategoryID       uuid.UUID      `json:"categoryId"`
	Images           []Image        `json:"images"`
	FileFieldMapping map[int]string `json:"fileFieldMapping,omitempty"`
}

// FieldName resolves the value key for an image index. Unmapped indices get a
// synthetic "image_<index>" key.
func (j Job) FieldName(index int) string {
	if name, ok := j.FileFieldMapping[index]; ok && name != "" {
		return name
	}
	return "image_" + strconv.Itoa(index)
}

// Client enqueues upload jobs.
type Client struct {
	queue *queue.Queue
	delay time.Duration
}

func NewClient(q *queue.Queue, delay time.Duration) (*Client, error) {
	if q == nil {
		return nil, errors.New("image upload queue required")
	}
	if delay < 0 {
		delay = 0
	}
	return &Client{queue: q, delay: delay}, nil
}

// Enqueue schedules job and returns the queue record used for polling.
func (c *Client) Enqueue(ctx context.Context, job Job) (*queue.Job, error) {
	if job.ListingID == uuid.Nil {
		return nil, errors.New("listing id required")
	}
	if len(job.Images) == 0 {
		return nil, errors.New("no images to upload")
	}
	record, err := c.queue.Enqueue(ctx, JobUploadListingImages, job, queue.EnqueueOptions{Delay: c.delay})
	if err != nil {
		return nil, fmt.Errorf("enqueue image upload: %w", err)
	}
	return record, nil
}

// Status returns the queue record for a job id.
func (c *Client) Status(ctx context.Context, jobID string) (*queue.Job, error) {
	return c.queue.Get(ctx, jobID)
}
