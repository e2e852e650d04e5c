package uploads

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/queue"
	"github.com/angelmondragon/bazaar-backend/pkg/storage/gcs"
)

const (
	batchSize        = 3
	progressStart    = 10
	progressUploaded = 90
	progressPatching = 95
	progressDone     = 100
	listingsFolder   = "listings"
)

type listingStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	MergeValues(ctx context.Context, id uuid.UUID, doc []byte) error
	SetUploadState(ctx context.Context, id uuid.UUID, status enums.UploadStatus, failure *string) error
}

// FailureNotifier tells the listing owner that queued files were dropped.
type FailureNotifier interface {
	UploadFailed(ctx context.Context, listing *models.Listing, reason string) error
}

// file is the descriptor written into listing values.
type file struct {
	URL          string `json:"url"`
	Path         string `json:"path,omitempty"`
	OriginalName string `json:"originalName,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// Processor handles imageUpload jobs.
type Processor struct {
	uploader gcs.Uploader
	listings listingStore
	notifier FailureNotifier
	logg     *logger.Logger
}

func NewProcessor(uploader gcs.Uploader, listings listingStore, notifier FailureNotifier, logg *logger.Logger) (*Processor, error) {
	if uploader == nil {
		return nil, errors.New("uploader required")
	}
	if listings == nil {
		return nil, errors.New("listing store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Processor{uploader: uploader, listings: listings, notifier: notifier, logg: logg}, nil
}

// Handle uploads every image of the job and patches the listing once. A
// failed image fails the attempt and nothing is written.
func (p *Processor) Handle(ctx context.Context, job *queue.Job, reporter queue.Reporter) error {
	var payload Job
	if err := job.Decode(&payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode upload job: %w", err))
	}
	if payload.ListingID == uuid.Nil {
		return queue.Permanent(errors.New("upload job missing listing id"))
	}
	ctx = p.logg.WithField(ctx, "listing_id", payload.ListingID.String())

	buffers := make([][]byte, len(payload.Images))
	for i, img := range payload.Images {
		data, err := base64.StdEncoding.DecodeString(stripDataURI(img.Data))
		if err != nil {
			return queue.Permanent(fmt.Errorf("decode image %d: %w", i, err))
		}
		buffers[i] = data
	}

	if err := p.listings.SetUploadState(ctx, payload.ListingID, enums.UploadStatusProcessing, nil); err != nil {
		p.logg.Warn(ctx, "mark upload processing failed: "+err.Error())
	}
	report(ctx, reporter, progressStart)

	uploaded := make([]file, len(payload.Images))
	folder := listingsFolder + "/" + payload.ListingID.String()
	for start := 0; start < len(payload.Images); start += batchSize {
		end := start + batchSize
		if end > len(payload.Images) {
			end = len(payload.Images)
		}
		group, groupCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			img := payload.Images[i]
			group.Go(func() error {
				obj, err := p.uploader.Upload(groupCtx, folder, img.OriginalName, img.MimeType, buffers[i])
				if err != nil {
					return fmt.Errorf("upload image %d: %w", i, err)
				}
				uploaded[i] = file{
					URL:          obj.URL,
					Path:         obj.PublicID,
					OriginalName: img.OriginalName,
					MimeType:     obj.ContentType,
					Size:         obj.Size,
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			p.discard(ctx, uploaded)
			return err
		}
		report(ctx, reporter, progressStart+(progressUploaded-progressStart)*end/len(payload.Images))
	}

	doc, err := BuildPatch(payload, uploaded)
	if err != nil {
		p.discard(ctx, uploaded)
		return queue.Permanent(err)
	}
	report(ctx, reporter, progressPatching)
	if err := p.listings.MergeValues(ctx, payload.ListingID, doc); err != nil {
		p.discard(ctx, uploaded)
		return fmt.Errorf("patch listing values: %w", err)
	}
	if err := p.listings.SetUploadState(ctx, payload.ListingID, enums.UploadStatusCompleted, nil); err != nil {
		p.logg.Warn(ctx, "mark upload completed failed: "+err.Error())
	}
	report(ctx, reporter, progressDone)
	p.logg.Info(p.logg.WithField(ctx, "images", len(uploaded)), "listing images uploaded")
	return nil
}

// discard deletes the objects a failed attempt already stored. The next
// attempt uploads every image again.
func (p *Processor) discard(ctx context.Context, uploaded []file) {
	for _, f := range uploaded {
		if f.Path == "" {
			continue
		}
		if err := p.uploader.Delete(ctx, f.Path); err != nil {
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
				"object": f.Path,
				"error":  err.Error(),
			}), "delete orphaned upload failed")
		}
	}
}

// BuildPatch groups uploaded files by target field. A field receiving several
// files gets an array; a single file is stored as an object.
func BuildPatch(job Job, uploaded []file) ([]byte, error) {
	grouped := map[string][]file{}
	var order []string
	for i, img := range job.Images {
		if i >= len(uploaded) {
			break
		}
		name := job.FieldName(img.FieldIndex)
		if _, seen := grouped[name]; !seen {
			order = append(order, name)
		}
		grouped[name] = append(grouped[name], uploaded[i])
	}
	patch := make(map[string]any, len(order))
	for _, name := range order {
		files := grouped[name]
		if len(files) == 1 {
			patch[name] = files[0]
			continue
		}
		patch[name] = files
	}
	doc, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode values patch: %w", err)
	}
	return doc, nil
}

// OnFailed records the terminal failure on the listing and notifies its owner.
func (p *Processor) OnFailed(ctx context.Context, job *queue.Job, cause error) {
	var payload Job
	if err := job.Decode(&payload); err != nil || payload.ListingID == uuid.Nil {
		p.logg.Error(ctx, "upload job failed with unreadable payload", cause)
		return
	}
	ctx = p.logg.WithField(ctx, "listing_id", payload.ListingID.String())
	reason := "image upload failed"
	if cause != nil {
		reason = cause.Error()
	}
	if err := p.listings.SetUploadState(ctx, payload.ListingID, enums.UploadStatusFailed, &reason); err != nil {
		p.logg.Error(ctx, "mark upload failed", err)
	}
	if p.notifier == nil {
		return
	}
	listing, err := p.listings.FindByID(ctx, payload.ListingID)
	if err != nil {
		p.logg.Error(ctx, "load listing for upload failure notice", err)
		return
	}
	if err := p.notifier.UploadFailed(ctx, listing, reason); err != nil {
		p.logg.Error(ctx, "upload failure notice", err)
	}
}

func report(ctx context.Context, reporter queue.Reporter, percent int) {
	if reporter == nil {
		return
	}
	_ = reporter.Progress(ctx, percent)
}

// stripDataURI accepts both raw base64 and "data:<mime>;base64," strings.
func stripDataURI(data string) string {
	if idx := strings.Index(data, ";base64,"); idx >= 0 && strings.HasPrefix(data, "data:") {
		return data[idx+len(";base64,"):]
	}
	return data
}
