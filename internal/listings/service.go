package listings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/categories"
	"github.com/angelmondragon/bazaar-backend/internal/subscriptions"
	"github.com/angelmondragon/bazaar-backend/internal/uploads"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/queue"
)

const slugConstraint = "listings_slug_key"

type categoryLookup interface {
	Leaf(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

type eligibilityGate interface {
	CanCreateListing(ctx context.Context, userID uuid.UUID) (subscriptions.Eligibility, error)
	ReserveListing(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type uploadQueue interface {
	Enqueue(ctx context.Context, job uploads.Job) (*queue.Job, error)
	Status(ctx context.Context, jobID string) (*queue.Job, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the listing pipeline: entitlement, schema validation, storage,
// profile bookkeeping and the background upload hand-off.
type Service interface {
	CreateListing(ctx context.Context, input CreateInput) (*ListingDTO, *UploadHandle, error)
	ValidateDraft(ctx context.Context, input CreateInput) error
	Update(ctx context.Context, input UpdateInput) (*ListingDTO, *UploadHandle, error)
	Delete(ctx context.Context, id uuid.UUID, actor Actor) error
	Get(ctx context.Context, idOrSlug string) (*ListingDTO, error)
	List(ctx context.Context, query ListQuery) (*ListResult, error)
	UploadJob(ctx context.Context, jobID string) (*queue.Job, error)
}

type ServiceParams struct {
	Repository      Repository
	Categories      categoryLookup
	Gate            eligibilityGate
	Profiles        users.Profiles
	Outbox          outbox.Emitter
	Uploads         uploadQueue
	TxRunner        txRunner
	Logger          *logger.Logger
	SideEffects     metrics.SideEffectRecorder
	MaxQueuedImages int
}

type service struct {
	repo        Repository
	categories  categoryLookup
	gate        eligibilityGate
	profiles    users.Profiles
	outbox      outbox.Emitter
	uploads     uploadQueue
	tx          txRunner
	logg        *logger.Logger
	sideEffects metrics.SideEffectRecorder
	maxImages   int
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listings repository required")
	case params.Categories == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "category lookup required")
	case params.Gate == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription gate required")
	case params.Profiles == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profiles repository required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case params.Uploads == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "upload queue required")
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.SideEffects == nil {
		params.SideEffects = metrics.NopSideEffects{}
	}
	if params.MaxQueuedImages <= 0 {
		params.MaxQueuedImages = 10
	}
	return &service{
		repo:        params.Repository,
		categories:  params.Categories,
		gate:        params.Gate,
		profiles:    params.Profiles,
		outbox:      params.Outbox,
		uploads:     params.Uploads,
		tx:          params.TxRunner,
		logg:        params.Logger,
		sideEffects: params.SideEffects,
		maxImages:   params.MaxQueuedImages,
	}, nil
}

// CreateListing runs the whole creation flow. It is shared by the HTTP create
// route and payment confirmation.
func (s *service) CreateListing(ctx context.Context, input CreateInput) (*ListingDTO, *UploadHandle, error) {
	if !input.Prepaid {
		eligibility, err := s.gate.CanCreateListing(ctx, input.UserID)
		if err != nil {
			return nil, nil, err
		}
		if !eligibility.CanCreate {
			return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, eligibility.Reason)
		}
	}

	category, values, err := s.validate(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	path, err := categories.ListingPath(category)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "category path is corrupt")
	}
	doc, err := json.Marshal(values)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode listing values")
	}

	listing := &models.Listing{
		ID:           uuid.New(),
		StoreID:      input.StoreID,
		CategoryID:   category.ID,
		UserID:       input.UserID,
		CategoryPath: dbtypes.UUIDArray(path),
		Values:       datatypes.JSON(doc),
		Slug:         BuildSlug(values),
		UploadStatus: enums.UploadStatusNone,
		IsActive:     true,
	}
	if len(input.Images) > 0 {
		listing.UploadStatus = enums.UploadStatusPending
	}

	title, _ := values.Text("title")
	if title == "" {
		title, _ = values.Text("name")
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventListingCreated,
		AggregateType: enums.AggregateListing,
		AggregateID:   listing.ID,
		Actor:         &outbox.ActorRef{UserID: input.UserID, StoreID: &listing.StoreID},
		Data: outbox.ListingCreatedEvent{
			ListingID:  listing.ID,
			StoreID:    listing.StoreID,
			CategoryID: listing.CategoryID,
			UserID:     listing.UserID,
			Slug:       listing.Slug,
			Title:      title,
			Image:      firstImageURL(values),
			Recipients: input.NotifyUserIDs,
		},
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if !input.Prepaid {
			if err := s.gate.ReserveListing(ctx, tx, input.UserID); err != nil {
				return err
			}
		}
		if err := s.repo.WithTx(tx).Create(ctx, listing); err != nil {
			if db.IsUniqueViolation(err, slugConstraint) {
				return pkgerrors.New(pkgerrors.CodeConflict, "listing slug already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
		}
		collection := users.CollectionFor(category.Kind)
		if err := s.profiles.WithTx(tx).Append(ctx, input.UserID, collection, listing.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue listing.created")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": listing.ID.String(),
		"store_id":   listing.StoreID.String(),
		"user_id":    listing.UserID.String(),
	})
	handle := s.enqueueUploads(ctx, listing, input.Images, input.FileFieldMapping)
	s.logg.Info(ctx, "listing created")
	return FromModel(listing), handle, nil
}

// ValidateDraft runs every check CreateListing makes before persisting.
func (s *service) ValidateDraft(ctx context.Context, input CreateInput) error {
	_, _, err := s.validate(ctx, input)
	return err
}

func (s *service) validate(ctx context.Context, input CreateInput) (*models.Category, Values, error) {
	if input.StoreID == uuid.Nil {
		return nil, nil, pkgerrors.Validation("invalid listing", pkgerrors.FieldErrors{{Field: "store_id", Message: "is required"}})
	}
	if input.CategoryID == uuid.Nil {
		return nil, nil, pkgerrors.Validation("invalid listing", pkgerrors.FieldErrors{{Field: "category_id", Message: "is required"}})
	}
	if len(input.Images) > s.maxImages {
		return nil, nil, pkgerrors.Validation("invalid listing", pkgerrors.FieldErrors{{Field: "images", Message: "too many images"}})
	}

	category, err := s.categories.Leaf(ctx, input.CategoryID)
	if err != nil {
		return nil, nil, err
	}
	if category.StoreID != input.StoreID {
		return nil, nil, pkgerrors.Validation("invalid listing", pkgerrors.FieldErrors{{Field: "category_id", Message: "does not belong to this store"}})
	}

	fields := []models.FieldSchema(category.Fields)
	opts := ValidateOptions{}
	if len(input.Images) > 0 {
		opts.SkipRequiredFor = uploadFieldNames(fields)
	}
	values, problems := Validate(fields, input.Values, opts)
	if len(problems) > 0 {
		return nil, nil, pkgerrors.Validation("listing values are invalid", problems)
	}
	return category, values, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*ListingDTO, *UploadHandle, error) {
	listing, err := s.load(ctx, input.ID)
	if err != nil {
		return nil, nil, err
	}
	if !canModify(listing, input.Actor) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner or an admin can modify this listing")
	}
	if len(input.Images) > s.maxImages {
		return nil, nil, pkgerrors.Validation("invalid listing", pkgerrors.FieldErrors{{Field: "images", Message: "too many images"}})
	}

	category, err := s.categories.Leaf(ctx, listing.CategoryID)
	if err != nil {
		return nil, nil, err
	}
	fields := []models.FieldSchema(category.Fields)
	opts := ValidateOptions{}
	if len(input.Images) > 0 {
		opts.SkipRequiredFor = uploadFieldNames(fields)
	}
	patch, problems := ValidateUpdate(fields, input.Values, opts)
	if len(problems) > 0 {
		return nil, nil, pkgerrors.Validation("listing values are invalid", problems)
	}

	if !patch.Empty() {
		doc, err := json.Marshal(patch.Set)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode listing values")
		}
		if err := s.repo.ApplyPatch(ctx, listing.ID, patch.Unset, doc); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
			}
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing values")
		}
	}

	ctx = s.logg.WithField(ctx, "listing_id", listing.ID.String())
	handle := s.enqueueUploads(ctx, listing, input.Images, input.FileFieldMapping)

	updated, err := s.load(ctx, listing.ID)
	if err != nil {
		return nil, nil, err
	}
	return FromModel(updated), handle, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	listing, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(listing, actor) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner or an admin can delete this listing")
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Delete(ctx, listing.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete listing")
		}
		if err := s.profiles.WithTx(tx).RemoveListing(ctx, listing.UserID, listing.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profiles")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "listing_id", listing.ID.String()), "listing deleted")
	return nil
}

func (s *service) Get(ctx context.Context, idOrSlug string) (*ListingDTO, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id or slug is required")
	}
	var (
		listing *models.Listing
		err     error
	)
	if id, parseErr := uuid.Parse(idOrSlug); parseErr == nil {
		listing, err = s.repo.FindByID(ctx, id)
	} else {
		listing, err = s.repo.FindBySlug(ctx, idOrSlug)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return FromModel(listing), nil
}

func (s *service) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	query.Page = query.Page.Normalize()
	rows, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
	}
	items := make([]ListingDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &ListResult{Items: items, Pagination: pagination.MetaFor(query.Page, total)}, nil
}

func (s *service) UploadJob(ctx context.Context, jobID string) (*queue.Job, error) {
	job, err := s.uploads.Status(ctx, jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "upload job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load upload job")
	}
	return job, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return listing, nil
}

// enqueueUploads hands queued images to the worker after the listing is
// durable. Enqueue failures are logged and recorded on the listing; they never
// fail the request.
func (s *service) enqueueUploads(ctx context.Context, listing *models.Listing, images []uploads.Image, mapping map[int]string) *UploadHandle {
	if len(images) == 0 {
		return nil
	}
	job, err := s.uploads.Enqueue(ctx, uploads.Job{
		ListingID:        listing.ID,
		CategoryID:       listing.CategoryID,
		Images:           images,
		FileFieldMapping: mapping,
	})
	if err != nil {
		s.sideEffects.Failed(metrics.SideEffectUploadEnqueue)
		s.logg.Error(ctx, "enqueue image upload failed", err)
		reason := "image upload could not be queued"
		if stateErr := s.repo.SetUploadState(ctx, listing.ID, enums.UploadStatusFailed, &reason); stateErr != nil {
			s.logg.Error(ctx, "record upload enqueue failure", stateErr)
		}
		listing.UploadStatus = enums.UploadStatusFailed
		listing.UploadError = &reason
		return nil
	}
	if err := s.repo.AttachUploadJob(ctx, listing.ID, job.ID); err != nil {
		s.logg.Error(ctx, "attach upload job failed", err)
	}
	listing.UploadStatus = enums.UploadStatusPending
	listing.UploadJobID = &job.ID
	return &UploadHandle{JobID: job.ID, Status: string(job.Status)}
}

func canModify(listing *models.Listing, actor Actor) bool {
	return actor.IsAdmin || (actor.UserID != uuid.Nil && actor.UserID == listing.UserID)
}

func uploadFieldNames(fields []models.FieldSchema) []string {
	var names []string
	for _, f := range fields {
		if f.Type.IsUpload() {
			names = append(names, f.Name)
		}
	}
	return names
}

func firstImageURL(values Values) string {
	for _, key := range values.Keys() {
		switch v := values[key].(type) {
		case FileValue:
			return v.URL
		case FileListValue:
			if len(v) > 0 {
				return v[0].URL
			}
		}
	}
	return ""
}
