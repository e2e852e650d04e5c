package listings

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// ListQuery filters the listing browse endpoint.
type ListQuery struct {
	StoreID    *uuid.UUID
	CategoryID *uuid.UUID
	UserID     *uuid.UUID
	Query      string
	Page       pagination.Page
}

// Repository persists listings. Value changes are written as jsonb merges so
// the API and upload worker never overwrite each other's keys.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	FindBySlug(ctx context.Context, slug string) (*models.Listing, error)
	ApplyPatch(ctx context.Context, id uuid.UUID, unset []string, doc []byte) error
	MergeValues(ctx context.Context, id uuid.UUID, doc []byte) error
	SetUploadState(ctx context.Context, id uuid.UUID, status enums.UploadStatus, failure *string) error
	AttachUploadJob(ctx context.Context, id uuid.UUID, jobID string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q ListQuery) ([]models.Listing, int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// ApplyPatch removes unset keys and merges set keys in one statement.
func (r *repository) ApplyPatch(ctx context.Context, id uuid.UUID, unset []string, doc []byte) error {
	if unset == nil {
		unset = []string{}
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE listings SET "values" = ("values" - ?::text[]) || ?::jsonb, updated_at = now() WHERE id = ?`,
		pq.StringArray(unset), string(doc), id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MergeValues merges doc into the stored values.
func (r *repository) MergeValues(ctx context.Context, id uuid.UUID, doc []byte) error {
	return r.ApplyPatch(ctx, id, nil, doc)
}

// SetUploadState records the background upload outcome.
func (r *repository) SetUploadState(ctx context.Context, id uuid.UUID, status enums.UploadStatus, failure *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		Updates(map[string]any{"upload_status": status, "upload_error": failure}).Error
}

// AttachUploadJob stores the job id callers poll for progress.
func (r *repository) AttachUploadJob(ctx context.Context, id uuid.UUID, jobID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		Updates(map[string]any{"upload_job_id": jobID, "upload_status": enums.UploadStatusPending, "upload_error": nil}).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Listing{}, "id = ?", id).Error
}

// List returns one page of active listings plus the total match count.
// A category filter matches the category and every descendant.
func (r *repository) List(ctx context.Context, q ListQuery) ([]models.Listing, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.Listing{}).Where("is_active = ?", true)
	if q.StoreID != nil {
		base = base.Where("store_id = ?", *q.StoreID)
	}
	if q.UserID != nil {
		base = base.Where("user_id = ?", *q.UserID)
	}
	if q.CategoryID != nil {
		base = base.Where("category_path @> ARRAY[?]::uuid[]", q.CategoryID.String())
	}
	if term := strings.TrimSpace(q.Query); term != "" {
		base = base.Where(`coalesce("values"->>'title', "values"->>'name', '') ILIKE ?`, "%"+escapeLike(term)+"%")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Listing
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Scopes(q.Page.Scope).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
