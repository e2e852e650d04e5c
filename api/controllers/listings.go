package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/listings"
	"github.com/angelmondragon/bazaar-backend/internal/uploads"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/queue"
)

type listingService interface {
	CreateListing(ctx context.Context, input listings.CreateInput) (*listings.ListingDTO, *listings.UploadHandle, error)
	Update(ctx context.Context, input listings.UpdateInput) (*listings.ListingDTO, *listings.UploadHandle, error)
	Delete(ctx context.Context, id uuid.UUID, actor listings.Actor) error
	Get(ctx context.Context, idOrSlug string) (*listings.ListingDTO, error)
	List(ctx context.Context, query listings.ListQuery) (*listings.ListResult, error)
	UploadJob(ctx context.Context, jobID string) (*queue.Job, error)
}

type listingDraftRequest struct {
	CategoryID       string          `json:"category_id" validate:"required,uuid"`
	Values           map[string]any  `json:"values"`
	Images           []uploads.Image `json:"images" validate:"omitempty,dive"`
	FileFieldMapping map[int]string  `json:"file_field_mapping"`
	NotifyUserIDs    []uuid.UUID     `json:"notify_user_ids"`
}

func (req listingDraftRequest) toInput(storeID, userID uuid.UUID) listings.CreateInput {
	values := req.Values
	if values == nil {
		values = map[string]any{}
	}
	return listings.CreateInput{
		StoreID:          storeID,
		CategoryID:       uuid.MustParse(req.CategoryID),
		UserID:           userID,
		Values:           values,
		Images:           req.Images,
		FileFieldMapping: req.FileFieldMapping,
		NotifyUserIDs:    req.NotifyUserIDs,
	}
}

type updateListingRequest struct {
	Values           map[string]any  `json:"values"`
	Images           []uploads.Image `json:"images"`
	FileFieldMapping map[int]string  `json:"file_field_mapping"`
}

type listingWriteResponse struct {
	Listing *listings.ListingDTO   `json:"listing"`
	Upload  *listings.UploadHandle `json:"upload,omitempty"`
}

// CreateListing creates a listing in the store named by the path. Queued
// images are acknowledged with an upload handle the client can poll. maxBody
// caps the request, inline images included.
func CreateListing(svc listingService, maxBody int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("listing service"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req listingDraftRequest
		if err := validators.DecodeJSONBodyLimit(r, &req, maxBody); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, upload, err := svc.CreateListing(r.Context(), req.toInput(storeID, userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if upload != nil {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, listingWriteResponse{Listing: listing, Upload: upload})
	}
}

func UpdateListing(svc listingService, maxBody int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("listing service"))
			return
		}
		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateListingRequest
		if err := validators.DecodeJSONBodyLimit(r, &req, maxBody); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, upload, err := svc.Update(r.Context(), listings.UpdateInput{
			ID:               id,
			Actor:            actor,
			Values:           req.Values,
			Images:           req.Images,
			FileFieldMapping: req.FileFieldMapping,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listingWriteResponse{Listing: listing, Upload: upload})
	}
}

func DeleteListing(svc listingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("listing service"))
			return
		}
		actor, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}

// GetListing resolves either a listing id or its slug.
func GetListing(svc listingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("listing service"))
			return
		}
		key := strings.TrimSpace(chi.URLParam(r, "id"))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "listing id or slug required"))
			return
		}
		listing, err := svc.Get(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

func ListListings(svc listingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("listing service"))
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := listings.ListQuery{
			Query: validators.SanitizeString(r.URL.Query().Get("q"), 200),
			Page:  pagination.Page{Page: page, Limit: limit},
		}
		for key, dest := range map[string]**uuid.UUID{
			"storeId":    &query.StoreID,
			"categoryId": &query.CategoryID,
			"userId":     &query.UserID,
		} {
			raw := strings.TrimSpace(r.URL.Query().Get(key))
			if raw == "" {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key))
				return
			}
			*dest = &id
		}

		result, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UploadStatus exposes the queue job behind a listing's image upload.
func UploadStatus(svc listingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("listing service"))
			return
		}
		jobID := strings.TrimSpace(chi.URLParam(r, "jobId"))
		if jobID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "job id required"))
			return
		}
		job, err := svc.UploadJob(r.Context(), jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, job)
	}
}
