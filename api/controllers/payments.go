package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/listings"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/uploads"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type paymentService interface {
	CreateIntent(ctx context.Context, input listings.CreateInput) (*payments.IntentResult, error)
	Confirm(ctx context.Context, userID uuid.UUID, reference string) (*payments.ConfirmResult, error)
}

type listingIntentRequest struct {
	StoreID          string          `json:"store_id" validate:"required,uuid"`
	CategoryID       string          `json:"category_id" validate:"required,uuid"`
	Values           map[string]any  `json:"values"`
	Images           []uploads.Image `json:"images"`
	FileFieldMapping map[int]string  `json:"file_field_mapping"`
	NotifyUserIDs    []uuid.UUID     `json:"notify_user_ids"`
}

type confirmPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

// CreateListingIntent parks a validated listing draft and returns the Stripe
// client secret the buyer pays against.
func CreateListingIntent(svc paymentService, maxBody int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("payment service"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req listingIntentRequest
		if err := validators.DecodeJSONBodyLimit(r, &req, maxBody); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draft := listingDraftRequest{
			CategoryID:       req.CategoryID,
			Values:           req.Values,
			Images:           req.Images,
			FileFieldMapping: req.FileFieldMapping,
			NotifyUserIDs:    req.NotifyUserIDs,
		}

		result, err := svc.CreateIntent(r.Context(), draft.toInput(uuid.MustParse(req.StoreID), userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ConfirmPayment turns a paid draft into a listing. Confirming twice returns
// the listing created the first time.
func ConfirmPayment(svc paymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("payment service"))
			return
		}
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), userID, req.Reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.AlreadyConfirmed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}
