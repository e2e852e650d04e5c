package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type testNotificationsService struct {
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
	bulkDeleteFn  func(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) UnreadCount(context.Context, uuid.UUID) (int64, error) {
	return 3, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

func (s *testNotificationsService) Delete(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (s *testNotificationsService) BulkDelete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if s.bulkDeleteFn != nil {
		return s.bulkDeleteFn(ctx, userID, ids)
	}
	return int64(len(ids)), nil
}

func authedRequest(method, target, body string, userID uuid.UUID, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := req.Context()
	if userID != uuid.Nil {
		ctx = middleware.WithUserID(ctx, userID.String())
	}
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestListNotificationsParsesQuery(t *testing.T) {
	userID := uuid.New()
	var got notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			got = params
			return &notifications.ListResult{Cursor: "next"}, nil
		},
	}

	rec := httptest.NewRecorder()
	ListNotifications(svc, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/notifications?limit=5&unreadOnly=true&cursor=abc", "", userID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, 5, got.Limit)
	assert.True(t, got.UnreadOnly)
	assert.Equal(t, "abc", got.Cursor)
}

func TestListNotificationsRejectsBadLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/notifications?limit=abc", "", uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNotificationsRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/notifications", "", uuid.Nil, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	userID := uuid.New()
	notificationID := uuid.New()
	called := false
	svc := &testNotificationsService{
		markReadFn: func(_ context.Context, uid, nid uuid.UUID) error {
			called = true
			assert.Equal(t, userID, uid)
			assert.Equal(t, notificationID, nid)
			return nil
		},
	}

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", "", userID, map[string]string{"id": notificationID.String()})
	MarkNotificationRead(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	svc := &testNotificationsService{
		markReadFn: func(context.Context, uuid.UUID, uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	id := uuid.New()
	rec := httptest.NewRecorder()
	MarkNotificationRead(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/", "", uuid.New(), map[string]string{"id": id.String()}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := &testNotificationsService{
		markAllReadFn: func(context.Context, uuid.UUID) (int64, error) { return 4, nil },
	}
	rec := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/", "", uuid.New(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]int64
	decodeData(t, rec, &out)
	assert.Equal(t, int64(4), out["updated"])
}

func TestBulkDeleteNotificationsValidatesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	BulkDeleteNotifications(&testNotificationsService{}, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/", `{"ids":[]}`, uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	body, _ := json.Marshal(map[string]any{"ids": ids})
	rec = httptest.NewRecorder()
	BulkDeleteNotifications(&testNotificationsService{}, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/", string(body), uuid.New(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]int64
	decodeData(t, rec, &out)
	assert.Equal(t, int64(2), out["deleted"])
}

type testPreferenceService struct {
	input notifications.PreferenceInput
}

func (s *testPreferenceService) GetPreference(_ context.Context, _, storeID uuid.UUID) (*notifications.PreferenceDTO, error) {
	return &notifications.PreferenceDTO{StoreID: storeID, InApp: true, Email: true, Push: true}, nil
}

func (s *testPreferenceService) UpsertPreference(_ context.Context, _, storeID uuid.UUID, input notifications.PreferenceInput) (*notifications.PreferenceDTO, error) {
	s.input = input
	return &notifications.PreferenceDTO{StoreID: storeID, InApp: true, Email: *input.Email, Push: true}, nil
}

func TestUpdateNotificationPreference(t *testing.T) {
	svc := &testPreferenceService{}
	storeID := uuid.New()
	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPut, "/", `{"email":false}`, uuid.New(), map[string]string{"storeId": storeID.String()})
	UpdateNotificationPreference(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.input.Email)
	assert.False(t, *svc.input.Email)
	assert.Nil(t, svc.input.Push)

	var out notifications.PreferenceDTO
	decodeData(t, rec, &out)
	assert.Equal(t, storeID, out.StoreID)
	assert.False(t, out.Email)
}
