package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/middleware"
	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

const testAccount = "0x1111111111111111111111111111111111111111"

type collectionServiceMock struct {
	lastActor  *models.JWTClaims
	lastID     int64
	lastVerify dto.VerifyCollectionRequest
	err        error
}

func (m *collectionServiceMock) Estimate(req dto.EstimateRewardRequest) (*dto.EstimateRewardResponse, error) {
	return &dto.EstimateRewardResponse{Total: "7.0"}, m.err
}

func (m *collectionServiceMock) RequestCollection(_ context.Context, actor *models.JWTClaims, req dto.CreateCollectionRequest) (*models.CollectionRequest, error) {
	m.lastActor = actor
	if m.err != nil {
		return nil, m.err
	}
	return &models.CollectionRequest{ID: 1, Requester: actor.Account, Status: models.CollectionStatusRequested, PendingReward: decimal.RequireFromString("7.0")}, nil
}

func (m *collectionServiceMock) Get(_ context.Context, id int64) (*models.CollectionRequest, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return &models.CollectionRequest{ID: id}, nil
}

func (m *collectionServiceMock) ListAvailable(_ context.Context, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error) {
	return []models.CollectionRequest{{ID: 1}}, &models.Pagination{Offset: offset, Limit: limit, TotalCount: 1}, m.err
}

func (m *collectionServiceMock) transition(actor *models.JWTClaims, id int64, status models.CollectionStatus) (*models.CollectionRequest, error) {
	m.lastActor, m.lastID = actor, id
	if m.err != nil {
		return nil, m.err
	}
	return &models.CollectionRequest{ID: id, Status: status}, nil
}

func (m *collectionServiceMock) Accept(_ context.Context, actor *models.JWTClaims, id int64) (*models.CollectionRequest, error) {
	return m.transition(actor, id, models.CollectionStatusAccepted)
}

func (m *collectionServiceMock) Complete(_ context.Context, actor *models.JWTClaims, id int64) (*models.CollectionRequest, error) {
	return m.transition(actor, id, models.CollectionStatusCompleted)
}

func (m *collectionServiceMock) Cancel(_ context.Context, actor *models.JWTClaims, id int64) (*models.CollectionRequest, error) {
	return m.transition(actor, id, models.CollectionStatusCancelled)
}

func (m *collectionServiceMock) Verify(_ context.Context, actor *models.JWTClaims, id int64, req dto.VerifyCollectionRequest) (*dto.VerifyCollectionResponse, error) {
	m.lastVerify = req
	res, err := m.transition(actor, id, models.CollectionStatusVerified)
	if err != nil {
		return nil, err
	}
	return &dto.VerifyCollectionResponse{Request: res}, nil
}

func newTestContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Account: testAccount, Role: models.RoleMember})
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func TestCollectionHandlerCreate(t *testing.T) {
	svc := &collectionServiceMock{}
	handler := NewCollectionHandler(svc)
	body, _ := json.Marshal(dto.CreateCollectionRequest{
		WasteItems: []dto.WasteItemInput{{WasteType: "PLASTIC", Amount: 2000}},
		Location:   "Depot 4",
	})
	c, w := newTestContext(http.MethodPost, "/collection-requests", body)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.lastActor)
	assert.Equal(t, testAccount, svc.lastActor.Account)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "REQUESTED", data["status"])
	assert.Equal(t, "7", data["pendingReward"])
}

func TestCollectionHandlerCreateInvalidBody(t *testing.T) {
	handler := NewCollectionHandler(&collectionServiceMock{})
	c, w := newTestContext(http.MethodPost, "/collection-requests", []byte(`{invalid`))
	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCollectionHandlerTransitionsMapErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{appErrors.Clone(appErrors.ErrInvalidState, "cannot accept"), http.StatusConflict, "INVALID_STATE"},
		{appErrors.Clone(appErrors.ErrUnauthorizedActor, "self accept"), http.StatusForbidden, "UNAUTHORIZED_ACTOR"},
		{appErrors.Ledger(context.DeadlineExceeded, "ledger write failed"), http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE"},
		{appErrors.Clone(appErrors.ErrNotFound, "missing"), http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		handler := NewCollectionHandler(&collectionServiceMock{err: tc.err})
		c, w := newTestContext(http.MethodPost, "/collection-requests/5/accept", nil)
		c.Params = gin.Params{{Key: "id", Value: "5"}}

		handler.Accept(c)
		require.Equal(t, tc.status, w.Code, tc.code)
		errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
		assert.Equal(t, tc.code, errBody["code"])
	}
}

func TestCollectionHandlerRejectsBadID(t *testing.T) {
	svc := &collectionServiceMock{}
	handler := NewCollectionHandler(svc)
	c, w := newTestContext(http.MethodPost, "/collection-requests/abc/complete", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	handler.Complete(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.lastID)
}

func TestCollectionHandlerVerifyPassesRuling(t *testing.T) {
	svc := &collectionServiceMock{}
	handler := NewCollectionHandler(svc)
	c, w := newTestContext(http.MethodPost, "/collection-requests/9/verify", []byte(`{"approved":false,"notes":"wrong bags"}`))
	c.Params = gin.Params{{Key: "id", Value: "9"}}

	handler.Verify(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastVerify.Approved)
	assert.False(t, *svc.lastVerify.Approved)
	assert.Equal(t, "wrong bags", svc.lastVerify.Notes)
	assert.EqualValues(t, 9, svc.lastID)
}

func TestCollectionHandlerListAvailablePagination(t *testing.T) {
	handler := NewCollectionHandler(&collectionServiceMock{})
	c, w := newTestContext(http.MethodGet, "/collection-requests/available?offset=10&limit=5", nil)

	handler.ListAvailable(c)
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeEnvelope(t, w)["pagination"].(map[string]interface{})
	assert.EqualValues(t, 10, page["offset"])
	assert.EqualValues(t, 5, page["limit"])
}
