package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/internal/service"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

type accountServiceMock struct {
	format string
}

func (m *accountServiceMock) Profile(_ context.Context, account string) (*models.AccountProfile, error) {
	return &models.AccountProfile{Account: account, TokenBalance: "6.3"}, nil
}

func (m *accountServiceMock) Ledger(_ context.Context, actor *models.JWTClaims, account string, offset, limit int) ([]models.LedgerEntry, *models.Pagination, error) {
	if actor == nil || actor.Account != account {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "ledger entries are private to their account")
	}
	return []models.LedgerEntry{}, &models.Pagination{Offset: offset, Limit: limit}, nil
}

func (m *accountServiceMock) ExportLedger(_ context.Context, actor *models.JWTClaims, account, format string) (*service.LedgerStatement, error) {
	m.format = format
	if format == "xlsx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return &service.LedgerStatement{Filename: "ledger.csv", ContentType: "text/csv", Data: []byte("Date,Kind\n")}, nil
}

type activityMock struct{ account string }

func (m *activityMock) ListByRequester(_ context.Context, account string, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error) {
	m.account = account
	return []models.CollectionRequest{}, &models.Pagination{Offset: offset, Limit: limit}, nil
}

func (m *activityMock) ListByCollector(_ context.Context, account string, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error) {
	m.account = account
	return []models.CollectionRequest{}, &models.Pagination{Offset: offset, Limit: limit}, nil
}

func (m *activityMock) ListByUser(_ context.Context, account string, offset, limit int) ([]models.WasteDeposit, *models.Pagination, error) {
	m.account = account
	return []models.WasteDeposit{}, &models.Pagination{Offset: offset, Limit: limit}, nil
}

func TestAccountHandlerExportLedgerAttachment(t *testing.T) {
	svc := &accountServiceMock{}
	handler := NewAccountHandler(svc, &activityMock{}, &activityMock{})
	c, w := newTestContext(http.MethodGet, "/accounts/"+testAccount+"/ledger/export", nil)
	c.Params = gin.Params{{Key: "address", Value: testAccount}}

	handler.ExportLedger(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", svc.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ledger.csv")
	assert.Equal(t, "Date,Kind\n", w.Body.String())
}

func TestAccountHandlerExportLedgerRejectsFormat(t *testing.T) {
	handler := NewAccountHandler(&accountServiceMock{}, &activityMock{}, &activityMock{})
	c, w := newTestContext(http.MethodGet, "/accounts/"+testAccount+"/ledger/export?format=xlsx", nil)
	c.Params = gin.Params{{Key: "address", Value: testAccount}}

	handler.ExportLedger(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountHandlerNormalizesAddress(t *testing.T) {
	activity := &activityMock{}
	handler := NewAccountHandler(&accountServiceMock{}, activity, activity)
	lower := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	c, w := newTestContext(http.MethodGet, "/accounts/"+lower+"/assignments", nil)
	c.Params = gin.Params{{Key: "address", Value: lower}}

	handler.Assignments(c)
	require.Equal(t, http.StatusOK, w.Code)
	normalized, _ := models.NormalizeAccount(lower)
	assert.Equal(t, normalized, activity.account)

	c, w = newTestContext(http.MethodGet, "/accounts/nope/requests", nil)
	c.Params = gin.Params{{Key: "address", Value: "nope"}}
	handler.Requests(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountHandlerLedgerOwnerOnly(t *testing.T) {
	handler := NewAccountHandler(&accountServiceMock{}, &activityMock{}, &activityMock{})

	c, w := newTestContext(http.MethodGet, "/accounts/"+testAccount+"/ledger", nil)
	c.Params = gin.Params{{Key: "address", Value: testAccount}}
	handler.Ledger(c)
	require.Equal(t, http.StatusOK, w.Code)

	other := "0x2222222222222222222222222222222222222222"
	c, w = newTestContext(http.MethodGet, "/accounts/"+other+"/ledger", nil)
	c.Params = gin.Params{{Key: "address", Value: other}}
	handler.Ledger(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED_ACTOR", decodeEnvelope(t, w)["error"].(map[string]interface{})["code"])
}
