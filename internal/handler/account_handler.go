package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/internal/service"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
	"github.com/noah-isme/sortify-api/pkg/response"
)

type accountService interface {
	Profile(ctx context.Context, rawAccount string) (*models.AccountProfile, error)
	Ledger(ctx context.Context, actor *models.JWTClaims, rawAccount string, offset, limit int) ([]models.LedgerEntry, *models.Pagination, error)
	ExportLedger(ctx context.Context, actor *models.JWTClaims, rawAccount, format string) (*service.LedgerStatement, error)
}

type accountActivity interface {
	ListByRequester(ctx context.Context, account string, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error)
	ListByCollector(ctx context.Context, account string, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error)
}

type accountDeposits interface {
	ListByUser(ctx context.Context, account string, offset, limit int) ([]models.WasteDeposit, *models.Pagination, error)
}

// AccountHandler serves per-account read models.
type AccountHandler struct {
	accounts    accountService
	collections accountActivity
	deposits    accountDeposits
}

// NewAccountHandler constructs the handler.
func NewAccountHandler(accounts accountService, collections accountActivity, deposits accountDeposits) *AccountHandler {
	return &AccountHandler{accounts: accounts, collections: collections, deposits: deposits}
}

// Profile godoc
// @Summary Account profile
// @Description Balance, activity counters and verifier credentials
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /accounts/{address}/profile [get]
func (h *AccountHandler) Profile(c *gin.Context) {
	res, err := h.accounts.Profile(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Requests godoc
// @Summary Requests created by an account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /accounts/{address}/requests [get]
func (h *AccountHandler) Requests(c *gin.Context) {
	h.listCollections(c, h.collections.ListByRequester)
}

// Assignments godoc
// @Summary Requests assigned to a collector
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /accounts/{address}/assignments [get]
func (h *AccountHandler) Assignments(c *gin.Context) {
	h.listCollections(c, h.collections.ListByCollector)
}

// Deposits godoc
// @Summary Deposits submitted by an account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /accounts/{address}/deposits [get]
func (h *AccountHandler) Deposits(c *gin.Context) {
	account, ok := models.NormalizeAccount(c.Param("address"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid account address"))
		return
	}
	offset, limit := pageParams(c)
	res, page, err := h.deposits.ListByUser(c.Request.Context(), account, offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, page)
}

// Ledger godoc
// @Summary Ledger entries
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /accounts/{address}/ledger [get]
func (h *AccountHandler) Ledger(c *gin.Context) {
	offset, limit := pageParams(c)
	res, page, err := h.accounts.Ledger(c.Request.Context(), claimsFromContext(c), c.Param("address"), offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, page)
}

// ExportLedger godoc
// @Summary Export ledger statement
// @Tags Accounts
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param address path string true "Account"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /accounts/{address}/ledger/export [get]
func (h *AccountHandler) ExportLedger(c *gin.Context) {
	statement, err := h.accounts.ExportLedger(c.Request.Context(), claimsFromContext(c), c.Param("address"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, statement.Filename, statement.ContentType, statement.Data)
}

func (h *AccountHandler) listCollections(c *gin.Context, fn func(context.Context, string, int, int) ([]models.CollectionRequest, *models.Pagination, error)) {
	account, ok := models.NormalizeAccount(c.Param("address"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid account address"))
		return
	}
	offset, limit := pageParams(c)
	res, page, err := fn(c.Request.Context(), account, offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, page)
}
