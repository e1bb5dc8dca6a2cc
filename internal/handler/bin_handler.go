package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
	"github.com/noah-isme/sortify-api/pkg/response"
)

type binService interface {
	Register(ctx context.Context, actor *models.JWTClaims, req dto.RegisterBinRequest) (*dto.RegisterBinResponse, error)
	List(ctx context.Context) ([]models.SmartBin, error)
	IssueClaimToken(bin *models.SmartBin, req dto.IssueClaimTokenRequest) (*dto.IssueClaimTokenResponse, error)
}

// BinHandler manages smart bins and their claim tokens.
type BinHandler struct {
	service binService
}

// NewBinHandler constructs the handler.
func NewBinHandler(svc binService) *BinHandler {
	return &BinHandler{service: svc}
}

// Register godoc
// @Summary Register a smart bin
// @Description Returns the bin API key once
// @Tags Bins
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.RegisterBinRequest true "Bin"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bins [post]
func (h *BinHandler) Register(c *gin.Context) {
	var req dto.RegisterBinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bin payload"))
		return
	}
	res, err := h.service.Register(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List smart bins
// @Tags Bins
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /bins [get]
func (h *BinHandler) List(c *gin.Context) {
	res, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// IssueClaimToken godoc
// @Summary Issue a claim token
// @Description Called by a bin after weighing a deposit; authenticated with X-Bin-Key
// @Tags Bins
// @Accept json
// @Produce json
// @Param id path string true "Bin ID"
// @Param X-Bin-Key header string true "Bin API key"
// @Param payload body dto.IssueClaimTokenRequest true "Deposit"
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /bins/{id}/claim-tokens [post]
func (h *BinHandler) IssueClaimToken(c *gin.Context) {
	var req dto.IssueClaimTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid claim token payload"))
		return
	}
	res, err := h.service.IssueClaimToken(binFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}
