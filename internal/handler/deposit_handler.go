package handler

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
	"github.com/noah-isme/sortify-api/pkg/response"
)

type depositService interface {
	Submit(ctx context.Context, actor *models.JWTClaims, req dto.SubmitDepositRequest) (*models.WasteDeposit, error)
	Get(ctx context.Context, id int64) (*models.WasteDeposit, error)
	ListPending(ctx context.Context, actor *models.JWTClaims, offset, limit int) ([]models.WasteDeposit, *models.Pagination, error)
	Verify(ctx context.Context, actor *models.JWTClaims, id int64, req dto.VerifyDepositRequest) (*models.WasteDeposit, error)
	Claim(ctx context.Context, actor *models.JWTClaims, id int64) (*models.WasteDeposit, error)
	AttachImage(ctx context.Context, actor *models.JWTClaims, id int64, contentType string, body io.Reader) (*dto.DepositImageResponse, error)
	ImageURL(ctx context.Context, actor *models.JWTClaims, id int64) (*dto.DepositImageResponse, error)
	OpenImage(token string) (*os.File, string, error)
}

// DepositHandler exposes the smart-bin deposit flow.
type DepositHandler struct {
	service depositService
}

// NewDepositHandler constructs the handler.
func NewDepositHandler(svc depositService) *DepositHandler {
	return &DepositHandler{service: svc}
}

// Submit godoc
// @Summary Submit a deposit
// @Description Redeem a smart-bin claim token into an unverified deposit
// @Tags Deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.SubmitDepositRequest true "Claim token"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /deposits [post]
func (h *DepositHandler) Submit(c *gin.Context) {
	var req dto.SubmitDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid deposit payload"))
		return
	}
	res, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Get godoc
// @Summary Get a deposit
// @Tags Deposits
// @Produce json
// @Security BearerAuth
// @Param id path int true "Deposit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /deposits/{id} [get]
func (h *DepositHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ListPending godoc
// @Summary Pending verification queue
// @Tags Deposits
// @Produce json
// @Security BearerAuth
// @Param offset query int false "Offset"
// @Param limit query int false "Limit (default 50)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /deposits/pending [get]
func (h *DepositHandler) ListPending(c *gin.Context) {
	offset, limit := pageParams(c)
	res, page, err := h.service.ListPending(c.Request.Context(), claimsFromContext(c), offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, page)
}

// Verify godoc
// @Summary Verify a deposit
// @Tags Deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Deposit ID"
// @Param payload body dto.VerifyDepositRequest true "Ruling"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /deposits/{id}/verify [post]
func (h *DepositHandler) Verify(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.VerifyDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
		return
	}
	res, err := h.service.Verify(c.Request.Context(), claimsFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Claim godoc
// @Summary Claim a deposit reward
// @Tags Deposits
// @Produce json
// @Security BearerAuth
// @Param id path int true "Deposit ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /deposits/{id}/claim [post]
func (h *DepositHandler) Claim(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.Claim(c.Request.Context(), claimsFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// UploadImage godoc
// @Summary Attach evidence image
// @Tags Deposits
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Deposit ID"
// @Param file formData file true "Image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /deposits/{id}/image [post]
func (h *DepositHandler) UploadImage(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return
	}
	defer file.Close()

	res, err := h.service.AttachImage(c.Request.Context(), claimsFromContext(c), id, header.Header.Get("Content-Type"), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ImageURL godoc
// @Summary Signed evidence link
// @Tags Deposits
// @Produce json
// @Security BearerAuth
// @Param id path int true "Deposit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /deposits/{id}/image [get]
func (h *DepositHandler) ImageURL(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.ImageURL(c.Request.Context(), claimsFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// DownloadEvidence godoc
// @Summary Download evidence image
// @Tags Deposits
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /evidence/{token} [get]
func (h *DepositHandler) DownloadEvidence(c *gin.Context) {
	file, contentType, err := h.service.OpenImage(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read evidence"))
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
