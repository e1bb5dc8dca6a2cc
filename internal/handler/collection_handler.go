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

type collectionService interface {
	Estimate(req dto.EstimateRewardRequest) (*dto.EstimateRewardResponse, error)
	RequestCollection(ctx context.Context, actor *models.JWTClaims, req dto.CreateCollectionRequest) (*models.CollectionRequest, error)
	Get(ctx context.Context, id int64) (*models.CollectionRequest, error)
	ListAvailable(ctx context.Context, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error)
	Accept(ctx context.Context, actor *models.JWTClaims, id int64) (*models.CollectionRequest, error)
	Complete(ctx context.Context, actor *models.JWTClaims, id int64) (*models.CollectionRequest, error)
	Verify(ctx context.Context, actor *models.JWTClaims, id int64, req dto.VerifyCollectionRequest) (*dto.VerifyCollectionResponse, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id int64) (*models.CollectionRequest, error)
}

// CollectionHandler exposes the collection request lifecycle.
type CollectionHandler struct {
	service collectionService
}

// NewCollectionHandler constructs the handler.
func NewCollectionHandler(svc collectionService) *CollectionHandler {
	return &CollectionHandler{service: svc}
}

// Estimate godoc
// @Summary Estimate reward
// @Description Price waste items with the current rate table without creating a request
// @Tags Rewards
// @Accept json
// @Produce json
// @Param payload body dto.EstimateRewardRequest true "Waste items"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /rewards/estimate [post]
func (h *CollectionHandler) Estimate(c *gin.Context) {
	var req dto.EstimateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid estimate payload"))
		return
	}
	res, err := h.service.Estimate(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Create godoc
// @Summary Request a collection
// @Tags Collections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateCollectionRequest true "Collection request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collection-requests [post]
func (h *CollectionHandler) Create(c *gin.Context) {
	var req dto.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid collection request payload"))
		return
	}
	res, err := h.service.RequestCollection(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Get godoc
// @Summary Get a collection request
// @Tags Collections
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /collection-requests/{id} [get]
func (h *CollectionHandler) Get(c *gin.Context) {
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

// ListAvailable godoc
// @Summary List open requests
// @Description Requests awaiting a collector, oldest first
// @Tags Collections
// @Produce json
// @Security BearerAuth
// @Param offset query int false "Offset"
// @Param limit query int false "Limit (default 50)"
// @Success 200 {object} response.Envelope
// @Router /collection-requests/available [get]
func (h *CollectionHandler) ListAvailable(c *gin.Context) {
	offset, limit := pageParams(c)
	res, page, err := h.service.ListAvailable(c.Request.Context(), offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, page)
}

// Accept godoc
// @Summary Accept a request as collector
// @Tags Collections
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /collection-requests/{id}/accept [post]
func (h *CollectionHandler) Accept(c *gin.Context) {
	h.transition(c, h.service.Accept)
}

// Complete godoc
// @Summary Mark a pickup complete
// @Tags Collections
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /collection-requests/{id}/complete [post]
func (h *CollectionHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// Cancel godoc
// @Summary Cancel a request
// @Tags Collections
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /collection-requests/{id}/cancel [post]
func (h *CollectionHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

// Verify godoc
// @Summary Verify a completed pickup
// @Description Approval settles the reward split; rejection re-opens the request
// @Tags Collections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param payload body dto.VerifyCollectionRequest true "Ruling"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collection-requests/{id}/verify [post]
func (h *CollectionHandler) Verify(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.VerifyCollectionRequest
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

func (h *CollectionHandler) transition(c *gin.Context, fn func(context.Context, *models.JWTClaims, int64) (*models.CollectionRequest, error)) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := fn(c.Request.Context(), claimsFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
