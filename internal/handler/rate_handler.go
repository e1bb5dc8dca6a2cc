package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/middleware"
	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
	"github.com/noah-isme/sortify-api/pkg/response"
)

type rateService interface {
	List() []models.RewardRate
	LoadedAt() time.Time
	Update(ctx context.Context, actor *models.JWTClaims, rawType string, rate decimal.Decimal, description string) (*models.RewardRate, error)
}

// RateHandler exposes the reward rate table.
type RateHandler struct {
	service rateService
}

// NewRateHandler constructs the handler.
func NewRateHandler(svc rateService) *RateHandler {
	return &RateHandler{service: svc}
}

// List godoc
// @Summary Reward rates
// @Description Reward per kilogram for every waste type
// @Tags Rewards
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rates [get]
func (h *RateHandler) List(c *gin.Context) {
	middleware.SetMeta(c, "loaded_at", h.service.LoadedAt().Format(time.RFC3339))
	response.JSON(c, http.StatusOK, h.service.List(), nil, middleware.ExtractMeta(c))
}

// Update godoc
// @Summary Update a reward rate
// @Tags Rewards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param wasteType path string true "Waste type"
// @Param payload body dto.UpdateRateRequest true "Rate"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /rates/{wasteType} [put]
func (h *RateHandler) Update(c *gin.Context) {
	var req dto.UpdateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rate payload"))
		return
	}
	res, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("wasteType"), req.Rate, req.Description)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
