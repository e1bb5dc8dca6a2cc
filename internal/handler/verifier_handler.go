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

type verifierService interface {
	Get(ctx context.Context, rawAccount string) (*models.VerifierCredential, error)
	Grant(ctx context.Context, actor *models.JWTClaims, rawAccount string, level int) (*models.VerifierCredential, error)
	Revoke(ctx context.Context, actor *models.JWTClaims, rawAccount string) error
}

// VerifierHandler manages the verifier registry.
type VerifierHandler struct {
	service verifierService
}

// NewVerifierHandler constructs the handler.
func NewVerifierHandler(svc verifierService) *VerifierHandler {
	return &VerifierHandler{service: svc}
}

// Get godoc
// @Summary Verifier credential
// @Tags Verifiers
// @Produce json
// @Param address path string true "Account"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /verifiers/{address} [get]
func (h *VerifierHandler) Get(c *gin.Context) {
	res, err := h.service.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Grant godoc
// @Summary Grant verifier capability
// @Tags Verifiers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account"
// @Param payload body dto.GrantVerifierRequest false "Level"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /verifiers/{address} [put]
func (h *VerifierHandler) Grant(c *gin.Context) {
	var req dto.GrantVerifierRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verifier payload"))
			return
		}
	}
	res, err := h.service.Grant(c.Request.Context(), claimsFromContext(c), c.Param("address"), req.VerificationLevel)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Revoke godoc
// @Summary Revoke verifier capability
// @Tags Verifiers
// @Security BearerAuth
// @Param address path string true "Account"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /verifiers/{address} [delete]
func (h *VerifierHandler) Revoke(c *gin.Context) {
	if err := h.service.Revoke(c.Request.Context(), claimsFromContext(c), c.Param("address")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
