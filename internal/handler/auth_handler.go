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

type identityService interface {
	Nonce(ctx context.Context, req dto.NonceRequest) (*models.NonceChallenge, error)
	Connect(ctx context.Context, req dto.ConnectRequest) (*models.Session, error)
	Disconnect(ctx context.Context, claims *models.JWTClaims) error
}

// AuthHandler wires wallet connect endpoints to the identity service.
type AuthHandler struct {
	service identityService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc identityService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Nonce godoc
// @Summary Request a wallet challenge
// @Description Issue a one-time message for the wallet to sign
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.NonceRequest true "Account"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/nonce [post]
func (h *AuthHandler) Nonce(c *gin.Context) {
	var req dto.NonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid nonce payload"))
		return
	}
	res, err := h.service.Nonce(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Connect godoc
// @Summary Connect wallet
// @Description Verify the signed challenge and issue an access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.ConnectRequest true "Signed challenge"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/connect [post]
func (h *AuthHandler) Connect(c *gin.Context) {
	var req dto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid connect payload"))
		return
	}
	res, err := h.service.Connect(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Disconnect godoc
// @Summary Disconnect wallet
// @Description Revoke the current access token
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/disconnect [post]
func (h *AuthHandler) Disconnect(c *gin.Context) {
	if err := h.service.Disconnect(c.Request.Context(), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me godoc
// @Summary Current account
// @Description Return the account and role of the current session
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"account": claims.Account, "role": claims.Role}, nil)
}
