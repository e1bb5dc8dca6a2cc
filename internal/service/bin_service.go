package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/internal/repository"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

type binStore interface {
	Create(ctx context.Context, bin *models.SmartBin) error
	GetByID(ctx context.Context, id string) (*models.SmartBin, error)
	List(ctx context.Context) ([]models.SmartBin, error)
}

type claimIssuer interface {
	Issue(binID, wasteType string, estimatedWeight float64) (string, models.ClaimTokenPayload, error)
	MaxAge() time.Duration
}

// BinService registers smart bins and mints claim tokens on their behalf.
type BinService struct {
	store     binStore
	issuer    claimIssuer
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewBinService constructs the service.
func NewBinService(store binStore, issuer claimIssuer, validate *validator.Validate, logger *zap.Logger) *BinService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinService{store: store, issuer: issuer, validator: validate, logger: logger, hashCost: bcrypt.DefaultCost}
}

// Register creates a bin and returns its API key. The key is only shown once.
func (s *BinService) Register(ctx context.Context, actor *models.JWTClaims, req dto.RegisterBinRequest) (*dto.RegisterBinResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bin payload")
	}
	id := strings.TrimSpace(req.ID)
	if id == "" || strings.ContainsAny(id, "/ .") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "bin id must be a single path segment")
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate api key")
	}
	apiKey := hex.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), s.hashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash api key")
	}

	bin := &models.SmartBin{
		ID:         id,
		Location:   strings.TrimSpace(req.Location),
		Latitude:   toFixedPoint(req.Latitude),
		Longitude:  toFixedPoint(req.Longitude),
		APIKeyHash: string(hash),
		Active:     true,
	}
	if err := s.store.Create(ctx, bin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "bin id already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register bin")
	}
	s.logger.Info("smart bin registered", zap.String("bin_id", id))
	return &dto.RegisterBinResponse{ID: id, APIKey: apiKey}, nil
}

// List returns every registered bin.
func (s *BinService) List(ctx context.Context) ([]models.SmartBin, error) {
	bins, err := s.store.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bins")
	}
	return bins, nil
}

// Authenticate checks a bin's API key.
func (s *BinService) Authenticate(ctx context.Context, binID, apiKey string) (*models.SmartBin, error) {
	if binID == "" || apiKey == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "bin credentials required")
	}
	bin, err := s.store.GetByID(ctx, binID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown bin")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bin")
	}
	if !bin.Active {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "bin is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(bin.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid bin api key")
	}
	return bin, nil
}

// IssueClaimToken signs a claim for a deposit the bin just weighed.
func (s *BinService) IssueClaimToken(bin *models.SmartBin, req dto.IssueClaimTokenRequest) (*dto.IssueClaimTokenResponse, error) {
	if bin == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid claim token payload")
	}
	wasteType, ok := models.ParseWasteType(req.WasteType)
	if !ok {
		wasteType = models.WasteTypeMixed
	}
	token, payload, err := s.issuer.Issue(bin.ID, string(wasteType), req.EstimatedWeight)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign claim token")
	}
	s.logger.Debug("claim token issued", zap.String("bin_id", bin.ID), zap.String("transaction_id", payload.TransactionID))
	return &dto.IssueClaimTokenResponse{
		Token:         token,
		TransactionID: payload.TransactionID,
		ExpiresAt:     payload.IssuedAt().Add(s.issuer.MaxAge()).Format(time.RFC3339),
	}, nil
}
