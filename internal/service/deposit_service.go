package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/internal/repository"
	"github.com/noah-isme/sortify-api/pkg/claimtoken"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
	"github.com/noah-isme/sortify-api/pkg/storage"
)

const entityDeposit = "deposit"

type depositStore interface {
	Create(ctx context.Context, deposit *models.WasteDeposit) error
	GetByID(ctx context.Context, id int64) (*models.WasteDeposit, error)
	List(ctx context.Context, filter models.DepositFilter) ([]models.WasteDeposit, int, error)
	Review(ctx context.Context, id int64, verifier string, verified bool, actualWeight int64, at time.Time) error
	Claim(ctx context.Context, id int64, user string, reward decimal.Decimal, at time.Time) error
	SetImage(ctx context.Context, id int64, user, path string) error
}

type claimParser interface {
	Parse(token string) (models.ClaimTokenPayload, error)
}

type evidenceStore interface {
	SaveStream(filename string, r io.Reader, maxBytes int64) (int64, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type evidenceSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string) (resourceID, relPath string, expiresAt time.Time, err error)
}

// EvidenceOptions configures deposit image handling.
type EvidenceOptions struct {
	Store        evidenceStore
	Signer       evidenceSigner
	BaseURL      string
	MaxBytes     int64
	AllowedMIMEs []string
}

// DepositService runs the smart-bin deposit flow: submit, verify once, claim once.
type DepositService struct {
	store      depositStore
	claims     claimParser
	calculator *RewardCalculator
	verifiers  VerifierAuthorizer
	recorder   verificationRecorder
	evidence   EvidenceOptions
	validator  *validator.Validate
	audit      auditLogger
	events     eventEmitter
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// DepositServiceOption configures the service.
type DepositServiceOption func(*DepositService)

// WithDepositClock overrides the transition timestamp source.
func WithDepositClock(now func() time.Time) DepositServiceOption {
	return func(s *DepositService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDepositEvidence enables image upload and signed downloads.
func WithDepositEvidence(opts EvidenceOptions) DepositServiceOption {
	return func(s *DepositService) {
		s.evidence = opts
	}
}

// WithDepositObservers wires audit, events, metrics and verifier statistics.
func WithDepositObservers(audit auditLogger, events eventEmitter, metrics *MetricsService, recorder verificationRecorder) DepositServiceOption {
	return func(s *DepositService) {
		s.audit = audit
		s.events = events
		s.metrics = metrics
		s.recorder = recorder
	}
}

// NewDepositService constructs the deposit flow.
func NewDepositService(store depositStore, claims claimParser, calculator *RewardCalculator, verifiers VerifierAuthorizer, validate *validator.Validate, logger *zap.Logger, opts ...DepositServiceOption) *DepositService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DepositService{
		store:      store,
		claims:     claims,
		calculator: calculator,
		verifiers:  verifiers,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit redeems a claim token into an unverified deposit owned by the caller.
func (s *DepositService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.SubmitDepositRequest) (result *models.WasteDeposit, err error) {
	defer func() { s.metrics.RecordTransition(entityDeposit, "submit", err) }()
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "claimToken is required")
	}
	payload, err := s.claims.Parse(req.ClaimToken)
	if err != nil {
		if errors.Is(err, claimtoken.ErrExpired) {
			return nil, appErrors.Clone(appErrors.ErrStaleClaim, "claim token expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStaleClaim.Code, appErrors.ErrStaleClaim.Status, "claim token invalid")
	}
	if payload.EstimatedWeight < 0 || math.IsNaN(payload.EstimatedWeight) || math.IsInf(payload.EstimatedWeight, 0) {
		return nil, appErrors.Clone(appErrors.ErrStaleClaim, "claim token carries an invalid weight")
	}
	grams := kilogramsToGrams(payload.EstimatedWeight)
	if grams <= 0 {
		return nil, appErrors.Clone(appErrors.ErrStaleClaim, "claim token carries no measurable weight")
	}
	wasteType, ok := models.ParseWasteType(payload.WasteType)
	if !ok {
		wasteType = models.WasteTypeMixed
	}

	deposit := &models.WasteDeposit{
		BinID:          payload.BinID,
		WasteType:      wasteType,
		ReportedWeight: grams,
		UserAddress:    actor.Account,
		Timestamp:      payload.IssuedAt(),
		TransactionID:  payload.TransactionID,
		CreatedAt:      s.now(),
	}
	if err := s.store.Create(ctx, deposit); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "claim token already redeemed")
		}
		return nil, appErrors.Ledger(err, "failed to record deposit")
	}

	s.record(ctx, actor.Account, models.AuditActionDepositSubmit, models.EventWasteDeposited, deposit, map[string]interface{}{
		"binId":          deposit.BinID,
		"wasteType":      deposit.WasteType,
		"reportedWeight": deposit.ReportedWeight,
	})
	return deposit, nil
}

// Get returns a single deposit.
func (s *DepositService) Get(ctx context.Context, id int64) (*models.WasteDeposit, error) {
	deposit, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deposit not found")
		}
		return nil, appErrors.Ledger(err, "failed to load deposit")
	}
	return deposit, nil
}

// ListPending returns the verifier queue, oldest first.
func (s *DepositService) ListPending(ctx context.Context, actor *models.JWTClaims, offset, limit int) ([]models.WasteDeposit, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if err := s.requireVerifier(ctx, actor.Account); err != nil {
		return nil, nil, err
	}
	return s.list(ctx, models.DepositFilter{Pending: true, Offset: offset, Limit: limit})
}

// ListByUser returns deposits submitted by account.
func (s *DepositService) ListByUser(ctx context.Context, account string, offset, limit int) ([]models.WasteDeposit, *models.Pagination, error) {
	return s.list(ctx, models.DepositFilter{UserAddress: account, Offset: offset, Limit: limit})
}

func (s *DepositService) list(ctx context.Context, filter models.DepositFilter) ([]models.WasteDeposit, *models.Pagination, error) {
	filter.Offset, filter.Limit = normalizePage(filter.Offset, filter.Limit)
	deposits, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Ledger(err, "failed to list deposits")
	}
	return deposits, &models.Pagination{Offset: filter.Offset, Limit: filter.Limit, TotalCount: total}, nil
}

// Verify records the single verifier ruling and freezes the actual weight.
func (s *DepositService) Verify(ctx context.Context, actor *models.JWTClaims, id int64, req dto.VerifyDepositRequest) (result *models.WasteDeposit, err error) {
	defer func() { s.metrics.RecordTransition(entityDeposit, "verify", err) }()
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}
	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if deposit.Reviewed() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "deposit already verified")
	}
	if models.SameAccount(deposit.UserAddress, actor.Account) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "depositors cannot verify their own deposit")
	}
	if err := s.requireVerifier(ctx, actor.Account); err != nil {
		return nil, err
	}

	// An approval without a measured weight keeps the bin's reading.
	weight := req.ActualWeight
	if *req.Verified && weight == 0 {
		weight = deposit.ReportedWeight
	}
	at := s.now()
	if err := s.store.Review(ctx, id, actor.Account, *req.Verified, weight, at); err != nil {
		return nil, transitionError(err)
	}
	verifier := actor.Account
	deposit.Verified = *req.Verified
	deposit.ActualWeight = &weight
	deposit.Verifier = &verifier
	deposit.VerifiedAt = &at

	s.record(ctx, actor.Account, models.AuditActionDepositVerify, models.EventWasteVerified, deposit, map[string]interface{}{
		"verified":     deposit.Verified,
		"actualWeight": weight,
	})
	if s.recorder != nil {
		s.recorder.RecordVerification(ctx, actor.Account)
	}
	return deposit, nil
}

// Claim credits the deposit reward to its depositor exactly once.
func (s *DepositService) Claim(ctx context.Context, actor *models.JWTClaims, id int64) (result *models.WasteDeposit, err error) {
	defer func() { s.metrics.RecordTransition(entityDeposit, "claim", err) }()
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.SameAccount(deposit.UserAddress, actor.Account) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "only the depositor can claim this reward")
	}
	if deposit.Claimed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "reward already claimed")
	}
	if !deposit.Verified || deposit.ActualWeight == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "deposit is not verified")
	}

	reward := s.calculator.DepositReward(deposit.WasteType, *deposit.ActualWeight)
	at := s.now()
	if err := s.store.Claim(ctx, id, deposit.UserAddress, reward, at); err != nil {
		return nil, transitionError(err)
	}
	s.metrics.RecordReward(string(models.LedgerEntryDepositClaim), reward)
	deposit.Claimed = true
	deposit.ClaimedAt = &at
	deposit.RewardAmount = &reward

	s.record(ctx, actor.Account, models.AuditActionDepositClaim, models.EventRewardClaimed, deposit, map[string]interface{}{
		"reward": reward.String(),
	})
	return deposit, nil
}

// AttachImage stores an evidence photo for a deposit owned by the caller.
func (s *DepositService) AttachImage(ctx context.Context, actor *models.JWTClaims, id int64, contentType string, body io.Reader) (*dto.DepositImageResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.evidence.Store == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "evidence storage not configured")
	}
	ext, err := s.imageExtension(contentType)
	if err != nil {
		return nil, err
	}
	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.SameAccount(deposit.UserAddress, actor.Account) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "only the depositor can attach evidence")
	}

	relPath := path.Join("deposits", fmt.Sprintf("%d", id), uuid.NewString()+ext)
	if _, err := s.evidence.Store.SaveStream(relPath, body, s.evidence.MaxBytes); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "image exceeds size limit")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}
	if err := s.store.SetImage(ctx, id, deposit.UserAddress, relPath); err != nil {
		_ = s.evidence.Store.Delete(relPath)
		return nil, transitionError(err)
	}
	if deposit.ImagePath != nil && *deposit.ImagePath != relPath {
		if err := s.evidence.Store.Delete(*deposit.ImagePath); err != nil {
			s.logger.Warn("failed to remove replaced evidence image", zap.Int64("deposit_id", id), zap.Error(err))
		}
	}
	deposit.ImagePath = &relPath
	return s.signImage(deposit)
}

// ImageURL returns a signed download link for the deposit's evidence image.
// The depositor and any verifier may view it.
func (s *DepositService) ImageURL(ctx context.Context, actor *models.JWTClaims, id int64) (*dto.DepositImageResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.SameAccount(deposit.UserAddress, actor.Account) {
		if err := s.requireVerifier(ctx, actor.Account); err != nil {
			return nil, err
		}
	}
	if deposit.ImagePath == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "deposit has no evidence image")
	}
	return s.signImage(deposit)
}

// OpenImage resolves a signed download token to the stored file.
func (s *DepositService) OpenImage(token string) (*os.File, string, error) {
	if s.evidence.Store == nil || s.evidence.Signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "evidence storage not configured")
	}
	_, relPath, _, err := s.evidence.Signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.evidence.Store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "evidence image not found")
	}
	contentType := mime.TypeByExtension(path.Ext(relPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return file, contentType, nil
}

func (s *DepositService) signImage(deposit *models.WasteDeposit) (*dto.DepositImageResponse, error) {
	if s.evidence.Signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "evidence signer not configured")
	}
	token, expiresAt, err := s.evidence.Signer.Generate(fmt.Sprintf("%d", deposit.ID), *deposit.ImagePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign image url")
	}
	return &dto.DepositImageResponse{
		URL:       strings.TrimRight(s.evidence.BaseURL, "/") + "/" + token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

func (s *DepositService) imageExtension(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid content type")
	}
	allowed := len(s.evidence.AllowedMIMEs) == 0 && strings.HasPrefix(mediaType, "image/")
	for _, candidate := range s.evidence.AllowedMIMEs {
		if strings.EqualFold(candidate, mediaType) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("content type %s not allowed", mediaType))
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0], nil
	}
	return ".bin", nil
}

func (s *DepositService) requireVerifier(ctx context.Context, account string) error {
	if s.verifiers == nil {
		return appErrors.Clone(appErrors.ErrUnauthorizedActor, "verifier capability required")
	}
	ok, err := s.verifiers.IsVerifier(ctx, account)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return err
		}
		return appErrors.Ledger(err, "failed to check verifier capability")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrUnauthorizedActor, "verifier capability required")
	}
	return nil
}

func (s *DepositService) record(ctx context.Context, actor, action string, eventType models.EventType, deposit *models.WasteDeposit, attrs map[string]interface{}) {
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Account:    &actor,
		Action:     action,
		Resource:   "waste_deposit",
		ResourceID: idString(deposit.ID),
		NewValues: jsonBytes(map[string]interface{}{
			"verified": deposit.Verified,
			"claimed":  deposit.Claimed,
		}),
	})
	if s.events != nil {
		s.events.Emit(models.LifecycleEvent{Type: eventType, EntityID: deposit.ID, Actor: actor, Attributes: attrs})
	}
	s.logger.Info("deposit transition",
		zap.Int64("deposit_id", deposit.ID),
		zap.String("action", action),
		zap.String("actor", actor),
	)
}

// kilogramsToGrams rounds half away from zero.
func kilogramsToGrams(kg float64) int64 {
	return decimal.NewFromFloat(kg).Shift(3).Round(0).IntPart()
}
