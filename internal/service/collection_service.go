package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/internal/repository"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

const entityCollection = "collection"

type collectionStore interface {
	Create(ctx context.Context, req *models.CollectionRequest) error
	GetByID(ctx context.Context, id int64) (*models.CollectionRequest, error)
	List(ctx context.Context, filter models.CollectionFilter) ([]models.CollectionRequest, int, error)
	Accept(ctx context.Context, id int64, collector string, at time.Time) error
	Complete(ctx context.Context, id int64, collector string, at time.Time) error
	Reject(ctx context.Context, id int64, notes *string, at time.Time) error
	Cancel(ctx context.Context, id int64, requester string, at time.Time) error
	Settle(ctx context.Context, params repository.SettleParams) error
}

type verificationRecorder interface {
	RecordVerification(ctx context.Context, account string)
}

// CollectionService runs the collection request lifecycle:
// REQUESTED -> ACCEPTED -> COMPLETED -> VERIFIED, with CANCELLED reachable
// from REQUESTED and ACCEPTED. A rejected verification re-opens the request.
type CollectionService struct {
	store      collectionStore
	calculator *RewardCalculator
	verifiers  VerifierAuthorizer
	recorder   verificationRecorder
	validator  *validator.Validate
	audit      auditLogger
	events     eventEmitter
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// CollectionServiceOption configures the service.
type CollectionServiceOption func(*CollectionService)

// WithCollectionClock overrides the transition timestamp source.
func WithCollectionClock(now func() time.Time) CollectionServiceOption {
	return func(s *CollectionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithVerificationRecorder updates verifier statistics after each ruling.
func WithVerificationRecorder(recorder verificationRecorder) CollectionServiceOption {
	return func(s *CollectionService) {
		s.recorder = recorder
	}
}

// WithCollectionObservers wires audit, events and metrics.
func WithCollectionObservers(audit auditLogger, events eventEmitter, metrics *MetricsService) CollectionServiceOption {
	return func(s *CollectionService) {
		s.audit = audit
		s.events = events
		s.metrics = metrics
	}
}

// NewCollectionService constructs the lifecycle manager.
func NewCollectionService(store collectionStore, calculator *RewardCalculator, verifiers VerifierAuthorizer, validate *validator.Validate, logger *zap.Logger, opts ...CollectionServiceOption) *CollectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CollectionService{
		store:      store,
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

// Estimate prices items exactly as RequestCollection would.
func (s *CollectionService) Estimate(req dto.EstimateRewardRequest) (*dto.EstimateRewardResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid estimate payload")
	}
	items, err := toWasteItems(req.WasteItems)
	if err != nil {
		return nil, err
	}
	total, err := s.calculator.EstimateReward(items)
	if err != nil {
		return nil, err
	}
	return &dto.EstimateRewardResponse{Total: total.StringFixed(rewardPlaces), Split: s.calculator.Split(total)}, nil
}

// RequestCollection creates a REQUESTED pickup owned by the caller.
func (s *CollectionService) RequestCollection(ctx context.Context, actor *models.JWTClaims, req dto.CreateCollectionRequest) (result *models.CollectionRequest, err error) {
	defer func() { s.metrics.RecordTransition(entityCollection, "request", err) }()
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(req.Location) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid collection request payload")
	}
	items, err := toWasteItems(req.WasteItems)
	if err != nil {
		return nil, err
	}
	reward, err := s.calculator.EstimateReward(items)
	if err != nil {
		return nil, err
	}

	request := &models.CollectionRequest{
		Requester:     actor.Account,
		WasteItems:    items,
		Location:      strings.TrimSpace(req.Location),
		Latitude:      toFixedPoint(req.Latitude),
		Longitude:     toFixedPoint(req.Longitude),
		PendingReward: reward,
		Status:        models.CollectionStatusRequested,
		RequestedAt:   s.now(),
		Notes:         strings.TrimSpace(req.Notes),
	}
	if err := s.store.Create(ctx, request); err != nil {
		return nil, appErrors.Ledger(err, "failed to create collection request")
	}

	s.record(ctx, actor.Account, models.AuditActionCollectionRequest, models.EventCollectionRequested, request, map[string]interface{}{
		"pendingReward": request.PendingReward.String(),
		"items":         len(items),
	})
	return request, nil
}

// Get returns a single request.
func (s *CollectionService) Get(ctx context.Context, id int64) (*models.CollectionRequest, error) {
	request, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "collection request not found")
		}
		return nil, appErrors.Ledger(err, "failed to load collection request")
	}
	return request, nil
}

// ListAvailable returns open requests awaiting a collector.
func (s *CollectionService) ListAvailable(ctx context.Context, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error) {
	return s.list(ctx, models.CollectionFilter{Status: []models.CollectionStatus{models.CollectionStatusRequested}, Offset: offset, Limit: limit})
}

// ListByRequester returns every request created by account.
func (s *CollectionService) ListByRequester(ctx context.Context, account string, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error) {
	return s.list(ctx, models.CollectionFilter{Requester: account, Offset: offset, Limit: limit})
}

// ListByCollector returns every request currently assigned to account.
func (s *CollectionService) ListByCollector(ctx context.Context, account string, offset, limit int) ([]models.CollectionRequest, *models.Pagination, error) {
	return s.list(ctx, models.CollectionFilter{Collector: account, Offset: offset, Limit: limit})
}

func (s *CollectionService) list(ctx context.Context, filter models.CollectionFilter) ([]models.CollectionRequest, *models.Pagination, error) {
	filter.Offset, filter.Limit = normalizePage(filter.Offset, filter.Limit)
	requests, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Ledger(err, "failed to list collection requests")
	}
	return requests, &models.Pagination{Offset: filter.Offset, Limit: filter.Limit, TotalCount: total}, nil
}

// Accept assigns the caller as collector of an open request.
func (s *CollectionService) Accept(ctx context.Context, actor *models.JWTClaims, id int64) (result *models.CollectionRequest, err error) {
	defer func() { s.metrics.RecordTransition(entityCollection, "accept", err) }()
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.CollectionStatusRequested {
		return nil, invalidState(request.Status, "accept")
	}
	if models.SameAccount(request.Requester, actor.Account) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "requesters cannot collect their own request")
	}

	at := s.now()
	if err := s.store.Accept(ctx, id, actor.Account, at); err != nil {
		return nil, transitionError(err)
	}
	collector := actor.Account
	request.Status = models.CollectionStatusAccepted
	request.AssignedCollector = &collector
	request.AcceptedAt = &at
	request.UpdatedAt = at

	s.record(ctx, actor.Account, models.AuditActionCollectionAccept, models.EventCollectionAccepted, request, nil)
	return request, nil
}

// Complete marks the pickup as done by its assigned collector.
func (s *CollectionService) Complete(ctx context.Context, actor *models.JWTClaims, id int64) (result *models.CollectionRequest, err error) {
	defer func() { s.metrics.RecordTransition(entityCollection, "complete", err) }()
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.CollectionStatusAccepted {
		return nil, invalidState(request.Status, "complete")
	}
	if !request.IsAssignedTo(actor.Account) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "only the assigned collector can complete this request")
	}

	at := s.now()
	if err := s.store.Complete(ctx, id, actor.Account, at); err != nil {
		return nil, transitionError(err)
	}
	request.Status = models.CollectionStatusCompleted
	request.CompletedAt = &at
	request.UpdatedAt = at

	s.record(ctx, actor.Account, models.AuditActionCollectionComplete, models.EventCollectionCompleted, request, nil)
	return request, nil
}

// Verify rules on a completed pickup. Approval settles the pending reward;
// rejection sends the request back to REQUESTED for another collector.
func (s *CollectionService) Verify(ctx context.Context, actor *models.JWTClaims, id int64, req dto.VerifyCollectionRequest) (result *dto.VerifyCollectionResponse, err error) {
	defer func() { s.metrics.RecordTransition(entityCollection, "verify", err) }()
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "approved is required")
	}
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.CollectionStatusCompleted {
		return nil, invalidState(request.Status, "verify")
	}
	if models.SameAccount(request.Requester, actor.Account) || request.IsAssignedTo(actor.Account) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "participants cannot verify their own collection")
	}
	if err := s.requireVerifier(ctx, actor.Account); err != nil {
		return nil, err
	}

	at := s.now()
	notes := optionalString(req.Notes)
	if !*req.Approved {
		if err := s.store.Reject(ctx, id, notes, at); err != nil {
			return nil, transitionError(err)
		}
		previousCollector := request.AssignedCollector
		request.Status = models.CollectionStatusRequested
		request.AssignedCollector = nil
		request.AcceptedAt = nil
		request.CompletedAt = nil
		request.VerificationNotes = notes
		request.RejectionCount++
		request.UpdatedAt = at

		attrs := map[string]interface{}{"rejectionCount": request.RejectionCount}
		if previousCollector != nil {
			attrs["previousCollector"] = *previousCollector
		}
		s.record(ctx, actor.Account, models.AuditActionCollectionReject, models.EventCollectionRejected, request, attrs)
		s.recordVerification(ctx, actor.Account)
		return &dto.VerifyCollectionResponse{Request: request}, nil
	}

	if request.AssignedCollector == nil {
		return nil, invalidState(request.Status, "verify")
	}
	split := s.calculator.Split(request.PendingReward)
	collector := *request.AssignedCollector
	credits := []models.LedgerEntry{
		{Account: request.Requester, Amount: split.Requester, Kind: models.LedgerEntryCollectionRequester, ReferenceType: models.LedgerRefCollection, ReferenceID: id},
		{Account: collector, Amount: split.Collector, Kind: models.LedgerEntryCollectionCollector, ReferenceType: models.LedgerRefCollection, ReferenceID: id},
		{Account: actor.Account, Amount: split.Verifier, Kind: models.LedgerEntryCollectionVerifier, ReferenceType: models.LedgerRefCollection, ReferenceID: id},
	}
	if err := s.store.Settle(ctx, repository.SettleParams{ID: id, Verifier: actor.Account, Notes: notes, At: at, Credits: credits}); err != nil {
		return nil, transitionError(err)
	}
	for _, credit := range credits {
		s.metrics.RecordReward(string(credit.Kind), credit.Amount)
	}

	verifier := actor.Account
	request.Status = models.CollectionStatusVerified
	request.Verifier = &verifier
	request.VerifiedAt = &at
	request.VerificationNotes = notes
	request.PendingReward = decimal.Zero
	request.UpdatedAt = at

	s.record(ctx, actor.Account, models.AuditActionCollectionVerify, models.EventCollectionVerified, request, map[string]interface{}{
		"requesterReward": split.Requester.String(),
		"collectorReward": split.Collector.String(),
		"verifierReward":  split.Verifier.String(),
	})
	s.recordVerification(ctx, actor.Account)
	return &dto.VerifyCollectionResponse{Request: request, Split: &split}, nil
}

// Cancel withdraws a request that has not been completed yet. Requester only.
func (s *CollectionService) Cancel(ctx context.Context, actor *models.JWTClaims, id int64) (result *models.CollectionRequest, err error) {
	defer func() { s.metrics.RecordTransition(entityCollection, "cancel", err) }()
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.SameAccount(request.Requester, actor.Account) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "only the requester can cancel this request")
	}
	if request.Status != models.CollectionStatusRequested && request.Status != models.CollectionStatusAccepted {
		return nil, invalidState(request.Status, "cancel")
	}

	at := s.now()
	if err := s.store.Cancel(ctx, id, actor.Account, at); err != nil {
		return nil, transitionError(err)
	}
	request.Status = models.CollectionStatusCancelled
	request.UpdatedAt = at

	s.record(ctx, actor.Account, models.AuditActionCollectionCancel, models.EventCollectionCancelled, request, nil)
	return request, nil
}

func (s *CollectionService) requireVerifier(ctx context.Context, account string) error {
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

func (s *CollectionService) recordVerification(ctx context.Context, account string) {
	if s.recorder != nil {
		s.recorder.RecordVerification(ctx, account)
	}
}

func (s *CollectionService) record(ctx context.Context, actor, action string, eventType models.EventType, request *models.CollectionRequest, attrs map[string]interface{}) {
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Account:    &actor,
		Action:     action,
		Resource:   "collection_request",
		ResourceID: idString(request.ID),
		NewValues:  jsonBytes(map[string]interface{}{"status": request.Status}),
	})
	if s.events != nil {
		if attrs == nil {
			attrs = map[string]interface{}{}
		}
		attrs["status"] = request.Status
		s.events.Emit(models.LifecycleEvent{Type: eventType, EntityID: request.ID, Actor: actor, Attributes: attrs})
	}
	s.logger.Info("collection transition",
		zap.Int64("request_id", request.ID),
		zap.String("status", string(request.Status)),
		zap.String("actor", actor),
	)
}

func toWasteItems(inputs []dto.WasteItemInput) ([]models.WasteItem, error) {
	if len(inputs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one waste item is required")
	}
	items := make([]models.WasteItem, len(inputs))
	for i, input := range inputs {
		if strings.TrimSpace(input.WasteType) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("wasteItems[%d].wasteType is required", i))
		}
		if input.Amount <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("wasteItems[%d].amount must be greater than zero", i))
		}
		wasteType, ok := models.ParseWasteType(input.WasteType)
		if !ok {
			wasteType = models.WasteTypeMixed
		}
		items[i] = models.WasteItem{WasteType: wasteType, Amount: input.Amount}
	}
	return items, nil
}

// toFixedPoint converts degrees to the ledger's integer micro-degree form.
func toFixedPoint(degrees float64) int64 {
	return decimal.NewFromFloat(degrees).Shift(6).Round(0).IntPart()
}

func invalidState(current models.CollectionStatus, transition string) error {
	return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot %s a request in status %s", transition, current))
}

func transitionError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrInvalidState, "state changed concurrently; refetch and retry")
	}
	return appErrors.Ledger(err, "ledger write failed")
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return offset, limit
}
