package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

type verifierStore interface {
	Get(ctx context.Context, account string) (*models.VerifierCredential, error)
	Grant(ctx context.Context, cred *models.VerifierCredential) error
	Revoke(ctx context.Context, account string, at time.Time) error
	RecordVerification(ctx context.Context, account string) error
}

// VerifierAuthorizer answers whether an account may verify collections and deposits.
type VerifierAuthorizer interface {
	IsVerifier(ctx context.Context, account string) (bool, error)
}

// VerifierService manages verifier credentials and caches capability lookups.
type VerifierService struct {
	store  verifierStore
	cache  *CacheService
	ttl    time.Duration
	audit  auditLogger
	logger *zap.Logger
}

// NewVerifierService constructs the service. cache may be nil.
func NewVerifierService(store verifierStore, cache *CacheService, ttl time.Duration, audit auditLogger, logger *zap.Logger) *VerifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerifierService{store: store, cache: cache, ttl: ttl, audit: audit, logger: logger}
}

func verifierCacheKey(account string) string {
	return "verifier:" + account
}

// IsVerifier implements VerifierAuthorizer.
func (s *VerifierService) IsVerifier(ctx context.Context, account string) (bool, error) {
	cred, err := s.lookup(ctx, account)
	if err != nil {
		return false, err
	}
	return cred != nil && cred.Active, nil
}

// Get returns the credential or NotFound.
func (s *VerifierService) Get(ctx context.Context, rawAccount string) (*models.VerifierCredential, error) {
	account, ok := models.NormalizeAccount(rawAccount)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid account address")
	}
	cred, err := s.lookup(ctx, account)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "verifier not found")
	}
	return cred, nil
}

// lookup returns nil without error when the account never held a credential.
func (s *VerifierService) lookup(ctx context.Context, account string) (*models.VerifierCredential, error) {
	var cached models.VerifierCredential
	if s.cache.Get(ctx, verifierCacheKey(account), &cached) {
		if cached.Account == "" {
			return nil, nil
		}
		return &cached, nil
	}
	cred, err := s.store.Get(ctx, account)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.cache.Set(ctx, verifierCacheKey(account), models.VerifierCredential{}, s.ttl)
			return nil, nil
		}
		return nil, appErrors.Ledger(err, "failed to load verifier credential")
	}
	s.cache.Set(ctx, verifierCacheKey(account), cred, s.ttl)
	return cred, nil
}

// Grant gives account verifier capability. Admin only.
func (s *VerifierService) Grant(ctx context.Context, actor *models.JWTClaims, rawAccount string, level int) (*models.VerifierCredential, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	account, ok := models.NormalizeAccount(rawAccount)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid account address")
	}
	if level <= 0 {
		level = 1
	}
	grantedBy := actor.Account
	cred := &models.VerifierCredential{
		Account:           account,
		VerificationLevel: level,
		AccuracyScore:     100,
		GrantedBy:         &grantedBy,
	}
	if err := s.store.Grant(ctx, cred); err != nil {
		return nil, appErrors.Ledger(err, "failed to grant verifier")
	}
	s.cache.Invalidate(ctx, verifierCacheKey(account))
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Account:    &grantedBy,
		Action:     models.AuditActionVerifierGrant,
		Resource:   "verifier",
		ResourceID: &account,
		NewValues:  jsonBytes(map[string]int{"verificationLevel": level}),
	})
	return cred, nil
}

// Revoke removes verifier capability. Admin only.
func (s *VerifierService) Revoke(ctx context.Context, actor *models.JWTClaims, rawAccount string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	account, ok := models.NormalizeAccount(rawAccount)
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "invalid account address")
	}
	if err := s.store.Revoke(ctx, account, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no active verifier credential")
		}
		return appErrors.Ledger(err, "failed to revoke verifier")
	}
	s.cache.Invalidate(ctx, verifierCacheKey(account))
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Account:    &actor.Account,
		Action:     models.AuditActionVerifierRevoke,
		Resource:   "verifier",
		ResourceID: &account,
	})
	return nil
}

// RecordVerification bumps the verifier's counter after a committed ruling.
func (s *VerifierService) RecordVerification(ctx context.Context, account string) {
	if err := s.store.RecordVerification(ctx, account); err != nil {
		s.logger.Warn("failed to record verification", zap.String("account", account), zap.Error(err))
		return
	}
	s.cache.Invalidate(ctx, verifierCacheKey(account))
}

func requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrUnauthorizedActor, "admin role required")
	}
	return nil
}
