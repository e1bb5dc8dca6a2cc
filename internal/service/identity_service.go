package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

type sessionStore interface {
	SaveNonce(ctx context.Context, account, nonce string, ttl time.Duration) error
	ConsumeNonce(ctx context.Context, account string) (string, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// IdentityConfig defines token issuance for wallet sessions.
type IdentityConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	NonceTTL          time.Duration
	AdminAccounts     []string
}

// IdentityService authenticates wallets by signed challenge and issues access tokens.
type IdentityService struct {
	sessions  sessionStore
	validator *validator.Validate
	audit     auditLogger
	logger    *zap.Logger
	config    IdentityConfig
	admins    map[string]struct{}
	now       func() time.Time
}

// NewIdentityService constructs an IdentityService instance.
func NewIdentityService(sessions sessionStore, validate *validator.Validate, audit auditLogger, logger *zap.Logger, config IdentityConfig) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	if config.NonceTTL <= 0 {
		config.NonceTTL = 5 * time.Minute
	}
	admins := make(map[string]struct{}, len(config.AdminAccounts))
	for _, raw := range config.AdminAccounts {
		if account, ok := models.NormalizeAccount(raw); ok {
			admins[account] = struct{}{}
		}
	}
	return &IdentityService{
		sessions:  sessions,
		validator: validate,
		audit:     audit,
		logger:    logger,
		config:    config,
		admins:    admins,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ChallengeMessage is the exact text a wallet signs with personal_sign.
func ChallengeMessage(account, nonce string) string {
	return fmt.Sprintf("Sign in to Sortify\n\nAccount: %s\nNonce: %s", account, nonce)
}

// Nonce issues a one-time challenge for account.
func (s *IdentityService) Nonce(ctx context.Context, req dto.NonceRequest) (*models.NonceChallenge, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "account is required")
	}
	account, ok := models.NormalizeAccount(req.Account)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "account must be a 0x-prefixed address")
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate nonce")
	}
	nonce := hex.EncodeToString(buf)
	if err := s.sessions.SaveNonce(ctx, account, nonce, s.config.NonceTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store nonce")
	}
	return &models.NonceChallenge{
		Account:   account,
		Nonce:     nonce,
		Message:   ChallengeMessage(account, nonce),
		ExpiresIn: int64(s.config.NonceTTL.Seconds()),
	}, nil
}

// Connect verifies the signed challenge and issues an access token.
func (s *IdentityService) Connect(ctx context.Context, req dto.ConnectRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid connect payload")
	}
	account, ok := models.NormalizeAccount(req.Account)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "account must be a 0x-prefixed address")
	}
	nonce, err := s.sessions.ConsumeNonce(ctx, account)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "no pending challenge for account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load nonce")
	}
	signer, err := RecoverSigner(ChallengeMessage(account, nonce), req.Signature)
	if err != nil || !models.SameAccount(signer, account) {
		return nil, appErrors.ErrInvalidSignature
	}

	role := models.RoleMember
	if _, ok := s.admins[account]; ok {
		role = models.RoleAdmin
	}
	token, expiresAt, err := s.generateAccessToken(account, role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Account:    &account,
		Action:     models.AuditActionConnect,
		Resource:   "auth",
		ResourceID: &account,
		NewValues:  []byte(`{"status":"connected"}`),
	})
	s.logger.Info("wallet connected", zap.String("account", account), zap.String("role", string(role)))

	return &models.Session{
		AccessToken: token,
		ExpiresIn:   int64(expiresAt.Sub(s.now()).Seconds()),
		Account:     account,
		Role:        role,
	}, nil
}

// Disconnect revokes the caller's access token until it would have expired.
func (s *IdentityService) Disconnect(ctx context.Context, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	ttl := s.config.AccessTokenExpiry
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if err := s.sessions.Revoke(ctx, claims.ID, ttl); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}
	account := claims.Account
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Account:    &account,
		Action:     models.AuditActionDisconnect,
		Resource:   "auth",
		ResourceID: &account,
		NewValues:  []byte(`{"status":"disconnected"}`),
	})
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *IdentityService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.Account == "" || claims.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Warn("revocation check failed", zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session state unavailable")
	}
	if revoked {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session disconnected")
	}
	return claims, nil
}

func (s *IdentityService) generateAccessToken(account string, role models.Role) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		Account: account,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   account,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// RecoverSigner returns the checksummed address that produced an EIP-191
// personal_sign signature over message.
func RecoverSigner(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", errors.New("signature must be 65 bytes")
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
