package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

const (
	nonceKeyPrefix   = "auth:nonce:"
	revokedKeyPrefix = "auth:revoked:"
)

// SessionRepository keeps wallet-connect nonces and revoked token ids in Redis.
type SessionRepository struct {
	client *redis.Client
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// SaveNonce stores the pending challenge for account, replacing any earlier one.
func (r *SessionRepository) SaveNonce(ctx context.Context, account, nonce string, ttl time.Duration) error {
	if err := r.client.Set(ctx, nonceKeyPrefix+account, nonce, ttl).Err(); err != nil {
		return fmt.Errorf("save nonce: %w", err)
	}
	return nil
}

// ConsumeNonce returns and deletes the pending challenge so it can be used once.
func (r *SessionRepository) ConsumeNonce(ctx context.Context, account string) (string, error) {
	nonce, err := r.client.GetDel(ctx, nonceKeyPrefix+account).Result()
	if errors.Is(err, redis.Nil) {
		return "", appErrors.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("consume nonce: %w", err)
	}
	return nonce, nil
}

// Revoke blocks a token id until its natural expiry.
func (r *SessionRepository) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was revoked.
func (r *SessionRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}
