package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sortify-api/internal/models"
)

// VerifierRepository persists verifier credentials.
type VerifierRepository struct {
	db *sqlx.DB
}

// NewVerifierRepository constructs the repository.
func NewVerifierRepository(db *sqlx.DB) *VerifierRepository {
	return &VerifierRepository{db: db}
}

// Get returns the credential for account, active or not.
func (r *VerifierRepository) Get(ctx context.Context, account string) (*models.VerifierCredential, error) {
	const query = `SELECT account, active, verification_level, accuracy_score, total_verifications,
	       granted_by, granted_at, revoked_at FROM verifier_credentials WHERE account = $1`
	var cred models.VerifierCredential
	if err := r.db.GetContext(ctx, &cred, query, account); err != nil {
		return nil, err
	}
	return &cred, nil
}

// Grant creates or reactivates a credential. Counters survive reactivation.
func (r *VerifierRepository) Grant(ctx context.Context, cred *models.VerifierCredential) error {
	if cred.GrantedAt.IsZero() {
		cred.GrantedAt = time.Now().UTC()
	}
	cred.Active = true
	cred.RevokedAt = nil
	const query = `INSERT INTO verifier_credentials
	(account, active, verification_level, accuracy_score, total_verifications, granted_by, granted_at, revoked_at)
	VALUES (:account, :active, :verification_level, :accuracy_score, :total_verifications, :granted_by, :granted_at, NULL)
	ON CONFLICT (account) DO UPDATE SET active = TRUE, verification_level = EXCLUDED.verification_level,
	    granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at, revoked_at = NULL`
	if _, err := r.db.NamedExecContext(ctx, query, cred); err != nil {
		return fmt.Errorf("grant verifier: %w", err)
	}
	return nil
}

// Revoke deactivates an active credential.
func (r *VerifierRepository) Revoke(ctx context.Context, account string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE verifier_credentials SET active = FALSE, revoked_at = $2 WHERE account = $1 AND active = TRUE`, account, at)
	if err != nil {
		return fmt.Errorf("revoke verifier: %w", err)
	}
	return expectOneRow(result, "revoke verifier")
}

// RecordVerification bumps the verification counter.
func (r *VerifierRepository) RecordVerification(ctx context.Context, account string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE verifier_credentials SET total_verifications = total_verifications + 1 WHERE account = $1`, account); err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	return nil
}
