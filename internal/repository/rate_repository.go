package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sortify-api/internal/models"
)

// RateRepository persists the reward rate table.
type RateRepository struct {
	db *sqlx.DB
}

// NewRateRepository constructs the repository.
func NewRateRepository(db *sqlx.DB) *RateRepository {
	return &RateRepository{db: db}
}

// List returns every configured rate.
func (r *RateRepository) List(ctx context.Context) ([]models.RewardRate, error) {
	var rates []models.RewardRate
	if err := r.db.SelectContext(ctx, &rates, `SELECT waste_type, rate, description, updated_by FROM reward_rates ORDER BY waste_type`); err != nil {
		return nil, fmt.Errorf("list reward rates: %w", err)
	}
	return rates, nil
}

// Upsert writes a single rate.
func (r *RateRepository) Upsert(ctx context.Context, rate models.RewardRate) error {
	const query = `INSERT INTO reward_rates (waste_type, rate, description, updated_by, updated_at)
	VALUES (:waste_type, :rate, :description, :updated_by, :updated_at)
	ON CONFLICT (waste_type) DO UPDATE SET rate = EXCLUDED.rate,
	    description = CASE WHEN EXCLUDED.description = '' THEN reward_rates.description ELSE EXCLUDED.description END,
	    updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"waste_type":  rate.WasteType,
		"rate":        rate.Rate,
		"description": rate.Description,
		"updated_by":  rate.UpdatedBy,
		"updated_at":  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("upsert reward rate: %w", err)
	}
	return nil
}
