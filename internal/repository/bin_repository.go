package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sortify-api/internal/models"
)

// BinRepository persists registered smart bins.
type BinRepository struct {
	db *sqlx.DB
}

// NewBinRepository constructs the repository.
func NewBinRepository(db *sqlx.DB) *BinRepository {
	return &BinRepository{db: db}
}

// Create registers a bin. A taken id yields ErrDuplicate.
func (r *BinRepository) Create(ctx context.Context, bin *models.SmartBin) error {
	if bin.CreatedAt.IsZero() {
		bin.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO smart_bins (id, location, latitude, longitude, api_key_hash, active, created_at)
	VALUES (:id, :location, :latitude, :longitude, :api_key_hash, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, bin); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create smart bin: %w", err)
	}
	return nil
}

// GetByID fetches a bin including its key hash.
func (r *BinRepository) GetByID(ctx context.Context, id string) (*models.SmartBin, error) {
	var bin models.SmartBin
	const query = `SELECT id, location, latitude, longitude, api_key_hash, active, created_at FROM smart_bins WHERE id = $1`
	if err := r.db.GetContext(ctx, &bin, query, id); err != nil {
		return nil, err
	}
	return &bin, nil
}

// List returns every bin ordered by id.
func (r *BinRepository) List(ctx context.Context) ([]models.SmartBin, error) {
	var bins []models.SmartBin
	const query = `SELECT id, location, latitude, longitude, api_key_hash, active, created_at FROM smart_bins ORDER BY id`
	if err := r.db.SelectContext(ctx, &bins, query); err != nil {
		return nil, fmt.Errorf("list smart bins: %w", err)
	}
	return bins, nil
}
