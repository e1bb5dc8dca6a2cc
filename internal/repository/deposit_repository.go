package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/pkg/database"
)

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("duplicate record")

const depositColumns = `id, bin_id, waste_type, reported_weight, actual_weight, user_address, deposited_at,
       transaction_id, verified, claimed, verifier, verified_at, claimed_at, reward_amount, image_path, created_at`

// DepositRepository persists smart-bin deposits.
type DepositRepository struct {
	db *sqlx.DB
}

// NewDepositRepository constructs the repository.
func NewDepositRepository(db *sqlx.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Create inserts an unverified deposit. A reused transaction id yields ErrDuplicate.
func (r *DepositRepository) Create(ctx context.Context, deposit *models.WasteDeposit) error {
	if deposit.CreatedAt.IsZero() {
		deposit.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO waste_deposits
	(bin_id, waste_type, reported_weight, user_address, deposited_at, transaction_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		deposit.BinID, deposit.WasteType, deposit.ReportedWeight, deposit.UserAddress,
		deposit.Timestamp, deposit.TransactionID, deposit.CreatedAt,
	).Scan(&deposit.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create waste deposit: %w", err)
	}
	return nil
}

// GetByID fetches a deposit.
func (r *DepositRepository) GetByID(ctx context.Context, id int64) (*models.WasteDeposit, error) {
	var deposit models.WasteDeposit
	if err := r.db.GetContext(ctx, &deposit, `SELECT `+depositColumns+` FROM waste_deposits WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &deposit, nil
}

// List returns deposits matching the filter with the total count.
func (r *DepositRepository) List(ctx context.Context, filter models.DepositFilter) ([]models.WasteDeposit, int, error) {
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 3)
	if filter.UserAddress != "" {
		args = append(args, filter.UserAddress)
		conditions = append(conditions, fmt.Sprintf("user_address = $%d", len(args)))
	}
	if filter.BinID != "" {
		args = append(args, filter.BinID)
		conditions = append(conditions, fmt.Sprintf("bin_id = $%d", len(args)))
	}
	if filter.Pending {
		conditions = append(conditions, "verifier IS NULL")
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM waste_deposits"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count waste deposits: %w", err)
	}
	order := "created_at DESC"
	if filter.Pending {
		order = "created_at ASC"
	}
	limit, offset := clampPage(filter.Limit, filter.Offset, 200)
	query := fmt.Sprintf("SELECT %s FROM waste_deposits%s ORDER BY %s, id LIMIT %d OFFSET %d", depositColumns, where, order, limit, offset)
	var deposits []models.WasteDeposit
	if err := r.db.SelectContext(ctx, &deposits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list waste deposits: %w", err)
	}
	return deposits, total, nil
}

// Review records a verifier's ruling. Only the first ruling wins.
func (r *DepositRepository) Review(ctx context.Context, id int64, verifier string, verified bool, actualWeight int64, at time.Time) error {
	const query = `UPDATE waste_deposits
	SET verified = $3, actual_weight = $4, verifier = $2, verified_at = $5
	WHERE id = $1 AND verifier IS NULL AND user_address <> $2`
	result, err := r.db.ExecContext(ctx, query, id, verifier, verified, actualWeight, at)
	if err != nil {
		return fmt.Errorf("review waste deposit: %w", err)
	}
	return expectOneRow(result, "review waste deposit")
}

// Claim flags the deposit as claimed and credits the reward in one transaction.
func (r *DepositRepository) Claim(ctx context.Context, id int64, user string, reward decimal.Decimal, at time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `UPDATE waste_deposits
		SET claimed = TRUE, claimed_at = $3, reward_amount = $4
		WHERE id = $1 AND user_address = $2 AND verified = TRUE AND claimed = FALSE`
		result, err := tx.ExecContext(ctx, query, id, user, at, reward)
		if err != nil {
			return fmt.Errorf("claim waste deposit: %w", err)
		}
		if err := expectOneRow(result, "claim waste deposit"); err != nil {
			return err
		}
		return creditTx(ctx, tx, []models.LedgerEntry{{
			Account:       user,
			Amount:        reward,
			Kind:          models.LedgerEntryDepositClaim,
			ReferenceType: models.LedgerRefDeposit,
			ReferenceID:   id,
		}}, at)
	})
}

// SetImage stores the evidence image path for a deposit owned by user.
func (r *DepositRepository) SetImage(ctx context.Context, id int64, user, path string) error {
	const query = `UPDATE waste_deposits SET image_path = $3 WHERE id = $1 AND user_address = $2`
	result, err := r.db.ExecContext(ctx, query, id, user, path)
	if err != nil {
		return fmt.Errorf("set deposit image: %w", err)
	}
	return expectOneRow(result, "set deposit image")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
