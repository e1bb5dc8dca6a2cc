package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sortify-api/internal/models"
)

// LedgerRepository reads balances and entries. Credits are only written inside the
// transaction of the transition that settles them.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Balance returns the account balance, zero when the account was never credited.
func (r *LedgerRepository) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.GetContext(ctx, &balance, `SELECT balance FROM account_balances WHERE account = $1`, account)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// ListEntries returns entries for an account, newest first, with the total count.
func (r *LedgerRepository) ListEntries(ctx context.Context, account string, limit, offset int) ([]models.LedgerEntry, int, error) {
	limit, offset = clampPage(limit, offset, 1000)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM ledger_entries WHERE account = $1`, account); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}
	const query = `SELECT id, account, amount, kind, reference_type, reference_id, created_at
	FROM ledger_entries WHERE account = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, account, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, total, nil
}

// creditTx appends ledger entries and bumps balances within tx. Zero amounts are skipped.
func creditTx(ctx context.Context, tx *sqlx.Tx, entries []models.LedgerEntry, at time.Time) error {
	const insertEntry = `INSERT INTO ledger_entries (id, account, amount, kind, reference_type, reference_id, created_at)
	VALUES (:id, :account, :amount, :kind, :reference_type, :reference_id, :created_at)`
	const upsertBalance = `INSERT INTO account_balances (account, balance, updated_at) VALUES ($1, $2, $3)
	ON CONFLICT (account) DO UPDATE SET balance = account_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`

	for i := range entries {
		entry := &entries[i]
		if entry.Amount.IsZero() {
			continue
		}
		if entry.Amount.IsNegative() {
			return fmt.Errorf("ledger credit for %s must not be negative", entry.Account)
		}
		if entry.ID == "" {
			entry.ID = ulid.Make().String()
		}
		entry.CreatedAt = at
		if _, err := tx.NamedExecContext(ctx, insertEntry, entry); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsertBalance, entry.Account, entry.Amount, at); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
	}
	return nil
}

func clampPage(limit, offset, max int) (int, int) {
	if limit <= 0 || limit > max {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
