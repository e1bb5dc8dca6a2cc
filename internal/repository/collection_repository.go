package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/pkg/database"
)

const collectionColumns = `id, requester, location, latitude, longitude, pending_reward, status,
       assigned_collector, verifier, requested_at, accepted_at, completed_at, verified_at,
       notes, verification_notes, rejection_count, updated_at`

// CollectionRepository persists collection requests. Every transition is a
// conditional UPDATE; a miss is reported as sql.ErrNoRows.
type CollectionRepository struct {
	db *sqlx.DB
}

// NewCollectionRepository constructs the repository.
func NewCollectionRepository(db *sqlx.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

type collectionItemRow struct {
	RequestID int64 `db:"request_id"`
	Position  int   `db:"position"`
	models.WasteItem
}

// Create inserts the request and its items atomically, filling the generated id.
func (r *CollectionRepository) Create(ctx context.Context, req *models.CollectionRequest) error {
	if req.Status == "" {
		req.Status = models.CollectionStatusRequested
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	req.UpdatedAt = req.RequestedAt

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insertRequest = `INSERT INTO collection_requests
		(requester, location, latitude, longitude, pending_reward, status, requested_at, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
		if err := tx.QueryRowxContext(ctx, insertRequest,
			req.Requester, req.Location, req.Latitude, req.Longitude, req.PendingReward,
			req.Status, req.RequestedAt, req.Notes, req.UpdatedAt,
		).Scan(&req.ID); err != nil {
			return fmt.Errorf("create collection request: %w", err)
		}

		const insertItem = `INSERT INTO collection_request_items (request_id, position, waste_type, amount) VALUES ($1, $2, $3, $4)`
		for i, item := range req.WasteItems {
			if _, err := tx.ExecContext(ctx, insertItem, req.ID, i, item.WasteType, item.Amount); err != nil {
				return fmt.Errorf("create collection item: %w", err)
			}
		}
		return nil
	})
}

// GetByID fetches a request with its items.
func (r *CollectionRepository) GetByID(ctx context.Context, id int64) (*models.CollectionRequest, error) {
	var req models.CollectionRequest
	if err := r.db.GetContext(ctx, &req, `SELECT `+collectionColumns+` FROM collection_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	list := []models.CollectionRequest{req}
	if err := r.attachItems(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// List returns requests matching the filter, oldest first, with the total count.
func (r *CollectionRepository) List(ctx context.Context, filter models.CollectionFilter) ([]models.CollectionRequest, int, error) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Requester != "" {
		args = append(args, filter.Requester)
		conditions = append(conditions, fmt.Sprintf("requester = $%d", len(args)))
	}
	if filter.Collector != "" {
		args = append(args, filter.Collector)
		conditions = append(conditions, fmt.Sprintf("assigned_collector = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM collection_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count collection requests: %w", err)
	}

	limit, offset := clampPage(filter.Limit, filter.Offset, 200)
	query := fmt.Sprintf("SELECT %s FROM collection_requests%s ORDER BY id ASC LIMIT %d OFFSET %d", collectionColumns, where, limit, offset)
	var requests []models.CollectionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list collection requests: %w", err)
	}
	if err := r.attachItems(ctx, requests); err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// Accept assigns the collector if the request is still open and unassigned.
func (r *CollectionRepository) Accept(ctx context.Context, id int64, collector string, at time.Time) error {
	const query = `UPDATE collection_requests
	SET status = 'ACCEPTED', assigned_collector = $2, accepted_at = $3, updated_at = $3
	WHERE id = $1 AND status = 'REQUESTED' AND assigned_collector IS NULL AND requester <> $2`
	return r.exec(ctx, "accept collection request", query, id, collector, at)
}

// Complete marks an accepted request as collected by its assigned collector.
func (r *CollectionRepository) Complete(ctx context.Context, id int64, collector string, at time.Time) error {
	const query = `UPDATE collection_requests
	SET status = 'COMPLETED', completed_at = $3, updated_at = $3
	WHERE id = $1 AND status = 'ACCEPTED' AND assigned_collector = $2`
	return r.exec(ctx, "complete collection request", query, id, collector, at)
}

// Reject sends a completed request back to REQUESTED and clears the assignment.
// accepted_at and completed_at describe the current assignment only, so they
// are cleared here and stamped again by the next Accept and Complete.
func (r *CollectionRepository) Reject(ctx context.Context, id int64, notes *string, at time.Time) error {
	const query = `UPDATE collection_requests
	SET status = 'REQUESTED', assigned_collector = NULL, accepted_at = NULL, completed_at = NULL,
	    verification_notes = $2, rejection_count = rejection_count + 1, updated_at = $3
	WHERE id = $1 AND status = 'COMPLETED'`
	return r.exec(ctx, "reject collection request", query, id, notes, at)
}

// Cancel closes a request owned by requester that has not been completed.
func (r *CollectionRepository) Cancel(ctx context.Context, id int64, requester string, at time.Time) error {
	const query = `UPDATE collection_requests
	SET status = 'CANCELLED', updated_at = $3
	WHERE id = $1 AND requester = $2 AND status IN ('REQUESTED', 'ACCEPTED')`
	return r.exec(ctx, "cancel collection request", query, id, requester, at)
}

// SettleParams carries the verification outcome and the ledger credits it produces.
type SettleParams struct {
	ID       int64
	Verifier string
	Notes    *string
	At       time.Time
	Credits  []models.LedgerEntry
}

// Settle moves a completed request to VERIFIED, zeroes its pending reward and
// credits the ledger in one transaction.
func (r *CollectionRepository) Settle(ctx context.Context, params SettleParams) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `UPDATE collection_requests
		SET status = 'VERIFIED', verifier = $2, verified_at = $3, verification_notes = $4,
		    pending_reward = 0, updated_at = $3
		WHERE id = $1 AND status = 'COMPLETED' AND requester <> $2 AND assigned_collector <> $2`
		result, err := tx.ExecContext(ctx, query, params.ID, params.Verifier, params.At, params.Notes)
		if err != nil {
			return fmt.Errorf("settle collection request: %w", err)
		}
		if err := expectOneRow(result, "settle collection request"); err != nil {
			return err
		}
		return creditTx(ctx, tx, params.Credits, params.At)
	})
}

// AccountStats counts requests created by the account and pickups it completed.
func (r *CollectionRepository) AccountStats(ctx context.Context, account string) (requested int, collected int, err error) {
	const query = `SELECT
	    COUNT(*) FILTER (WHERE requester = $1) AS requested,
	    COUNT(*) FILTER (WHERE assigned_collector = $1 AND status IN ('COMPLETED', 'VERIFIED')) AS collected
	FROM collection_requests WHERE requester = $1 OR assigned_collector = $1`
	row := struct {
		Requested int `db:"requested"`
		Collected int `db:"collected"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, account); err != nil {
		return 0, 0, fmt.Errorf("collection stats: %w", err)
	}
	return row.Requested, row.Collected, nil
}

func (r *CollectionRepository) attachItems(ctx context.Context, requests []models.CollectionRequest) error {
	if len(requests) == 0 {
		return nil
	}
	ids := make([]int64, len(requests))
	index := make(map[int64]int, len(requests))
	for i, req := range requests {
		ids[i] = req.ID
		index[req.ID] = i
		requests[i].WasteItems = []models.WasteItem{}
	}
	const query = `SELECT request_id, position, waste_type, amount FROM collection_request_items
	WHERE request_id = ANY($1) ORDER BY request_id, position`
	var rows []collectionItemRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load collection items: %w", err)
	}
	for _, row := range rows {
		if i, ok := index[row.RequestID]; ok {
			requests[i].WasteItems = append(requests[i].WasteItems, row.WasteItem)
		}
	}
	return nil
}

func (r *CollectionRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOneRow(result, op)
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
