package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/models"
)

const (
	requesterAddr = "0x1111111111111111111111111111111111111111"
	collectorAddr = "0x2222222222222222222222222222222222222222"
	verifierAddr  = "0x3333333333333333333333333333333333333333"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var collectionRowColumns = []string{"id", "requester", "location", "latitude", "longitude", "pending_reward", "status",
	"assigned_collector", "verifier", "requested_at", "accepted_at", "completed_at", "verified_at",
	"notes", "verification_notes", "rejection_count", "updated_at"}

func TestCollectionRepositoryCreateWritesItems(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO collection_requests")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO collection_request_items")).
		WithArgs(int64(7), 0, models.WasteTypePlastic, int64(2000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO collection_request_items")).
		WithArgs(int64(7), 1, models.WasteTypePaper, int64(3000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := &models.CollectionRequest{
		Requester:     requesterAddr,
		Location:      "Jl. Merdeka 1",
		PendingReward: decimal.RequireFromString("7.0"),
		WasteItems: []models.WasteItem{
			{WasteType: models.WasteTypePlastic, Amount: 2000},
			{WasteType: models.WasteTypePaper, Amount: 3000},
		},
	}
	require.NoError(t, repo.Create(context.Background(), req))
	require.EqualValues(t, 7, req.ID)
	require.Equal(t, models.CollectionStatusRequested, req.Status)
	require.False(t, req.RequestedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepositoryCreateRollsBackOnItemFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO collection_requests")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO collection_request_items")).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.CollectionRequest{
		Requester:  requesterAddr,
		Location:   "x",
		WasteItems: []models.WasteItem{{WasteType: models.WasteTypeGlass, Amount: 1}},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepositoryGetByIDLoadsItems(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, requester, location")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(collectionRowColumns).
			AddRow(3, requesterAddr, "Jl. Merdeka 1", -6200000, 106816666, "7.0", "REQUESTED",
				nil, nil, now, nil, nil, nil, "", nil, 0, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM collection_request_items")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "position", "waste_type", "amount"}).
			AddRow(3, 0, "PLASTIC", 2000).
			AddRow(3, 1, "PAPER", 3000))

	req, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, models.CollectionStatusRequested, req.Status)
	require.True(t, req.PendingReward.Equal(decimal.RequireFromString("7")))
	require.Len(t, req.WasteItems, 2)
	require.Equal(t, models.WasteTypePaper, req.WasteItems[1].WasteType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepositoryGetByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, requester, location")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCollectionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM collection_requests WHERE status IN ($1) AND requester = $2")).
		WithArgs(models.CollectionStatusRequested, requesterAddr).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM collection_requests WHERE status IN ($1) AND requester = $2 ORDER BY id ASC LIMIT 10 OFFSET 0")).
		WithArgs(models.CollectionStatusRequested, requesterAddr).
		WillReturnRows(sqlmock.NewRows(collectionRowColumns).
			AddRow(4, requesterAddr, "loc", 0, 0, "1.5", "REQUESTED", nil, nil, now, nil, nil, nil, "", nil, 0, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM collection_request_items")).
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "position", "waste_type", "amount"}).AddRow(4, 0, "GLASS", 1000))

	list, total, err := repo.List(context.Background(), models.CollectionFilter{
		Status:    []models.CollectionStatus{models.CollectionStatusRequested},
		Requester: requesterAddr,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.Len(t, list[0].WasteItems, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepositoryAcceptIsConditional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'REQUESTED' AND assigned_collector IS NULL")).
		WithArgs(int64(5), collectorAddr, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Accept(context.Background(), 5, collectorAddr, at))

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'REQUESTED' AND assigned_collector IS NULL")).
		WithArgs(int64(5), collectorAddr, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Accept(context.Background(), 5, collectorAddr, at), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepositoryReject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	at := time.Now().UTC()
	notes := "bags were empty"
	mock.ExpectExec(regexp.QuoteMeta("assigned_collector = NULL, accepted_at = NULL, completed_at = NULL")).
		WithArgs(int64(5), &notes, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Reject(context.Background(), 5, &notes, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepositorySettleCreditsLedger(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'VERIFIED'")).
		WithArgs(int64(5), verifierAddr, at, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, account := range []string{requesterAddr, collectorAddr} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO account_balances")).
			WithArgs(account, sqlmock.AnyArg(), at).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := repo.Settle(context.Background(), SettleParams{
		ID:       5,
		Verifier: verifierAddr,
		At:       at,
		Credits: []models.LedgerEntry{
			{Account: requesterAddr, Amount: decimal.RequireFromString("4.9"), Kind: models.LedgerEntryCollectionRequester},
			{Account: collectorAddr, Amount: decimal.RequireFromString("1.4"), Kind: models.LedgerEntryCollectionCollector},
			{Account: verifierAddr, Amount: decimal.Zero, Kind: models.LedgerEntryCollectionVerifier},
		},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionRepositorySettleStaleRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCollectionRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'VERIFIED'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Settle(context.Background(), SettleParams{ID: 5, Verifier: verifierAddr, At: time.Now()})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
