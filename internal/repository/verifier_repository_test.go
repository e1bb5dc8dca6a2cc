package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/models"
)

func TestVerifierRepositoryGrantAndRevoke(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewVerifierRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verifier_credentials")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	cred := &models.VerifierCredential{Account: verifierAddr, VerificationLevel: 2, AccuracyScore: 100}
	require.NoError(t, repo.Grant(context.Background(), cred))
	require.True(t, cred.Active)
	require.False(t, cred.GrantedAt.IsZero())

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE verifier_credentials SET active = FALSE")).
		WithArgs(verifierAddr, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Revoke(context.Background(), verifierAddr, at), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateRepositoryListAndUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRateRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT waste_type, rate, description, updated_by FROM reward_rates")).
		WillReturnRows(sqlmock.NewRows([]string{"waste_type", "rate", "description", "updated_by"}).
			AddRow("PLASTIC", "2.00", "plastic", nil).
			AddRow("PAPER", "1.00", "paper", nil))
	rates, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 2)
	require.True(t, rates[0].Rate.Equal(decimal.NewFromInt(2)))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reward_rates")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Upsert(context.Background(), models.RewardRate{WasteType: models.WasteTypeMetal, Rate: decimal.NewFromInt(3)}))
	require.NoError(t, mock.ExpectationsWereMet())
}
