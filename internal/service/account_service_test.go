package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

type ledgerStub struct {
	balance decimal.Decimal
	entries []models.LedgerEntry
	err     error
}

func (l *ledgerStub) Balance(context.Context, string) (decimal.Decimal, error) {
	return l.balance, l.err
}

func (l *ledgerStub) ListEntries(_ context.Context, _ string, limit, offset int) ([]models.LedgerEntry, int, error) {
	if l.err != nil {
		return nil, 0, l.err
	}
	end := offset + limit
	if end > len(l.entries) {
		end = len(l.entries)
	}
	if offset > end {
		offset = end
	}
	return l.entries[offset:end], len(l.entries), nil
}

type statsStub struct{ requested, collected int }

func (s statsStub) AccountStats(context.Context, string) (int, int, error) {
	return s.requested, s.collected, nil
}

type credentialStub map[string]*models.VerifierCredential

func (c credentialStub) Get(_ context.Context, account string) (*models.VerifierCredential, error) {
	if cred, ok := c[account]; ok {
		return cred, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "verifier not found")
}

func sampleLedger() *ledgerStub {
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return &ledgerStub{
		balance: decimal.RequireFromString("6.3"),
		entries: []models.LedgerEntry{
			{ID: "01J0000000000000000000000A", Account: requesterAccount, Amount: decimal.RequireFromString("4.9"), Kind: models.LedgerEntryCollectionRequester, ReferenceType: models.LedgerRefCollection, ReferenceID: 1, CreatedAt: at},
			{ID: "01J0000000000000000000000B", Account: requesterAccount, Amount: decimal.RequireFromString("1.4"), Kind: models.LedgerEntryDepositClaim, ReferenceType: models.LedgerRefDeposit, ReferenceID: 3, CreatedAt: at.Add(time.Hour)},
		},
	}
}

func TestProfileCombinesBalanceStatsAndCredential(t *testing.T) {
	svc := NewAccountService(sampleLedger(), statsStub{requested: 3, collected: 2},
		credentialStub{requesterAccount: {Account: requesterAccount, Active: true, VerificationLevel: 2}}, nil)

	profile, err := svc.Profile(context.Background(), strings.ToLower(requesterAccount))
	require.NoError(t, err)
	assert.Equal(t, "6.3", profile.TokenBalance)
	assert.Equal(t, 3, profile.TotalRequests)
	assert.Equal(t, 2, profile.CompletedCollections)
	assert.True(t, profile.IsCollector)
	assert.True(t, profile.IsVerifier)
	require.NotNil(t, profile.Verifier)
	assert.Equal(t, 2, profile.Verifier.VerificationLevel)
}

func TestProfileWithoutCredential(t *testing.T) {
	svc := NewAccountService(&ledgerStub{balance: decimal.Zero}, statsStub{}, credentialStub{}, nil)
	profile, err := svc.Profile(context.Background(), otherAccount)
	require.NoError(t, err)
	assert.Equal(t, "0.0", profile.TokenBalance)
	assert.False(t, profile.IsVerifier)
	assert.Nil(t, profile.Verifier)

	_, err = svc.Profile(context.Background(), "bogus")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestProfileSurfacesLedgerOutage(t *testing.T) {
	svc := NewAccountService(&ledgerStub{err: errors.New("connection refused")}, statsStub{}, nil, nil)
	_, err := svc.Profile(context.Background(), otherAccount)
	assert.True(t, appErrors.Is(err, appErrors.ErrLedgerUnavailable))
}

func TestLedgerPagination(t *testing.T) {
	svc := NewAccountService(sampleLedger(), statsStub{}, nil, nil)
	entries, page, err := svc.Ledger(context.Background(), claims(requesterAccount), requesterAccount, 1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerEntryDepositClaim, entries[0].Kind)
	assert.Equal(t, 2, page.TotalCount)
}

func TestLedgerVisibleToOwnerAndAdminOnly(t *testing.T) {
	svc := NewAccountService(sampleLedger(), statsStub{}, nil, nil)
	ctx := context.Background()

	_, _, err := svc.Ledger(ctx, claims(otherAccount), requesterAccount, 0, 10)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))

	_, _, err = svc.Ledger(ctx, nil, requesterAccount, 0, 10)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	entries, _, err := svc.Ledger(ctx, claims(strings.ToLower(requesterAccount)), strings.ToLower(requesterAccount), 0, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, _, err = svc.Ledger(ctx, &models.JWTClaims{Account: otherAccount, Role: models.RoleAdmin}, requesterAccount, 0, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExportLedgerFormats(t *testing.T) {
	svc := NewAccountService(sampleLedger(), statsStub{}, nil, nil)
	ctx := context.Background()

	csvStatement, err := svc.ExportLedger(ctx, claims(requesterAccount), requesterAccount, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", csvStatement.ContentType)
	assert.True(t, strings.HasSuffix(csvStatement.Filename, ".csv"))
	assert.Contains(t, string(csvStatement.Data), "COLLECTION_REQUESTER_SHARE")
	assert.Contains(t, string(csvStatement.Data), "4.9")

	pdfStatement, err := svc.ExportLedger(ctx, claims(requesterAccount), requesterAccount, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdfStatement.ContentType)
	assert.True(t, strings.HasPrefix(string(pdfStatement.Data), "%PDF"))

	_, err = svc.ExportLedger(ctx, claims(requesterAccount), requesterAccount, "xlsx")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.ExportLedger(ctx, claims(otherAccount), requesterAccount, "csv")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))

	_, err = svc.ExportLedger(ctx, &models.JWTClaims{Account: otherAccount, Role: models.RoleAdmin}, requesterAccount, "csv")
	require.NoError(t, err)
}
