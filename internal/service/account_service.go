package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
	"github.com/noah-isme/sortify-api/pkg/export"
)

const statementMaxEntries = 1000

type ledgerReader interface {
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
	ListEntries(ctx context.Context, account string, limit, offset int) ([]models.LedgerEntry, int, error)
}

type accountStatsReader interface {
	AccountStats(ctx context.Context, account string) (requested int, collected int, err error)
}

type credentialFinder interface {
	Get(ctx context.Context, rawAccount string) (*models.VerifierCredential, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// LedgerStatement is a rendered export ready for download.
type LedgerStatement struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AccountService answers read-side questions about an account.
type AccountService struct {
	ledger    ledgerReader
	stats     accountStatsReader
	verifiers credentialFinder
	csv       datasetRenderer
	pdf       datasetRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccountService constructs the service.
func NewAccountService(ledger ledgerReader, stats accountStatsReader, verifiers credentialFinder, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		ledger:    ledger,
		stats:     stats,
		verifiers: verifiers,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Profile returns balance, activity counters and verifier credentials.
func (s *AccountService) Profile(ctx context.Context, rawAccount string) (*models.AccountProfile, error) {
	account, err := normalizeAccountParam(rawAccount)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, account)
	if err != nil {
		return nil, appErrors.Ledger(err, "failed to load balance")
	}
	requested, collected, err := s.stats.AccountStats(ctx, account)
	if err != nil {
		return nil, appErrors.Ledger(err, "failed to load account activity")
	}
	profile := &models.AccountProfile{
		Account:              account,
		TokenBalance:         balance.StringFixed(rewardPlaces),
		TotalRequests:        requested,
		CompletedCollections: collected,
		IsCollector:          collected > 0,
	}
	if s.verifiers != nil {
		cred, err := s.verifiers.Get(ctx, account)
		switch {
		case err == nil:
			profile.Verifier = cred
			profile.IsVerifier = cred.Active
		case appErrors.Is(err, appErrors.ErrNotFound):
		default:
			return nil, err
		}
	}
	return profile, nil
}

// Ledger returns a page of ledger entries, newest first. Entries are visible
// to the account owner and admins only.
func (s *AccountService) Ledger(ctx context.Context, actor *models.JWTClaims, rawAccount string, offset, limit int) ([]models.LedgerEntry, *models.Pagination, error) {
	account, err := ledgerAccount(actor, rawAccount)
	if err != nil {
		return nil, nil, err
	}
	offset, limit = normalizePage(offset, limit)
	entries, total, err := s.ledger.ListEntries(ctx, account, limit, offset)
	if err != nil {
		return nil, nil, appErrors.Ledger(err, "failed to list ledger entries")
	}
	return entries, &models.Pagination{Offset: offset, Limit: limit, TotalCount: total}, nil
}

// ExportLedger renders the account statement as csv or pdf under the same
// visibility rule as Ledger.
func (s *AccountService) ExportLedger(ctx context.Context, actor *models.JWTClaims, rawAccount, format string) (*LedgerStatement, error) {
	account, err := ledgerAccount(actor, rawAccount)
	if err != nil {
		return nil, err
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	var renderer datasetRenderer
	var contentType string
	switch format {
	case "csv":
		renderer, contentType = s.csv, "text/csv"
	case "pdf":
		renderer, contentType = s.pdf, "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	balance, err := s.ledger.Balance(ctx, account)
	if err != nil {
		return nil, appErrors.Ledger(err, "failed to load balance")
	}
	entries, total, err := s.ledger.ListEntries(ctx, account, statementMaxEntries, 0)
	if err != nil {
		return nil, appErrors.Ledger(err, "failed to list ledger entries")
	}

	generatedAt := s.now()
	dataset := export.Dataset{
		Title: "Sortify ledger statement",
		Summary: []string{
			"Account: " + account,
			"Balance: " + balance.StringFixed(rewardPlaces),
			fmt.Sprintf("Entries: %d of %d", len(entries), total),
			"Generated: " + generatedAt.Format(time.RFC3339),
		},
		Headers: []string{"Date", "Kind", "Reference", "Amount"},
		Rows:    make([]map[string]string, 0, len(entries)),
	}
	for _, entry := range entries {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":      entry.CreatedAt.UTC().Format(time.RFC3339),
			"Kind":      string(entry.Kind),
			"Reference": fmt.Sprintf("%s#%d", entry.ReferenceType, entry.ReferenceID),
			"Amount":    entry.Amount.StringFixed(rewardPlaces),
		})
	}

	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}
	s.logger.Info("ledger statement exported", zap.String("account", account), zap.String("format", format), zap.Int("entries", len(entries)))
	return &LedgerStatement{
		Filename:    fmt.Sprintf("ledger-%s-%s.%s", strings.ToLower(account), generatedAt.Format("20060102"), format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func normalizeAccountParam(raw string) (string, error) {
	account, ok := models.NormalizeAccount(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid account address")
	}
	return account, nil
}

func ledgerAccount(actor *models.JWTClaims, rawAccount string) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}
	account, err := normalizeAccountParam(rawAccount)
	if err != nil {
		return "", err
	}
	if !models.SameAccount(actor.Account, account) && !actor.IsAdmin() {
		return "", appErrors.Clone(appErrors.ErrUnauthorizedActor, "ledger entries are private to their account")
	}
	return account, nil
}
