package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/dto"
	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/internal/repository"
	"github.com/noah-isme/sortify-api/pkg/claimtoken"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
	"github.com/noah-isme/sortify-api/pkg/storage"
)

type memDepositStore struct {
	mu       sync.Mutex
	nextID   int64
	deposits map[int64]models.WasteDeposit
	txIDs    map[string]bool
	credits  []decimal.Decimal
}

func newMemDepositStore() *memDepositStore {
	return &memDepositStore{deposits: map[int64]models.WasteDeposit{}, txIDs: map[string]bool{}}
}

func (m *memDepositStore) Create(_ context.Context, d *models.WasteDeposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txIDs[d.TransactionID] {
		return repository.ErrDuplicate
	}
	m.txIDs[d.TransactionID] = true
	m.nextID++
	d.ID = m.nextID
	m.deposits[d.ID] = *d
	return nil
}

func (m *memDepositStore) GetByID(_ context.Context, id int64) (*models.WasteDeposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m *memDepositStore) List(_ context.Context, filter models.DepositFilter) ([]models.WasteDeposit, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WasteDeposit
	for id := int64(1); id <= m.nextID; id++ {
		d := m.deposits[id]
		if filter.Pending && d.Verifier != nil {
			continue
		}
		if filter.UserAddress != "" && d.UserAddress != filter.UserAddress {
			continue
		}
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *memDepositStore) Review(_ context.Context, id int64, verifier string, verified bool, weight int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok || d.Verifier != nil || d.UserAddress == verifier {
		return sql.ErrNoRows
	}
	d.Verifier, d.Verified, d.ActualWeight, d.VerifiedAt = &verifier, verified, &weight, &at
	m.deposits[id] = d
	return nil
}

func (m *memDepositStore) Claim(_ context.Context, id int64, user string, reward decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok || d.UserAddress != user || !d.Verified || d.Claimed {
		return sql.ErrNoRows
	}
	d.Claimed, d.ClaimedAt, d.RewardAmount = true, &at, &reward
	m.deposits[id] = d
	m.credits = append(m.credits, reward)
	return nil
}

func (m *memDepositStore) SetImage(_ context.Context, id int64, user, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok || d.UserAddress != user {
		return sql.ErrNoRows
	}
	d.ImagePath = &path
	m.deposits[id] = d
	return nil
}

type depositFixture struct {
	svc    *DepositService
	store  *memDepositStore
	signer *claimtoken.Signer
	events *eventRecorder
	clock  time.Time
}

func newDepositFixture(t *testing.T) *depositFixture {
	t.Helper()
	f := &depositFixture{store: newMemDepositStore(), events: &eventRecorder{}, clock: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.signer = claimtoken.NewSigner("bin-secret", 24*time.Hour, claimtoken.WithClock(func() time.Time { return f.clock }))

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f.svc = NewDepositService(f.store, f.signer, newTestCalculator(), verifierSet{verifierAccount: true, collectorAccount: true}, nil, nil,
		WithDepositObservers(&auditStub{}, f.events, NewMetricsService(), nil),
		WithDepositClock(func() time.Time { return f.clock }),
		WithDepositEvidence(EvidenceOptions{
			Store:        local,
			Signer:       storage.NewSignedURLSigner("url-secret", time.Hour),
			BaseURL:      "/api/v1/evidence/",
			MaxBytes:     1024,
			AllowedMIMEs: []string{"image/png", "image/jpeg"},
		}),
	)
	return f
}

func (f *depositFixture) issue(t *testing.T, wasteType string, kg float64) string {
	t.Helper()
	token, _, err := f.signer.Issue("bin-7", wasteType, kg)
	require.NoError(t, err)
	return token
}

func (f *depositFixture) submit(t *testing.T, wasteType string, kg float64) *models.WasteDeposit {
	t.Helper()
	deposit, err := f.svc.Submit(context.Background(), claims(requesterAccount), dto.SubmitDepositRequest{ClaimToken: f.issue(t, wasteType, kg)})
	require.NoError(t, err)
	return deposit
}

func TestSubmitDepositFromClaimToken(t *testing.T) {
	f := newDepositFixture(t)
	deposit := f.submit(t, "plastic", 1.2345)

	assert.Equal(t, models.WasteTypePlastic, deposit.WasteType)
	assert.EqualValues(t, 1235, deposit.ReportedWeight)
	assert.Equal(t, "bin-7", deposit.BinID)
	assert.Equal(t, requesterAccount, deposit.UserAddress)
	assert.False(t, deposit.Verified)
	assert.Equal(t, f.clock, deposit.Timestamp)
	assert.Equal(t, []models.EventType{models.EventWasteDeposited}, f.events.types())
}

func TestSubmitDepositRejectsReplayAndStaleTokens(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()
	token := f.issue(t, "glass", 0.5)

	_, err := f.svc.Submit(ctx, claims(requesterAccount), dto.SubmitDepositRequest{ClaimToken: token})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, claims(otherAccount), dto.SubmitDepositRequest{ClaimToken: token})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	old := f.issue(t, "glass", 0.5)
	f.clock = f.clock.Add(24*time.Hour + time.Second)
	_, err = f.svc.Submit(ctx, claims(requesterAccount), dto.SubmitDepositRequest{ClaimToken: old})
	assert.True(t, appErrors.Is(err, appErrors.ErrStaleClaim))

	_, err = f.svc.Submit(ctx, claims(requesterAccount), dto.SubmitDepositRequest{ClaimToken: "garbage.token"})
	assert.True(t, appErrors.Is(err, appErrors.ErrStaleClaim))

	forged := claimtoken.NewSigner("other-secret", time.Hour)
	bad, _, err := forged.Issue("bin-7", "glass", 0.5)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, claims(requesterAccount), dto.SubmitDepositRequest{ClaimToken: bad})
	assert.True(t, appErrors.Is(err, appErrors.ErrStaleClaim))
}

func TestSubmitDepositAcceptsTokenAtExactCutoff(t *testing.T) {
	f := newDepositFixture(t)
	token := f.issue(t, "metal", 1)
	f.clock = f.clock.Add(24 * time.Hour)
	_, err := f.svc.Submit(context.Background(), claims(requesterAccount), dto.SubmitDepositRequest{ClaimToken: token})
	require.NoError(t, err)
}

func TestDepositVerifyThenClaimOnce(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()
	deposit := f.submit(t, "plastic", 1.5)

	_, err := f.svc.Claim(ctx, claims(requesterAccount), deposit.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	verified, err := f.svc.Verify(ctx, claims(verifierAccount), deposit.ID, dto.VerifyDepositRequest{Verified: boolPtr(true), ActualWeight: 2000})
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.EqualValues(t, 2000, *verified.ActualWeight)

	_, err = f.svc.Verify(ctx, claims(collectorAccount), deposit.ID, dto.VerifyDepositRequest{Verified: boolPtr(false)})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	_, err = f.svc.Claim(ctx, claims(otherAccount), deposit.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))

	claimed, err := f.svc.Claim(ctx, claims(requesterAccount), deposit.ID)
	require.NoError(t, err)
	assert.True(t, claimed.Claimed)
	assert.Equal(t, "4", claimed.RewardAmount.String())

	_, err = f.svc.Claim(ctx, claims(requesterAccount), deposit.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Len(t, f.store.credits, 1)
}

func TestDepositApprovalWithoutWeightKeepsReportedWeight(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()
	deposit := f.submit(t, "plastic", 1.5)

	verified, err := f.svc.Verify(ctx, claims(verifierAccount), deposit.ID, dto.VerifyDepositRequest{Verified: boolPtr(true)})
	require.NoError(t, err)
	require.NotNil(t, verified.ActualWeight)
	assert.EqualValues(t, 1500, *verified.ActualWeight)
	assert.EqualValues(t, 1500, *f.store.deposits[deposit.ID].ActualWeight)

	claimed, err := f.svc.Claim(ctx, claims(requesterAccount), deposit.ID)
	require.NoError(t, err)
	expected := newTestCalculator().DepositReward(models.WasteTypePlastic, deposit.ReportedWeight)
	assert.True(t, expected.IsPositive())
	assert.True(t, expected.Equal(*claimed.RewardAmount), "got %s", claimed.RewardAmount)
}

func TestDepositRejectionWithoutWeightStaysZero(t *testing.T) {
	f := newDepositFixture(t)
	deposit := f.submit(t, "paper", 1)

	rejected, err := f.svc.Verify(context.Background(), claims(verifierAccount), deposit.ID, dto.VerifyDepositRequest{Verified: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, rejected.Verified)
	assert.EqualValues(t, 0, *rejected.ActualWeight)
}

func TestSubmitDepositRejectsWeightlessToken(t *testing.T) {
	f := newDepositFixture(t)
	for _, kg := range []float64{0, 0.0004} {
		_, err := f.svc.Submit(context.Background(), claims(requesterAccount), dto.SubmitDepositRequest{ClaimToken: f.issue(t, "plastic", kg)})
		assert.True(t, appErrors.Is(err, appErrors.ErrStaleClaim), "weight %v", kg)
	}
	assert.Empty(t, f.store.deposits)
}

func TestDepositVerifyRules(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()
	deposit := f.submit(t, "paper", 1)

	_, err := f.svc.Verify(ctx, claims(otherAccount), deposit.ID, dto.VerifyDepositRequest{Verified: boolPtr(true), ActualWeight: 1000})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))

	f.svc.verifiers = verifierSet{requesterAccount: true}
	_, err = f.svc.Verify(ctx, claims(requesterAccount), deposit.ID, dto.VerifyDepositRequest{Verified: boolPtr(true), ActualWeight: 1000})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))

	f.svc.verifiers = verifierSet{verifierAccount: true}
	_, err = f.svc.Verify(ctx, claims(verifierAccount), deposit.ID, dto.VerifyDepositRequest{Verified: boolPtr(true), ActualWeight: -1})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Verify(ctx, claims(verifierAccount), deposit.ID, dto.VerifyDepositRequest{Verified: boolPtr(false), ActualWeight: 0})
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, claims(requesterAccount), deposit.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestListPendingRequiresVerifier(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()
	first := f.submit(t, "paper", 1)
	f.submit(t, "glass", 1)
	_, err := f.svc.Verify(ctx, claims(verifierAccount), first.ID, dto.VerifyDepositRequest{Verified: boolPtr(true), ActualWeight: 900})
	require.NoError(t, err)

	_, _, err = f.svc.ListPending(ctx, claims(otherAccount), 0, 10)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))

	pending, page, err := f.svc.ListPending(ctx, claims(verifierAccount), 0, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, 1, page.TotalCount)
}

func TestDepositEvidenceImage(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()
	deposit := f.submit(t, "plastic", 1)

	_, err := f.svc.AttachImage(ctx, claims(requesterAccount), deposit.ID, "application/pdf", strings.NewReader("%PDF"))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.AttachImage(ctx, claims(requesterAccount), deposit.ID, "image/png", bytes.NewReader(make([]byte, 2048)))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.AttachImage(ctx, claims(otherAccount), deposit.ID, "image/png", strings.NewReader("png"))
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))

	link, err := f.svc.AttachImage(ctx, claims(requesterAccount), deposit.ID, "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/api/v1/evidence/"))

	viewed, err := f.svc.ImageURL(ctx, claims(verifierAccount), deposit.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, viewed.URL)
	_, err = f.svc.ImageURL(ctx, claims(otherAccount), deposit.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))

	file, contentType, err := f.svc.OpenImage(strings.TrimPrefix(link.URL, "/api/v1/evidence/"))
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))
	assert.Equal(t, "image/png", contentType)

	_, _, err = f.svc.OpenImage("tampered.token.value.sig")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestKilogramsToGrams(t *testing.T) {
	assert.EqualValues(t, 1500, kilogramsToGrams(1.5))
	assert.EqualValues(t, 1, kilogramsToGrams(0.0005))
	assert.EqualValues(t, 0, kilogramsToGrams(0))
}
