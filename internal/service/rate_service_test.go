package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

type rateStoreStub struct {
	mu      sync.Mutex
	rates   []models.RewardRate
	listErr error
}

func (s *rateStoreStub) List(context.Context) ([]models.RewardRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.RewardRate(nil), s.rates...), nil
}

func (s *rateStoreStub) Upsert(_ context.Context, rate models.RewardRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rates {
		if s.rates[i].WasteType == rate.WasteType {
			s.rates[i] = rate
			return nil
		}
	}
	s.rates = append(s.rates, rate)
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
}

func (r *eventRecorder) Emit(event models.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.logs))
	for i, l := range a.logs {
		out[i] = l.Action
	}
	return out
}

func TestRateServiceDefaultsAndReload(t *testing.T) {
	store := &rateStoreStub{rates: []models.RewardRate{{WasteType: models.WasteTypePlastic, Rate: decimal.NewFromInt(5)}}}
	svc := NewRateService(store, nil, nil, nil, 0)
	assert.Equal(t, "2", svc.Rate(models.WasteTypePlastic).String())

	require.NoError(t, svc.Reload(context.Background()))
	assert.Equal(t, "5", svc.Rate(models.WasteTypePlastic).String())
	assert.Equal(t, "1", svc.Rate(models.WasteTypePaper).String())
	assert.Len(t, svc.List(), len(models.WasteTypes))
}

func TestRateServiceReloadFailureKeepsTable(t *testing.T) {
	store := &rateStoreStub{listErr: errors.New("db down")}
	svc := NewRateService(store, nil, nil, nil, 0)
	require.Error(t, svc.Reload(context.Background()))
	assert.Equal(t, "3", svc.Rate(models.WasteTypeMetal).String())
}

func TestRateServiceUpdate(t *testing.T) {
	store := &rateStoreStub{}
	events := &eventRecorder{}
	audit := &auditStub{}
	svc := NewRateService(store, events, audit, nil, 0)
	admin := &models.JWTClaims{Account: "0xAdmin", Role: models.RoleAdmin}

	updated, err := svc.Update(context.Background(), admin, "recyclable", decimal.RequireFromString("1.25"), "")
	require.NoError(t, err)
	assert.Equal(t, models.WasteTypeMixed, updated.WasteType)
	assert.Equal(t, "1.25", svc.Rate(models.WasteTypeMixed).String())
	assert.Equal(t, []models.EventType{models.EventRatesUpdated}, events.types())
	assert.Equal(t, []string{models.AuditActionRateUpdate}, audit.actions())

	_, err = svc.Update(context.Background(), admin, "PLASTIC", decimal.RequireFromString("-1"), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Update(context.Background(), admin, "TEXTILE", decimal.NewFromInt(1), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	member := &models.JWTClaims{Account: "0xMember", Role: models.RoleMember}
	_, err = svc.Update(context.Background(), member, "PLASTIC", decimal.NewFromInt(9), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedActor))
}

func TestRateServiceConcurrentReadsDuringReload(t *testing.T) {
	store := &rateStoreStub{rates: []models.RewardRate{{WasteType: models.WasteTypeGlass, Rate: decimal.NewFromInt(4)}}}
	svc := NewRateService(store, nil, nil, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = svc.Reload(context.Background())
		}()
		go func() {
			defer wg.Done()
			rate := svc.Rate(models.WasteTypeGlass).String()
			assert.Contains(t, []string{"1.5", "4"}, rate)
		}()
	}
	wg.Wait()
	assert.Equal(t, "4", svc.Rate(models.WasteTypeGlass).String())
}
