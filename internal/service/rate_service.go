package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

type rateStore interface {
	List(ctx context.Context) ([]models.RewardRate, error)
	Upsert(ctx context.Context, rate models.RewardRate) error
}

// DefaultRates is the canonical table in SORT per kilogram.
func DefaultRates() []models.RewardRate {
	return []models.RewardRate{
		{WasteType: models.WasteTypePlastic, Rate: decimal.RequireFromString("2.0"), Description: "Clean plastic containers, bottles, packaging"},
		{WasteType: models.WasteTypePaper, Rate: decimal.RequireFromString("1.0"), Description: "Newspapers, magazines, cardboard, office paper"},
		{WasteType: models.WasteTypeGlass, Rate: decimal.RequireFromString("1.5"), Description: "Bottles, jars, containers (clear or colored)"},
		{WasteType: models.WasteTypeMetal, Rate: decimal.RequireFromString("3.0"), Description: "Aluminum cans, steel cans, scrap metal"},
		{WasteType: models.WasteTypeOrganic, Rate: decimal.RequireFromString("0.5"), Description: "Food waste, yard trimmings, compostable materials"},
		{WasteType: models.WasteTypeElectronic, Rate: decimal.RequireFromString("5.0"), Description: "Computers, phones, batteries, small appliances"},
		{WasteType: models.WasteTypeHazardous, Rate: decimal.RequireFromString("4.0"), Description: "Paints, chemicals, fluorescent bulbs, medical waste"},
		{WasteType: models.WasteTypeMixed, Rate: decimal.RequireFromString("1.0"), Description: "General mixed recyclable materials"},
	}
}

type rateTable struct {
	rates    map[models.WasteType]models.RewardRate
	loadedAt time.Time
}

func newRateTable(overrides []models.RewardRate, at time.Time) *rateTable {
	table := &rateTable{rates: make(map[models.WasteType]models.RewardRate, len(models.WasteTypes)), loadedAt: at}
	for _, rate := range DefaultRates() {
		table.rates[rate.WasteType] = rate
	}
	for _, rate := range overrides {
		wasteType, ok := models.ParseWasteType(string(rate.WasteType))
		if !ok || rate.Rate.IsNegative() {
			continue
		}
		rate.WasteType = wasteType
		table.rates[wasteType] = rate
	}
	return table
}

// RateService holds the active rate table and swaps it atomically on reload.
type RateService struct {
	store    rateStore
	events   eventEmitter
	audit    auditLogger
	logger   *zap.Logger
	interval time.Duration
	current  atomic.Pointer[rateTable]
}

// NewRateService starts from the canonical table; call Reload to pick up stored overrides.
func NewRateService(store rateStore, events eventEmitter, audit auditLogger, logger *zap.Logger, interval time.Duration) *RateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RateService{store: store, events: events, audit: audit, logger: logger, interval: interval}
	s.current.Store(newRateTable(nil, time.Now().UTC()))
	return s
}

// Rate implements RateSource. Unknown types are priced as MIXED.
func (s *RateService) Rate(wasteType models.WasteType) decimal.Decimal {
	table := s.current.Load()
	if rate, ok := table.rates[wasteType]; ok {
		return rate.Rate
	}
	return table.rates[models.WasteTypeMixed].Rate
}

// List returns the active table in display order.
func (s *RateService) List() []models.RewardRate {
	table := s.current.Load()
	out := make([]models.RewardRate, 0, len(models.WasteTypes))
	for _, wasteType := range models.WasteTypes {
		out = append(out, table.rates[wasteType])
	}
	return out
}

// LoadedAt reports when the active table was built.
func (s *RateService) LoadedAt() time.Time {
	return s.current.Load().loadedAt
}

// Reload rebuilds the table from storage. On failure the previous table stays active.
func (s *RateService) Reload(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	stored, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load reward rates: %w", err)
	}
	s.current.Store(newRateTable(stored, time.Now().UTC()))
	return nil
}

// Update persists a new rate, swaps the table and tells other instances.
func (s *RateService) Update(ctx context.Context, actor *models.JWTClaims, rawType string, rate decimal.Decimal, description string) (*models.RewardRate, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "only admins may change reward rates")
	}
	wasteType, ok := models.ParseWasteType(rawType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown waste type")
	}
	if rate.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rate must not be negative")
	}
	previous := s.Rate(wasteType)
	account := actor.Account
	record := models.RewardRate{
		WasteType:   wasteType,
		Rate:        rate,
		Description: strings.TrimSpace(description),
		UpdatedBy:   &account,
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, appErrors.Ledger(err, "failed to store reward rate")
	}
	if err := s.Reload(ctx); err != nil {
		s.logger.Warn("rate reload after update failed", zap.Error(err))
	}
	updated := s.current.Load().rates[wasteType]

	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Account:    &account,
		Action:     models.AuditActionRateUpdate,
		Resource:   "reward_rate",
		ResourceID: stringPtr(string(wasteType)),
		OldValues:  jsonBytes(map[string]string{"rate": previous.String()}),
		NewValues:  jsonBytes(map[string]string{"rate": rate.String()}),
	})
	if s.events != nil {
		s.events.Emit(models.LifecycleEvent{
			Type:       models.EventRatesUpdated,
			Actor:      account,
			Attributes: map[string]interface{}{"wasteType": wasteType, "rate": rate.String()},
		})
	}
	return &updated, nil
}

// HandleRatesUpdated reloads the table when another instance changed it.
func (s *RateService) HandleRatesUpdated(event models.LifecycleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Reload(ctx); err != nil {
		s.logger.Warn("rate reload on event failed", zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	s.logger.Debug("reward rates reloaded", zap.String("event_id", event.ID))
}

// Run reloads the table every interval until ctx is cancelled.
func (s *RateService) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.logger.Warn("periodic rate reload failed", zap.Error(err))
			}
		}
	}
}
