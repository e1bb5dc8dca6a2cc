package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/pkg/config"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

// rewardPlaces is the precision of every reward amount.
const rewardPlaces = 1

// RateSource resolves the reward per kilogram of a waste type.
type RateSource interface {
	Rate(wasteType models.WasteType) decimal.Decimal
}

// SplitPolicy divides a settled reward between the three roles of a collection.
type SplitPolicy struct {
	Requester decimal.Decimal
	Collector decimal.Decimal
	Verifier  decimal.Decimal
}

// NewSplitPolicy validates configured shares: each non-negative, summing to exactly one.
func NewSplitPolicy(cfg config.RewardsConfig) (SplitPolicy, error) {
	policy := SplitPolicy{
		Requester: decimal.NewFromFloat(cfg.RequesterShare),
		Collector: decimal.NewFromFloat(cfg.CollectorShare),
		Verifier:  decimal.NewFromFloat(cfg.VerifierShare),
	}
	for _, share := range []decimal.Decimal{policy.Requester, policy.Collector, policy.Verifier} {
		if share.IsNegative() {
			return SplitPolicy{}, fmt.Errorf("reward shares must not be negative")
		}
	}
	if sum := policy.Requester.Add(policy.Collector).Add(policy.Verifier); !sum.Equal(decimal.NewFromInt(1)) {
		return SplitPolicy{}, fmt.Errorf("reward shares must sum to 1, got %s", sum)
	}
	return policy, nil
}

// DefaultSplitPolicy is 70/20/10 for requester, collector and verifier.
func DefaultSplitPolicy() SplitPolicy {
	return SplitPolicy{
		Requester: decimal.RequireFromString("0.7"),
		Collector: decimal.RequireFromString("0.2"),
		Verifier:  decimal.RequireFromString("0.1"),
	}
}

// RewardCalculator turns waste weights into reward amounts.
type RewardCalculator struct {
	rates  RateSource
	policy SplitPolicy
}

// NewRewardCalculator wires the calculator to a rate source.
func NewRewardCalculator(rates RateSource, policy SplitPolicy) *RewardCalculator {
	return &RewardCalculator{rates: rates, policy: policy}
}

// EstimateReward sums kg x rate over the items, rounded to one decimal place
// half away from zero. The same result is stored as a request's pending reward.
func (c *RewardCalculator) EstimateReward(items []models.WasteItem) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, "at least one waste item is required")
	}
	total := decimal.Zero
	for i, item := range items {
		if item.Amount <= 0 {
			return decimal.Zero, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("wasteItems[%d].amount must be greater than zero", i))
		}
		total = total.Add(c.weighted(item.WasteType, item.Amount))
	}
	return total.Round(rewardPlaces), nil
}

// DepositReward prices a single bin deposit by its verified weight in grams.
func (c *RewardCalculator) DepositReward(wasteType models.WasteType, grams int64) decimal.Decimal {
	if grams <= 0 {
		return decimal.Zero
	}
	return c.weighted(wasteType, grams).Round(rewardPlaces)
}

// Split divides total by the policy. Collector and verifier shares are rounded;
// the requester takes the remainder so the parts always add up to total.
func (c *RewardCalculator) Split(total decimal.Decimal) models.RewardSplit {
	collector := total.Mul(c.policy.Collector).Round(rewardPlaces)
	verifier := total.Mul(c.policy.Verifier).Round(rewardPlaces)
	requester := total.Sub(collector).Sub(verifier)
	if requester.IsNegative() {
		verifier = verifier.Add(requester)
		requester = decimal.Zero
	}
	if verifier.IsNegative() {
		collector = collector.Add(verifier)
		verifier = decimal.Zero
	}
	return models.RewardSplit{Requester: requester, Collector: collector, Verifier: verifier}
}

func (c *RewardCalculator) weighted(wasteType models.WasteType, grams int64) decimal.Decimal {
	kg := decimal.NewFromInt(grams).Shift(-3)
	return kg.Mul(c.rates.Rate(wasteType))
}
