package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingperioddomain "github.com/metergate/metergate/internal/billingperiod/domain"
	"github.com/metergate/metergate/internal/pricing/domain"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// quotaProjectionDays spreads a daily quota over a nominal month when
// deriving the per-call rate.
const quotaProjectionDays = 30

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Tiers     tierdomain.Service
	Periods   billingperioddomain.Calculator
	UsageRepo usagedomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	tiers     tierdomain.Service
	periods   billingperioddomain.Calculator
	usageRepo usagedomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("pricing.service"),
		tiers:     p.Tiers,
		periods:   p.Periods,
		usageRepo: p.UsageRepo,
	}
}

func (s *Service) CalculateUsageForPeriod(ctx context.Context, customerID snowflake.ID, start, end time.Time) (int64, error) {
	if !end.After(start) {
		return 0, domain.ErrInvalidPeriod
	}
	return s.usageRepo.CountInRange(ctx, s.db, customerID, start, end)
}

func (s *Service) TierPricing(ctx context.Context, tierName string) (domain.TierPricing, error) {
	tier, err := s.tiers.GetByName(ctx, tierName)
	if err != nil {
		if errors.Is(err, tierdomain.ErrNotFound) || errors.Is(err, tierdomain.ErrInvalidName) {
			return domain.TierPricing{}, domain.ErrTierNotFound
		}
		return domain.TierPricing{}, err
	}
	return tierPricing(tier), nil
}

func tierPricing(tier tierdomain.Tier) domain.TierPricing {
	pricing := domain.TierPricing{
		TierName:     tier.Name,
		PriceMonthly: tier.PriceMonthly,
		DailyQuota:   tier.DailyQuota,
		Unlimited:    tier.Unlimited(),
	}
	if !tier.Unlimited() {
		monthlyCalls := decimal.NewFromInt(tier.DailyQuota * quotaProjectionDays)
		pricing.EffectivePerCall = tier.PriceMonthly.DivRound(monthlyCalls, 6)
	}
	return pricing
}

// EstimateMonthlyCost prices the current plan and, when targetTier names a
// different plan, the cost delta of switching to it. Exactly one of savings
// or additional cost is non-zero when the prices differ.
func (s *Service) EstimateMonthlyCost(ctx context.Context, customerID snowflake.ID, targetTier string) (domain.MonthlyEstimate, error) {
	currentTier, err := s.customerTier(ctx, customerID)
	if err != nil {
		return domain.MonthlyEstimate{}, err
	}

	estimate := domain.MonthlyEstimate{
		CurrentTier:  currentTier.Name,
		CurrentPrice: currentTier.PriceMonthly,
	}

	name := strings.TrimSpace(targetTier)
	if name == "" || strings.EqualFold(name, currentTier.Name) {
		return estimate, nil
	}

	target, err := s.tiers.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, tierdomain.ErrNotFound) || errors.Is(err, tierdomain.ErrInvalidName) {
			return domain.MonthlyEstimate{}, domain.ErrTierNotFound
		}
		return domain.MonthlyEstimate{}, err
	}
	if target.ID == currentTier.ID {
		return estimate, nil
	}

	targetPrice := target.PriceMonthly
	savings := currentTier.PriceMonthly.Sub(targetPrice)
	if savings.IsNegative() {
		savings = decimal.Zero
	}
	additional := targetPrice.Sub(currentTier.PriceMonthly)
	if additional.IsNegative() {
		additional = decimal.Zero
	}

	estimate.TargetTier = target.Name
	estimate.TargetPrice = &targetPrice
	estimate.Savings = &savings
	estimate.AdditionalCost = &additional
	return estimate, nil
}

// PreviewTierChange prorates the price difference over the remaining days of
// the current period. Downgrades preview at zero due now.
func (s *Service) PreviewTierChange(ctx context.Context, customerID snowflake.ID, newTierName string) (domain.TierChangePreview, error) {
	currentTier, period, err := s.customerContext(ctx, customerID)
	if err != nil {
		return domain.TierChangePreview{}, err
	}

	newTier, err := s.tiers.GetByName(ctx, newTierName)
	if err != nil {
		if errors.Is(err, tierdomain.ErrNotFound) || errors.Is(err, tierdomain.ErrInvalidName) {
			return domain.TierChangePreview{}, domain.ErrTierNotFound
		}
		return domain.TierChangePreview{}, err
	}

	prorated := decimal.Zero
	if periodDays := period.Days(); periodDays > 0 {
		prorated = newTier.PriceMonthly.Sub(currentTier.PriceMonthly).
			Mul(decimal.NewFromInt(int64(period.DaysRemaining))).
			Div(decimal.NewFromInt(int64(periodDays))).
			RoundBank(2)
	}
	if prorated.IsNegative() {
		prorated = decimal.Zero
	}

	return domain.TierChangePreview{
		CurrentTier:    currentTier.Name,
		NewTier:        newTier.Name,
		CurrentPrice:   currentTier.PriceMonthly,
		NewPrice:       newTier.PriceMonthly,
		ProratedAmount: prorated,
		IsUpgrade:      newTier.PriceMonthly.GreaterThan(currentTier.PriceMonthly),
		DaysRemaining:  period.DaysRemaining,
		FeaturesGained: featureDiff(newTier.Features, currentTier.Features),
		FeaturesLost:   featureDiff(currentTier.Features, newTier.Features),
	}, nil
}

// customerTier resolves the tier the customer is currently on.
func (s *Service) customerTier(ctx context.Context, customerID snowflake.ID) (tierdomain.Tier, error) {
	var row struct {
		ID     snowflake.ID
		TierID snowflake.ID
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, tier_id FROM customers WHERE id = ?`,
		customerID,
	).Scan(&row).Error
	if err != nil {
		return tierdomain.Tier{}, err
	}
	if row.ID == 0 {
		return tierdomain.Tier{}, domain.ErrCustomerNotFound
	}
	return s.tiers.GetByID(ctx, row.TierID.String())
}

// customerContext resolves the customer's tier and current billing period.
func (s *Service) customerContext(ctx context.Context, customerID snowflake.ID) (tierdomain.Tier, billingperioddomain.Period, error) {
	tier, err := s.customerTier(ctx, customerID)
	if err != nil {
		return tierdomain.Tier{}, billingperioddomain.Period{}, err
	}

	period, err := s.periods.CurrentPeriod(ctx, customerID)
	if err != nil {
		if errors.Is(err, billingperioddomain.ErrCustomerNotFound) {
			return tierdomain.Tier{}, billingperioddomain.Period{}, domain.ErrCustomerNotFound
		}
		return tierdomain.Tier{}, billingperioddomain.Period{}, err
	}

	return tier, period, nil
}

// featureDiff lists keys present in a but absent from b, sorted.
func featureDiff(a, b map[string]any) []string {
	var diff []string
	for key := range a {
		if _, ok := b[key]; !ok {
			diff = append(diff, key)
		}
	}
	sort.Strings(diff)
	return diff
}
