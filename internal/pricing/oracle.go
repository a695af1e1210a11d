package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

const (
	insightsWindow = 30 * 24 * time.Hour
	profileWindow  = 90 * 24 * time.Hour
)

// HistoryStore is the slice of the store the oracle aggregates over.
type HistoryStore interface {
	ServicePricingStats(ctx context.Context, service domain.ServiceKind, since time.Time) (domain.ServicePricingStats, error)
	AgentPricingStats(ctx context.Context, agentID string, since time.Time) (domain.AgentPricingStats, error)
	PricingDashboard(ctx context.Context, since time.Time) ([]domain.PricingDashboardRow, error)
}

// ErrNoHistory is returned when a service has no negotiation history inside
// the trailing window. Distinct from a zero-valued insights result.
var ErrNoHistory = domain.NotFound("no pricing history for service in window")

// Oracle computes price suggestions and negotiation intelligence.
type Oracle struct {
	fees    *FeeTable
	history HistoryStore
	now     func() time.Time
}

// NewOracle creates an oracle over the given fee table and history source.
func NewOracle(fees *FeeTable, history HistoryStore) *Oracle {
	if fees == nil {
		fees = DefaultFees()
	}
	return &Oracle{fees: fees, history: history, now: time.Now}
}

// round2 rounds to two decimals; all monetary results pass through it before
// storage or comparison.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SuggestPrice computes the deterministic price suggestion for a service. The
// deal engine relies on recomputation yielding the identical result, so this
// must stay a pure function of (service, terms, fee table).
func (o *Oracle) SuggestPrice(service domain.ServiceKind, terms domain.Terms) (domain.PriceQuote, error) {
	switch service {
	case domain.ServiceBanking:
		transferType := terms.TransferType
		fee, ok := o.fees.Banking.Transfers[transferType]
		if !ok {
			transferType = o.fees.Banking.DefaultType
			fee = o.fees.Banking.Transfers[transferType]
		}
		total := fee.Base + terms.Amount*fee.Pct/100
		return domain.PriceQuote{
			Amount:    round2(total),
			Breakdown: fmt.Sprintf("base: $%g + %g%% of $%g", fee.Base, fee.Pct, terms.Amount),
		}, nil

	case domain.ServicePhysical:
		hours := terms.EstimatedHours
		if hours <= 0 {
			hours = o.fees.Physical.DefaultHours
		}
		total := hours * o.fees.Physical.Rate * (1 + o.fees.Physical.PlatformPct/100)
		return domain.PriceQuote{
			Amount:    round2(total),
			Breakdown: fmt.Sprintf("%gh x $%g/hr + %g%% platform fee", hours, o.fees.Physical.Rate, o.fees.Physical.PlatformPct),
		}, nil

	case domain.ServiceEmployment:
		hours := terms.HoursPerMonth
		if hours <= 0 {
			hours = o.fees.Employment.DefaultHours
		}
		total := hours * o.fees.Employment.Rate * (1 + o.fees.Employment.PlatformPct/100)
		return domain.PriceQuote{
			Amount:    round2(total),
			Breakdown: fmt.Sprintf("%gh/mo x $%g/hr + %g%% fee", hours, o.fees.Employment.Rate, o.fees.Employment.PlatformPct),
		}, nil

	case domain.ServiceProxy:
		setup, ok := o.fees.Proxy.SetupFees[terms.ProxyType]
		if !ok {
			setup = o.fees.Proxy.DefaultSetup
		}
		label := terms.ProxyType
		if label == "" {
			label = "proxy service"
		}
		return domain.PriceQuote{
			Amount:    round2(setup),
			Breakdown: fmt.Sprintf("setup fee for %s", label),
		}, nil

	case domain.ServiceBackup:
		plan := terms.Plan
		price, ok := o.fees.Backup.Plans[plan]
		if !ok {
			plan = o.fees.Backup.DefaultPlan
			price = o.fees.Backup.Plans[plan]
		}
		return domain.PriceQuote{
			Amount:    round2(price),
			Breakdown: fmt.Sprintf("%s plan monthly", plan),
		}, nil

	default:
		return domain.PriceQuote{
			Amount:    round2(o.fees.CustomBase),
			Breakdown: "custom service - base estimate",
		}, nil
	}
}

// Insights aggregates the trailing 30-day window of outcomes for a service.
// Returns ErrNoHistory when the window is empty.
func (o *Oracle) Insights(ctx context.Context, service domain.ServiceKind) (*domain.PricingInsights, error) {
	stats, err := o.history.ServicePricingStats(ctx, service, o.now().Add(-insightsWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate pricing history: %w", err)
	}
	if stats.Total == 0 {
		return nil, ErrNoHistory
	}

	rate := float64(stats.Accepted) / float64(stats.Total)
	base := stats.AvgFinal
	if base == 0 {
		base = stats.AvgSuggested
	}

	// Low acceptance: open higher to leave negotiation room. High acceptance:
	// we can be more aggressive.
	multiplier := 1.0
	if rate < 0.3 {
		multiplier = 1.1
	} else if rate > 0.7 {
		multiplier = 0.95
	}

	return &domain.PricingInsights{
		Service:              service,
		BasePrice:            round2(base),
		AcceptanceRate:       rate,
		AvgCounterPercentage: stats.AvgCounterPct,
		RecommendedInitial:   round2(base * multiplier),
		PriceElasticity:      1 - rate,
		SampleSize:           stats.Total,
	}, nil
}

// AgentProfile classifies one agent's negotiation behavior from its trailing
// 90-day history. The check order is significant: quick_decider wins over the
// discount-based styles.
func (o *Oracle) AgentProfile(ctx context.Context, agentID string) (*domain.AgentPricingProfile, error) {
	stats, err := o.history.AgentPricingStats(ctx, agentID, o.now().Add(-profileWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate agent history: %w", err)
	}
	if stats.TotalDeals == 0 {
		return &domain.AgentPricingProfile{AgentID: agentID, NewAgent: true, Style: domain.StyleUnknown}, nil
	}

	style := domain.StyleBalanced
	switch {
	case stats.AcceptanceRate > 0.8:
		style = domain.StyleQuickDecider
	case stats.AvgDiscountPct > 15:
		style = domain.StyleAggressiveNegotiator
	case stats.AvgDiscountPct > 5 && stats.AvgDiscountPct < 15:
		style = domain.StyleModerateNegotiator
	}

	return &domain.AgentPricingProfile{
		AgentID:              agentID,
		TotalDeals:           stats.TotalDeals,
		AcceptanceRate:       stats.AcceptanceRate,
		AvgDiscountRequested: stats.AvgDiscountPct,
		LastDealAt:           stats.LastDealAt,
		Services:             stats.Services,
		Style:                style,
	}, nil
}

// SuggestCounterResponse recommends a settlement price after a counter-offer.
// The recommendation never undercuts the price already on the table.
func (o *Oracle) SuggestCounterResponse(ctx context.Context, service domain.ServiceKind, agentID string, ourPrice, theirCounter float64) (*domain.CounterSuggestion, error) {
	if ourPrice <= 0 {
		return nil, domain.Validation("our_price must be positive")
	}
	if theirCounter <= 0 {
		return nil, domain.Validation("their_counter must be positive")
	}

	insights, err := o.Insights(ctx, service)
	if err == ErrNoHistory {
		midpoint := (ourPrice + theirCounter) / 2
		return &domain.CounterSuggestion{
			RecommendedPrice: math.Max(theirCounter, round2(midpoint)),
			Reasoning:        "No historical data. Suggesting midpoint between offers.",
			Confidence:       domain.ConfidenceLow,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	profile, err := o.AgentProfile(ctx, agentID)
	if err != nil {
		return nil, err
	}

	discountRequested := (ourPrice - theirCounter) / ourPrice * 100

	var recommended float64
	var reasoning string
	confidence := domain.ConfidenceMedium

	if discountRequested > insights.AvgCounterPercentage*1.5 {
		if profile.Style == domain.StyleAggressiveNegotiator {
			// Known hard bargainer: split the difference.
			recommended = (ourPrice + theirCounter) / 2
			reasoning = fmt.Sprintf("Agent typically negotiates hard (%.0f%% avg discount). Splitting difference.", profile.AvgDiscountRequested)
			confidence = domain.ConfidenceHigh
		} else {
			// Out-of-band discount from an otherwise normal agent: hold near
			// the market rate.
			recommended = ourPrice - ourPrice*insights.AvgCounterPercentage/100
			reasoning = fmt.Sprintf("Counter is %.0f%% off (market avg: %.0f%%). Holding closer to market rate.", discountRequested, insights.AvgCounterPercentage)
		}
	} else {
		recommended = theirCounter + (ourPrice-theirCounter)*0.25
		reasoning = fmt.Sprintf("Counter is reasonable (%.0f%% vs market %.0f%%). Meeting 75%% of the way.", discountRequested, insights.AvgCounterPercentage)
		confidence = domain.ConfidenceHigh
	}

	return &domain.CounterSuggestion{
		RecommendedPrice: math.Max(theirCounter, round2(recommended)),
		Reasoning:        reasoning,
		Confidence:       confidence,
	}, nil
}

// Dashboard returns the trailing 30-day per-service negotiation rollup.
func (o *Oracle) Dashboard(ctx context.Context) ([]domain.PricingDashboardRow, error) {
	return o.history.PricingDashboard(ctx, o.now().Add(-insightsWindow))
}
