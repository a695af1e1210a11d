package service

import (
	"context"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

// EstimatePrice prices a service request without opening a deal.
func (s *Service) EstimatePrice(service domain.ServiceKind, terms domain.Terms) (domain.PriceQuote, error) {
	if service == "" {
		return domain.PriceQuote{}, domain.Validation("service is required")
	}
	if err := terms.Validate(service); err != nil {
		return domain.PriceQuote{}, err
	}
	return s.oracle.SuggestPrice(service, terms)
}

// PricingInsights returns the oracle's learned view of one service.
func (s *Service) PricingInsights(ctx context.Context, service domain.ServiceKind) (*domain.PricingInsights, error) {
	if service == "" {
		return nil, domain.Validation("service is required")
	}
	return s.oracle.Insights(ctx, service)
}

// AgentPricingProfile returns the oracle's negotiation profile for one agent.
func (s *Service) AgentPricingProfile(ctx context.Context, agentID string) (*domain.AgentPricingProfile, error) {
	if agentID == "" {
		return nil, domain.Validation("agent_id is required")
	}
	return s.oracle.AgentProfile(ctx, agentID)
}

// SuggestCounter recommends a response to a counter-offer.
func (s *Service) SuggestCounter(ctx context.Context, service domain.ServiceKind, agentID string, ourPrice, theirCounter float64) (*domain.CounterSuggestion, error) {
	if ourPrice <= 0 || theirCounter <= 0 {
		return nil, domain.Validation("our_price and their_counter must be positive")
	}
	return s.oracle.SuggestCounterResponse(ctx, service, agentID, ourPrice, theirCounter)
}

// PricingDashboard returns per-service negotiation rollups.
func (s *Service) PricingDashboard(ctx context.Context) ([]domain.PricingDashboardRow, error) {
	return s.oracle.Dashboard(ctx)
}
