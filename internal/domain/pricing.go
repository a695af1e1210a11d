package domain

import "time"

// PricingOutcome records how a negotiation round ended.
type PricingOutcome string

const (
	OutcomeAccepted  PricingOutcome = "accepted"
	OutcomeCountered PricingOutcome = "countered"
	OutcomeRejected  PricingOutcome = "rejected"
)

// PricingHistoryEntry is an immutable record of one negotiation outcome. The
// oracle's aggregates are computed over trailing windows of these rows.
type PricingHistoryEntry struct {
	Service        ServiceKind    `json:"service"`
	SuggestedPrice float64        `json:"suggested_price"`
	FinalPrice     *float64       `json:"final_price,omitempty"`
	AgentID        string         `json:"agent_id"`
	Outcome        PricingOutcome `json:"outcome"`
	CounterPrice   *float64       `json:"counter_price,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ServicePricingStats is the raw trailing-window aggregate for one service.
type ServicePricingStats struct {
	Total         int
	Accepted      int
	AvgCounterPct float64
	AvgFinal      float64
	AvgSuggested  float64
}

// AgentPricingStats is the raw trailing-window aggregate for one agent.
type AgentPricingStats struct {
	TotalDeals     int
	AcceptanceRate float64
	AvgDiscountPct float64
	LastDealAt     *time.Time
	Services       []string
}

// PricingInsights is the oracle's learned view of one service.
type PricingInsights struct {
	Service              ServiceKind `json:"service"`
	BasePrice            float64     `json:"base_price"`
	AcceptanceRate       float64     `json:"acceptance_rate"`
	AvgCounterPercentage float64     `json:"avg_counter_percentage"`
	RecommendedInitial   float64     `json:"recommended_initial"`
	PriceElasticity      float64     `json:"price_elasticity"`
	SampleSize           int         `json:"sample_size"`
}

// NegotiationStyle classifies a counterparty's historical bargaining behavior.
type NegotiationStyle string

const (
	StyleUnknown              NegotiationStyle = "unknown"
	StyleQuickDecider         NegotiationStyle = "quick_decider"
	StyleAggressiveNegotiator NegotiationStyle = "aggressive_negotiator"
	StyleModerateNegotiator   NegotiationStyle = "moderate_negotiator"
	StyleBalanced             NegotiationStyle = "balanced"
)

// AgentPricingProfile describes how one agent negotiates.
type AgentPricingProfile struct {
	AgentID              string           `json:"agent_id"`
	NewAgent             bool             `json:"new_agent"`
	TotalDeals           int              `json:"total_deals"`
	AcceptanceRate       float64          `json:"acceptance_rate"`
	AvgDiscountRequested float64          `json:"avg_discount_requested"`
	LastDealAt           *time.Time       `json:"last_deal_at,omitempty"`
	Services             []string         `json:"services_used,omitempty"`
	Style                NegotiationStyle `json:"negotiation_style"`
}

// Confidence grades a counter-offer recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// CounterSuggestion is the oracle's recommended response to a counter-offer.
// RecommendedPrice never undercuts the counterparty's own offer.
type CounterSuggestion struct {
	RecommendedPrice float64    `json:"recommended_price"`
	Reasoning        string     `json:"reasoning"`
	Confidence       Confidence `json:"confidence"`
}

// PricingDashboardRow is one service's negotiation rollup.
type PricingDashboardRow struct {
	Service           ServiceKind `json:"service"`
	TotalNegotiations int         `json:"total_negotiations"`
	Accepted          int         `json:"accepted"`
	Countered         int         `json:"countered"`
	Rejected          int         `json:"rejected"`
	AvgSuggested      float64     `json:"avg_suggested"`
	AvgFinal          *float64    `json:"avg_final,omitempty"`
	AvgDiscountPct    float64     `json:"avg_discount_pct"`
}
