package domain

// ServiceKind identifies a priced service category. The five kinds below have
// dedicated fee rules; anything else is priced as a custom service.
type ServiceKind string

const (
	ServiceBanking    ServiceKind = "banking"
	ServicePhysical   ServiceKind = "physical"
	ServiceEmployment ServiceKind = "employment"
	ServiceProxy      ServiceKind = "proxy"
	ServiceBackup     ServiceKind = "backup"
)

// PriceQuote is a computed price suggestion. Amount is rounded to two decimals
// before it is stored or compared.
type PriceQuote struct {
	Amount    float64 `json:"amount"`
	Breakdown string  `json:"breakdown"`
}

// Terms is the structured negotiation payload attached to a deal. Which fields
// are required depends on the service kind; Extra carries anything the agent
// sends beyond the typed subset.
type Terms struct {
	// banking
	Amount       float64 `json:"amount,omitempty"`
	TransferType string  `json:"type,omitempty"`

	// physical
	EstimatedHours float64 `json:"estimated_duration,omitempty"`

	// employment
	HoursPerMonth float64 `json:"hours_per_month,omitempty"`

	// proxy
	ProxyType string `json:"proxy_type,omitempty"`

	// backup
	Plan string `json:"plan,omitempty"`

	// MaxPrice is the agent-side maximum it is willing to pay. When it covers
	// the suggested price the deal auto-accepts at propose time.
	MaxPrice *float64 `json:"max_price,omitempty"`

	// SuggestedPrice is written by the deal engine at propose time.
	SuggestedPrice *PriceQuote `json:"suggested_price,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Validate checks the required subset of fields for the given service kind.
// Enum-like fields (transfer type, proxy type, backup plan) are left to the
// pricing tables, which carry defaults for them.
func (t Terms) Validate(service ServiceKind) error {
	if t.MaxPrice != nil && *t.MaxPrice < 0 {
		return Validation("terms.max_price must not be negative")
	}
	switch service {
	case ServiceBanking:
		if t.Amount <= 0 {
			return Validation("terms.amount is required for banking deals")
		}
	case ServicePhysical:
		if t.EstimatedHours <= 0 {
			return Validation("terms.estimated_duration is required for physical deals")
		}
	case ServiceEmployment:
		if t.HoursPerMonth <= 0 {
			return Validation("terms.hours_per_month is required for employment deals")
		}
	}
	return nil
}
