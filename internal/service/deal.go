package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

// ProposeDealRequest opens a new deal.
type ProposeDealRequest struct {
	AgentID  string             `json:"agent_id"`
	TargetID string             `json:"target_id,omitempty"`
	Service  domain.ServiceKind `json:"service"`
	Terms    domain.Terms       `json:"terms"`
}

// ProposeDealResult reports the created deal. AutoAccepted is true when the
// agent's declared maximum price already covered the suggestion.
type ProposeDealResult struct {
	Deal           *domain.Deal      `json:"deal"`
	SuggestedPrice domain.PriceQuote `json:"suggested_price"`
	AutoAccepted   bool              `json:"auto_accepted"`
}

// DealActionRequest acts on an existing deal.
type DealActionRequest struct {
	AgentID       string            `json:"agent_id"`
	Action        domain.DealAction `json:"action"`
	Message       string            `json:"message,omitempty"`
	CounterPrice  *float64          `json:"counter_price,omitempty"`
	Justification string            `json:"justification,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// DealWithTranscript bundles a deal and its negotiation history.
type DealWithTranscript struct {
	Deal     *domain.Deal         `json:"deal"`
	Messages []domain.DealMessage `json:"messages"`
}

// ProposeDeal validates the request, computes the price suggestion, persists
// the deal and notifies subscribers. When the proposer's max price covers the
// suggestion the deal is accepted immediately with a synthetic system accept
// message.
func (s *Service) ProposeDeal(ctx context.Context, req ProposeDealRequest) (*ProposeDealResult, error) {
	if req.AgentID == "" {
		return nil, domain.Validation("agent_id is required")
	}
	if req.Service == "" {
		return nil, domain.Validation("service is required")
	}
	if err := req.Terms.Validate(req.Service); err != nil {
		return nil, err
	}

	quote, err := s.oracle.SuggestPrice(req.Service, req.Terms)
	if err != nil {
		return nil, err
	}

	terms := req.Terms
	terms.SuggestedPrice = &quote

	target := req.TargetID
	if target == "" {
		target = domain.SystemActor
	}

	now := s.now()
	deal := &domain.Deal{
		DealID:     newID("deal"),
		ProposerID: req.AgentID,
		TargetID:   target,
		Service:    req.Service,
		Terms:      terms,
		Status:     domain.DealStatusProposed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateDeal(ctx, deal); err != nil {
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}

	if err := s.appendMessage(ctx, deal.DealID, req.AgentID, domain.DealActionPropose, map[string]any{
		"service":         req.Service,
		"terms":           req.Terms,
		"suggested_price": quote,
	}); err != nil {
		return nil, err
	}

	s.dispatch(domain.EventDealProposed, map[string]any{
		"deal_id":         deal.DealID,
		"agent_id":        req.AgentID,
		"service":         string(req.Service),
		"suggested_price": quote.Amount,
	})

	if terms.MaxPrice != nil && *terms.MaxPrice >= quote.Amount {
		ok, err := s.store.UpdateDealStatus(ctx, deal.DealID, []domain.DealStatus{domain.DealStatusProposed}, domain.DealStatusAccepted)
		if err != nil {
			return nil, fmt.Errorf("failed to auto-accept deal: %w", err)
		}
		if ok {
			deal.Status = domain.DealStatusAccepted
			if err := s.appendMessage(ctx, deal.DealID, domain.SystemActor, domain.DealActionAccept, map[string]any{
				"message":     "Deal auto-accepted. Your max price covers the service cost.",
				"final_price": quote.Amount,
			}); err != nil {
				return nil, err
			}
			final := quote.Amount
			s.recordOutcome(ctx, deal, domain.OutcomeAccepted, &final, nil)
			s.dispatch(domain.EventDealAccepted, map[string]any{
				"deal_id":       deal.DealID,
				"agent_id":      req.AgentID,
				"auto_accepted": true,
				"price":         quote.Amount,
			})
			return &ProposeDealResult{Deal: deal, SuggestedPrice: quote, AutoAccepted: true}, nil
		}
	}

	return &ProposeDealResult{Deal: deal, SuggestedPrice: quote}, nil
}

// ActOnDeal applies one negotiation action to an existing deal. Transitions
// are compare-and-swap on the current status: of two racing conflicting
// actions exactly one wins, the loser gets a conflict error.
func (s *Service) ActOnDeal(ctx context.Context, dealID string, req DealActionRequest) (*domain.Deal, error) {
	if req.AgentID == "" {
		return nil, domain.Validation("agent_id is required")
	}

	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal: %w", err)
	}
	if deal == nil {
		return nil, domain.NotFound(fmt.Sprintf("deal %q not found", dealID))
	}
	if deal.Status.Terminal() {
		return nil, domain.Conflict(fmt.Sprintf("deal is already %s", deal.Status)).
			WithDetail("status", string(deal.Status))
	}

	negotiable := []domain.DealStatus{domain.DealStatusProposed, domain.DealStatusCountered}

	switch req.Action {
	case domain.DealActionAccept:
		if err := s.transitionDeal(ctx, deal, negotiable, domain.DealStatusAccepted); err != nil {
			return nil, err
		}
		msg := req.Message
		if msg == "" {
			msg = "Deal accepted"
		}
		if err := s.appendMessage(ctx, dealID, req.AgentID, domain.DealActionAccept, map[string]any{
			"message": msg,
		}); err != nil {
			return nil, err
		}
		final := finalPrice(deal)
		s.recordOutcome(ctx, deal, domain.OutcomeAccepted, &final, nil)
		s.dispatch(domain.EventDealAccepted, map[string]any{
			"deal_id":       dealID,
			"agent_id":      req.AgentID,
			"auto_accepted": false,
			"price":         final,
		})

	case domain.DealActionCounter:
		if req.CounterPrice == nil {
			return nil, domain.Validation("counter_price is required for counter offers").
				WithDetail("field", "counter_price")
		}
		if err := s.transitionDeal(ctx, deal, negotiable, domain.DealStatusCountered); err != nil {
			return nil, err
		}
		msg := req.Message
		if msg == "" {
			msg = fmt.Sprintf("Counter-offer: $%.2f", *req.CounterPrice)
		}
		content := map[string]any{
			"price":   *req.CounterPrice,
			"message": msg,
		}
		if req.Justification != "" {
			content["justification"] = req.Justification
		}
		if err := s.appendMessage(ctx, dealID, req.AgentID, domain.DealActionCounter, content); err != nil {
			return nil, err
		}
		s.recordOutcome(ctx, deal, domain.OutcomeCountered, nil, req.CounterPrice)
		s.dispatch(domain.EventDealCountered, map[string]any{
			"deal_id":  dealID,
			"agent_id": req.AgentID,
			"price":    *req.CounterPrice,
		})

	case domain.DealActionReject:
		if err := s.transitionDeal(ctx, deal, negotiable, domain.DealStatusRejected); err != nil {
			return nil, err
		}
		msg := req.Message
		if msg == "" {
			msg = "Deal rejected"
		}
		content := map[string]any{"message": msg}
		if req.Reason != "" {
			content["reason"] = req.Reason
		}
		if err := s.appendMessage(ctx, dealID, req.AgentID, domain.DealActionReject, content); err != nil {
			return nil, err
		}
		s.recordOutcome(ctx, deal, domain.OutcomeRejected, nil, nil)
		s.dispatch(domain.EventDealRejected, map[string]any{
			"deal_id":  dealID,
			"agent_id": req.AgentID,
			"reason":   req.Reason,
		})

	case domain.DealActionMessage:
		if err := s.appendMessage(ctx, dealID, req.AgentID, domain.DealActionMessage, map[string]any{
			"message": req.Message,
		}); err != nil {
			return nil, err
		}
		s.dispatch(domain.EventDealMessage, map[string]any{
			"deal_id":  dealID,
			"agent_id": req.AgentID,
			"message":  req.Message,
		})

	default:
		return nil, domain.Validation("action must be accept, counter, reject, or message").
			WithDetail("action", string(req.Action))
	}

	deal.UpdatedAt = s.now()
	return deal, nil
}

// CompleteDeal marks an accepted deal as completed, e.g. after payment
// settles. Completed is terminal.
func (s *Service) CompleteDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal: %w", err)
	}
	if deal == nil {
		return nil, domain.NotFound(fmt.Sprintf("deal %q not found", dealID))
	}
	if err := s.transitionDeal(ctx, deal, []domain.DealStatus{domain.DealStatusAccepted}, domain.DealStatusCompleted); err != nil {
		return nil, err
	}
	if err := s.appendMessage(ctx, dealID, domain.SystemActor, domain.DealActionMessage, map[string]any{
		"message": "Deal completed.",
	}); err != nil {
		return nil, err
	}
	s.dispatch(domain.EventDealCompleted, map[string]any{"deal_id": dealID})
	return deal, nil
}

// ExpireDeal closes a negotiation that went stale.
func (s *Service) ExpireDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal: %w", err)
	}
	if deal == nil {
		return nil, domain.NotFound(fmt.Sprintf("deal %q not found", dealID))
	}
	if err := s.transitionDeal(ctx, deal, []domain.DealStatus{domain.DealStatusProposed, domain.DealStatusCountered}, domain.DealStatusExpired); err != nil {
		return nil, err
	}
	if err := s.appendMessage(ctx, dealID, domain.SystemActor, domain.DealActionMessage, map[string]any{
		"message": "Deal expired without agreement.",
	}); err != nil {
		return nil, err
	}
	return deal, nil
}

// GetDeal returns the deal and its transcript in insertion order.
func (s *Service) GetDeal(ctx context.Context, dealID string) (*DealWithTranscript, error) {
	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal: %w", err)
	}
	if deal == nil {
		return nil, domain.NotFound(fmt.Sprintf("deal %q not found", dealID))
	}
	messages, err := s.store.ListDealMessages(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal messages: %w", err)
	}
	return &DealWithTranscript{Deal: deal, Messages: messages}, nil
}

// ListDeals returns deals matching the filter.
func (s *Service) ListDeals(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error) {
	return s.store.ListDeals(ctx, filter)
}

// transitionDeal applies one atomic conditional status update and reflects the
// result on the in-memory deal. A lost race surfaces as a conflict carrying
// the status that won.
func (s *Service) transitionDeal(ctx context.Context, deal *domain.Deal, from []domain.DealStatus, to domain.DealStatus) error {
	ok, err := s.store.UpdateDealStatus(ctx, deal.DealID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update deal status: %w", err)
	}
	if !ok {
		current, err := s.store.GetDeal(ctx, deal.DealID)
		if err == nil && current != nil {
			return domain.Conflict(fmt.Sprintf("deal cannot move to %s while %s", to, current.Status)).
				WithDetail("status", string(current.Status))
		}
		return domain.Conflict(fmt.Sprintf("deal cannot move to %s", to))
	}
	deal.Status = to
	return nil
}

func (s *Service) appendMessage(ctx context.Context, dealID, from string, action domain.DealAction, content map[string]any) error {
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}
	msg := &domain.DealMessage{
		DealID:    dealID,
		FromAgent: from,
		Action:    action,
		Content:   b,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendDealMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to append deal message: %w", err)
	}
	return nil
}

// recordOutcome feeds the pricing oracle's history. Best-effort: a failed
// write must not fail the transition that triggered it.
func (s *Service) recordOutcome(ctx context.Context, deal *domain.Deal, outcome domain.PricingOutcome, final, counter *float64) {
	var suggested float64
	if deal.Terms.SuggestedPrice != nil {
		suggested = deal.Terms.SuggestedPrice.Amount
	}
	entry := &domain.PricingHistoryEntry{
		Service:        deal.Service,
		SuggestedPrice: suggested,
		FinalPrice:     final,
		AgentID:        deal.ProposerID,
		Outcome:        outcome,
		CounterPrice:   counter,
		CreatedAt:      s.now(),
	}
	if err := s.store.RecordPricingOutcome(ctx, entry); err != nil {
		log.Printf("WARN: failed to record pricing outcome for %s: %v", deal.DealID, err)
	}
}

// finalPrice resolves the price an accepted deal settles at: the stored
// suggestion, falling back to the agent's declared maximum.
func finalPrice(deal *domain.Deal) float64 {
	if deal.Terms.SuggestedPrice != nil {
		return deal.Terms.SuggestedPrice.Amount
	}
	if deal.Terms.MaxPrice != nil {
		return *deal.Terms.MaxPrice
	}
	return 0
}
