package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

// RegisterWebhookRequest subscribes an agent to broker events.
type RegisterWebhookRequest struct {
	AgentID string   `json:"agent_id"`
	URL     string   `json:"url"`
	Events  []string `json:"events,omitempty"`
	Secret  string   `json:"secret,omitempty"`
}

// RegisterWebhook creates a subscription. Endpoints must be https; an empty
// event list subscribes to everything.
func (s *Service) RegisterWebhook(ctx context.Context, req RegisterWebhookRequest) (*domain.Webhook, error) {
	if req.AgentID == "" {
		return nil, domain.Validation("agent_id is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return nil, domain.Validation("url must be a valid absolute URL")
	}
	if u.Scheme != "https" {
		return nil, domain.Validation("webhook url must use https").
			WithDetail("scheme", u.Scheme)
	}

	events := req.Events
	if len(events) == 0 {
		events = append([]string(nil), domain.WebhookEvents...)
	} else {
		for _, e := range events {
			if !domain.ValidWebhookEvent(e) {
				return nil, domain.Validation(fmt.Sprintf("unknown event %q", e))
			}
		}
	}

	wh := &domain.Webhook{
		WebhookID: newID("wh"),
		AgentID:   req.AgentID,
		URL:       req.URL,
		Events:    events,
		Secret:    req.Secret,
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateWebhook(ctx, wh); err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return wh, nil
}

// ListWebhooks returns an agent's subscriptions.
func (s *Service) ListWebhooks(ctx context.Context, agentID string) ([]domain.Webhook, error) {
	return s.store.ListWebhooksByAgent(ctx, agentID)
}

// RemoveWebhook deletes a subscription.
func (s *Service) RemoveWebhook(ctx context.Context, webhookID string) error {
	ok, err := s.store.DeleteWebhook(ctx, webhookID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if !ok {
		return domain.NotFound(fmt.Sprintf("webhook %q not found", webhookID))
	}
	return nil
}
