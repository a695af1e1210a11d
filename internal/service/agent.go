package service

import (
	"context"
	"fmt"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

// RegisterAgentRequest registers or updates an agent.
type RegisterAgentRequest struct {
	AgentID      string         `json:"agent_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Contact      map[string]any `json:"contact"`
}

// RegisterAgent upserts an agent record. Re-registering an existing id
// replaces the stored profile.
func (s *Service) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (*domain.Agent, error) {
	if req.AgentID == "" {
		return nil, domain.Validation("agent_id is required")
	}
	if req.Name == "" {
		return nil, domain.Validation("name is required")
	}
	if len(req.Contact) == 0 {
		return nil, domain.Validation("contact is required")
	}

	agent := &domain.Agent{
		AgentID:      req.AgentID,
		Name:         req.Name,
		Description:  req.Description,
		Capabilities: req.Capabilities,
		Contact:      req.Contact,
		CreatedAt:    s.now(),
	}
	if err := s.store.UpsertAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return agent, nil
}

// GetAgent returns one agent by id.
func (s *Service) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}
	if agent == nil {
		return nil, domain.NotFound(fmt.Sprintf("agent %q not found", agentID))
	}
	return agent, nil
}

// ListAgents returns registered agents, optionally filtered by capability.
func (s *Service) ListAgents(ctx context.Context, capability string) ([]domain.Agent, error) {
	return s.store.ListAgents(ctx, capability)
}
