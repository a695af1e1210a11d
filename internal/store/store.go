// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"time"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

// Store defines the interface for data persistence. The deal engine and the
// commitment ledger depend only on this abstraction; state transitions go
// through the conditional Update*/Mark* methods, which apply a single atomic
// compare-and-swap on the current status and report whether they won.
type Store interface {
	// Agent operations
	UpsertAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context, capability string) ([]domain.Agent, error)

	// Deal operations
	CreateDeal(ctx context.Context, deal *domain.Deal) error
	GetDeal(ctx context.Context, dealID string) (*domain.Deal, error)
	ListDeals(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error)
	UpdateDealStatus(ctx context.Context, dealID string, from []domain.DealStatus, to domain.DealStatus) (bool, error)

	// Deal transcript operations
	AppendDealMessage(ctx context.Context, msg *domain.DealMessage) error
	ListDealMessages(ctx context.Context, dealID string) ([]domain.DealMessage, error)

	// Proof operations
	CreateProof(ctx context.Context, proof *domain.Proof) error
	GetProof(ctx context.Context, proofID string) (*domain.Proof, error)
	ListProofs(ctx context.Context, filter domain.ProofFilter) ([]domain.Proof, error)
	MarkProofEvidence(ctx context.Context, proofID string, planText string, evidence []domain.EvidenceItem, evidenceHash string, windowEnds time.Time) (bool, error)
	MarkProofVerified(ctx context.Context, proofID string, verifiedBy string, verifiedAt time.Time) (bool, error)
	AppendProofChallenge(ctx context.Context, proofID string, ch domain.Challenge) (bool, error)
	MarkProofExpired(ctx context.Context, proofID string) (bool, error)
	ListOverdueProofs(ctx context.Context, cutoff time.Time, limit int) ([]domain.Proof, error)

	// Pricing history operations
	RecordPricingOutcome(ctx context.Context, entry *domain.PricingHistoryEntry) error
	ServicePricingStats(ctx context.Context, service domain.ServiceKind, since time.Time) (domain.ServicePricingStats, error)
	AgentPricingStats(ctx context.Context, agentID string, since time.Time) (domain.AgentPricingStats, error)
	PricingDashboard(ctx context.Context, since time.Time) ([]domain.PricingDashboardRow, error)

	// Webhook subscription operations
	CreateWebhook(ctx context.Context, wh *domain.Webhook) error
	ListWebhooksForEvent(ctx context.Context, event string) ([]domain.Webhook, error)
	ListWebhooksByAgent(ctx context.Context, agentID string) ([]domain.Webhook, error)
	DeleteWebhook(ctx context.Context, webhookID string) (bool, error)

	// Lifecycle
	Close() error
}
