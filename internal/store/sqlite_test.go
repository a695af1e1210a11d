package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func testDeal(id string) *domain.Deal {
	now := time.Now().UTC()
	return &domain.Deal{
		DealID:     id,
		ProposerID: "agent_1",
		TargetID:   domain.SystemActor,
		Service:    domain.ServiceBanking,
		Terms:      domain.Terms{Amount: 5000, TransferType: "ach_transfer"},
		Status:     domain.DealStatusProposed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestAgentUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	agent := &domain.Agent{
		AgentID:      "agent_1",
		Name:         "Test Agent",
		Capabilities: []string{"banking", "proxy"},
		Contact:      map[string]any{"email": "a@example.com"},
		CreatedAt:    time.Now().UTC(),
	}
	assert.NoError(t, s.UpsertAgent(ctx, agent))

	got, err := s.GetAgent(ctx, "agent_1")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, "Test Agent", got.Name)
	assert.Equal(t, []string{"banking", "proxy"}, got.Capabilities)
	assert.Equal(t, "a@example.com", got.Contact["email"])

	// Re-registration replaces the profile.
	agent.Name = "Renamed"
	assert.NoError(t, s.UpsertAgent(ctx, agent))
	got, err = s.GetAgent(ctx, "agent_1")
	assert.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	missing, err := s.GetAgent(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListAgentsByCapability(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.NoError(t, s.UpsertAgent(ctx, &domain.Agent{
		AgentID: "a1", Name: "A", Capabilities: []string{"banking"},
		Contact: map[string]any{"email": "a"}, CreatedAt: time.Now().UTC(),
	}))
	assert.NoError(t, s.UpsertAgent(ctx, &domain.Agent{
		AgentID: "a2", Name: "B", Capabilities: []string{"proxy"},
		Contact: map[string]any{"email": "b"}, CreatedAt: time.Now().UTC(),
	}))

	all, err := s.ListAgents(ctx, "")
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	banking, err := s.ListAgents(ctx, "banking")
	assert.NoError(t, err)
	assert.Len(t, banking, 1)
	assert.Equal(t, "a1", banking[0].AgentID)
}

func TestDealCreateGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.NoError(t, s.CreateDeal(ctx, testDeal("deal_1")))

	got, err := s.GetDeal(ctx, "deal_1")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, domain.DealStatusProposed, got.Status)
	assert.Equal(t, 5000.0, got.Terms.Amount)

	deals, err := s.ListDeals(ctx, domain.DealFilter{AgentID: "agent_1"})
	assert.NoError(t, err)
	assert.Len(t, deals, 1)

	none, err := s.ListDeals(ctx, domain.DealFilter{Status: domain.DealStatusAccepted})
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateDealStatusConditional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.NoError(t, s.CreateDeal(ctx, testDeal("deal_1")))

	ok, err := s.UpdateDealStatus(ctx, "deal_1",
		[]domain.DealStatus{domain.DealStatusProposed, domain.DealStatusCountered},
		domain.DealStatusAccepted)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Second transition from the same source fails: status already moved on.
	ok, err = s.UpdateDealStatus(ctx, "deal_1",
		[]domain.DealStatus{domain.DealStatusProposed, domain.DealStatusCountered},
		domain.DealStatusRejected)
	assert.NoError(t, err)
	assert.False(t, ok)

	got, _ := s.GetDeal(ctx, "deal_1")
	assert.Equal(t, domain.DealStatusAccepted, got.Status)
}

func TestUpdateDealStatusConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.NoError(t, s.CreateDeal(ctx, testDeal("deal_1")))

	from := []domain.DealStatus{domain.DealStatusProposed, domain.DealStatusCountered}
	targets := []domain.DealStatus{domain.DealStatusAccepted, domain.DealStatusRejected}

	var wg sync.WaitGroup
	wins := make([]bool, len(targets))
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to domain.DealStatus) {
			defer wg.Done()
			ok, err := s.UpdateDealStatus(ctx, "deal_1", from, to)
			assert.NoError(t, err)
			wins[i] = ok
		}(i, to)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestDealMessagesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.NoError(t, s.CreateDeal(ctx, testDeal("deal_1")))

	base := time.Now().UTC()
	for _, action := range []domain.DealAction{domain.DealActionPropose, domain.DealActionCounter, domain.DealActionAccept} {
		assert.NoError(t, s.AppendDealMessage(ctx, &domain.DealMessage{
			DealID:    "deal_1",
			FromAgent: "agent_1",
			Action:    action,
			Content:   []byte(`{}`),
			CreatedAt: base, // identical timestamps must not reorder the transcript
		}))
	}

	messages, err := s.ListDealMessages(ctx, "deal_1")
	assert.NoError(t, err)
	assert.Len(t, messages, 3)
	assert.Equal(t, domain.DealActionPropose, messages[0].Action)
	assert.Equal(t, domain.DealActionCounter, messages[1].Action)
	assert.Equal(t, domain.DealActionAccept, messages[2].Action)
}

func TestProofLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	proof := &domain.Proof{
		ProofID:    "proof_1",
		DealID:     "deal_1",
		OperatorID: "op_1",
		Status:     domain.ProofStatusCommitted,
		PlanHash:   "abc123",
		Deadline:   now.Add(time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	assert.NoError(t, s.CreateProof(ctx, proof))

	got, err := s.GetProof(ctx, "proof_1")
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusCommitted, got.Status)
	assert.Empty(t, got.PlanText)

	evidence := []domain.EvidenceItem{{Type: domain.EvidenceReceipt, Description: "wire receipt"}}
	windowEnds := now.Add(24 * time.Hour)
	ok, err := s.MarkProofEvidence(ctx, "proof_1", "the plan", evidence, "ehash", windowEnds)
	assert.NoError(t, err)
	assert.True(t, ok)

	// A second reveal is rejected: no longer committed.
	ok, err = s.MarkProofEvidence(ctx, "proof_1", "other", evidence, "ehash2", windowEnds)
	assert.NoError(t, err)
	assert.False(t, ok)

	got, _ = s.GetProof(ctx, "proof_1")
	assert.Equal(t, domain.ProofStatusEvidenceSubmitted, got.Status)
	assert.Equal(t, "the plan", got.PlanText)
	assert.Equal(t, "ehash", got.EvidenceHash)
	assert.Len(t, got.Evidence, 1)
	assert.NotNil(t, got.ChallengeWindowEnds)

	ok, err = s.MarkProofVerified(ctx, "proof_1", "agent_1", now)
	assert.NoError(t, err)
	assert.True(t, ok)

	got, _ = s.GetProof(ctx, "proof_1")
	assert.Equal(t, domain.ProofStatusVerified, got.Status)
	assert.Equal(t, "agent_1", got.VerifiedBy)
	assert.NotNil(t, got.VerifiedAt)
}

func TestAppendProofChallengeAccumulates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	assert.NoError(t, s.CreateProof(ctx, &domain.Proof{
		ProofID: "proof_1", OperatorID: "op_1", Status: domain.ProofStatusCommitted,
		PlanHash: "h", Deadline: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}))
	ok, err := s.MarkProofEvidence(ctx, "proof_1", "plan", []domain.EvidenceItem{{Type: domain.EvidencePhoto}}, "eh", now.Add(24*time.Hour))
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AppendProofChallenge(ctx, "proof_1", domain.Challenge{Challenger: "a1", Reason: "wrong amount", Timestamp: now})
	assert.NoError(t, err)
	assert.True(t, ok)

	// Further challenges accumulate on an already challenged proof.
	ok, err = s.AppendProofChallenge(ctx, "proof_1", domain.Challenge{Challenger: "a2", Reason: "late", Timestamp: now})
	assert.NoError(t, err)
	assert.True(t, ok)

	got, _ := s.GetProof(ctx, "proof_1")
	assert.Equal(t, domain.ProofStatusChallenged, got.Status)
	assert.Len(t, got.Challenges, 2)
	assert.Equal(t, "a1", got.Challenges[0].Challenger)
	assert.Equal(t, "a2", got.Challenges[1].Challenger)

	// Verified proofs are closed to challenges.
	assert.NoError(t, s.CreateProof(ctx, &domain.Proof{
		ProofID: "proof_2", OperatorID: "op_1", Status: domain.ProofStatusCommitted,
		PlanHash: "h", Deadline: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}))
	ok, err = s.AppendProofChallenge(ctx, "proof_2", domain.Challenge{Challenger: "a1", Reason: "r", Timestamp: now})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestListOverdueProofs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	assert.NoError(t, s.CreateProof(ctx, &domain.Proof{
		ProofID: "late", OperatorID: "op_1", Status: domain.ProofStatusCommitted,
		PlanHash: "h", Deadline: now.Add(-time.Hour), CreatedAt: now, UpdatedAt: now,
	}))
	assert.NoError(t, s.CreateProof(ctx, &domain.Proof{
		ProofID: "ontime", OperatorID: "op_1", Status: domain.ProofStatusCommitted,
		PlanHash: "h", Deadline: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}))

	overdue, err := s.ListOverdueProofs(ctx, now, 10)
	assert.NoError(t, err)
	assert.Len(t, overdue, 1)
	assert.Equal(t, "late", overdue[0].ProofID)

	ok, err := s.MarkProofExpired(ctx, "late")
	assert.NoError(t, err)
	assert.True(t, ok)

	overdue, err = s.ListOverdueProofs(ctx, now, 10)
	assert.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestServicePricingStatsWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	final := 90.0
	counter := 80.0
	entries := []*domain.PricingHistoryEntry{
		{Service: domain.ServiceBanking, SuggestedPrice: 100, FinalPrice: &final, AgentID: "a1", Outcome: domain.OutcomeAccepted, CreatedAt: now},
		{Service: domain.ServiceBanking, SuggestedPrice: 100, AgentID: "a1", Outcome: domain.OutcomeCountered, CounterPrice: &counter, CreatedAt: now},
		// Outside the window, must not count.
		{Service: domain.ServiceBanking, SuggestedPrice: 100, AgentID: "a1", Outcome: domain.OutcomeRejected, CreatedAt: now.Add(-60 * 24 * time.Hour)},
	}
	for _, e := range entries {
		assert.NoError(t, s.RecordPricingOutcome(ctx, e))
	}

	stats, err := s.ServicePricingStats(ctx, domain.ServiceBanking, now.Add(-30*24*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 100.0, stats.AvgSuggested)
	// (90 + 100) / 2: missing final price falls back to the suggestion.
	assert.Equal(t, 95.0, stats.AvgFinal)
	// (0 + 20) / 2: rows without a counter contribute zero.
	assert.Equal(t, 10.0, stats.AvgCounterPct)
}

func TestAgentPricingStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	final := 50.0
	assert.NoError(t, s.RecordPricingOutcome(ctx, &domain.PricingHistoryEntry{
		Service: domain.ServiceBanking, SuggestedPrice: 50, FinalPrice: &final,
		AgentID: "a1", Outcome: domain.OutcomeAccepted, CreatedAt: now.Add(-time.Hour),
	}))
	assert.NoError(t, s.RecordPricingOutcome(ctx, &domain.PricingHistoryEntry{
		Service: domain.ServiceProxy, SuggestedPrice: 500,
		AgentID: "a1", Outcome: domain.OutcomeRejected, CreatedAt: now,
	}))

	stats, err := s.AgentPricingStats(ctx, "a1", now.Add(-90*24*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDeals)
	assert.Equal(t, 0.5, stats.AcceptanceRate)
	assert.NotNil(t, stats.LastDealAt)
	assert.ElementsMatch(t, []string{"banking", "proxy"}, stats.Services)

	empty, err := s.AgentPricingStats(ctx, "nobody", now.Add(-90*24*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 0, empty.TotalDeals)
	assert.Nil(t, empty.LastDealAt)
}

func TestPricingDashboard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	final := 60.0
	assert.NoError(t, s.RecordPricingOutcome(ctx, &domain.PricingHistoryEntry{
		Service: domain.ServiceBanking, SuggestedPrice: 60, FinalPrice: &final,
		AgentID: "a1", Outcome: domain.OutcomeAccepted, CreatedAt: now,
	}))
	assert.NoError(t, s.RecordPricingOutcome(ctx, &domain.PricingHistoryEntry{
		Service: domain.ServiceBanking, SuggestedPrice: 60,
		AgentID: "a2", Outcome: domain.OutcomeRejected, CreatedAt: now,
	}))
	assert.NoError(t, s.RecordPricingOutcome(ctx, &domain.PricingHistoryEntry{
		Service: domain.ServiceBackup, SuggestedPrice: 30,
		AgentID: "a1", Outcome: domain.OutcomeCountered, CreatedAt: now,
	}))

	rows, err := s.PricingDashboard(ctx, now.Add(-30*24*time.Hour))
	assert.NoError(t, err)
	assert.Len(t, rows, 2)
	// Busiest service first.
	assert.Equal(t, domain.ServiceBanking, rows[0].Service)
	assert.Equal(t, 2, rows[0].TotalNegotiations)
	assert.Equal(t, 1, rows[0].Accepted)
	assert.Equal(t, 1, rows[0].Rejected)
	assert.NotNil(t, rows[0].AvgFinal)
	assert.Equal(t, domain.ServiceBackup, rows[1].Service)
	assert.Equal(t, 1, rows[1].Countered)
}

func TestWebhookEventFilterAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	assert.NoError(t, s.CreateWebhook(ctx, &domain.Webhook{
		WebhookID: "wh_1", AgentID: "a1", URL: "https://a.example.com/hook",
		Events: []string{domain.EventDealAccepted, domain.EventDealRejected},
		Secret: "shh", Active: true, CreatedAt: now,
	}))
	assert.NoError(t, s.CreateWebhook(ctx, &domain.Webhook{
		WebhookID: "wh_2", AgentID: "a2", URL: "https://b.example.com/hook",
		Events: []string{domain.EventProofVerified},
		Active: true, CreatedAt: now,
	}))
	assert.NoError(t, s.CreateWebhook(ctx, &domain.Webhook{
		WebhookID: "wh_3", AgentID: "a3", URL: "https://c.example.com/hook",
		Events: []string{domain.EventDealAccepted},
		Active: false, CreatedAt: now,
	}))

	subs, err := s.ListWebhooksForEvent(ctx, domain.EventDealAccepted)
	assert.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Equal(t, "wh_1", subs[0].WebhookID)
	assert.Equal(t, "shh", subs[0].Secret)

	byAgent, err := s.ListWebhooksByAgent(ctx, "a2")
	assert.NoError(t, err)
	assert.Len(t, byAgent, 1)

	ok, err := s.DeleteWebhook(ctx, "wh_1")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteWebhook(ctx, "wh_1")
	assert.NoError(t, err)
	assert.False(t, ok)
}
