package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

func TestSweepProofDeadlinesExpiresOverdue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	overdue := commitTestProof(t, env)
	fresh, err := env.svc.CommitProof(ctx, CommitProofRequest{
		OperatorID: "op_2",
		PlanHash:   HashText("still on time"),
	})
	assert.NoError(t, err)

	// Third proof gets a deadline far enough out to survive the sweep.
	later := env.clock.Now().Add(200 * time.Hour)
	renewed, err := env.svc.CommitProof(ctx, CommitProofRequest{
		OperatorID: "op_3",
		PlanHash:   HashText("long deadline"),
		Deadline:   &later,
	})
	assert.NoError(t, err)

	env.clock.Advance(73 * time.Hour)
	env.svc.sweepProofDeadlines(ctx)

	got, err := env.svc.GetProof(ctx, overdue.ProofID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusExpired, got.Status)

	got, err = env.svc.GetProof(ctx, fresh.ProofID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusExpired, got.Status)

	got, err = env.svc.GetProof(ctx, renewed.ProofID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusCommitted, got.Status)
}

func TestSweepProofDeadlinesSkipsRevealed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	proof := commitTestProof(t, env)
	_, err := env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		PlanText: planText,
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceReceipt}},
	})
	assert.NoError(t, err)

	env.clock.Advance(100 * time.Hour)
	env.svc.sweepProofDeadlines(ctx)

	got, err := env.svc.GetProof(ctx, proof.ProofID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusEvidenceSubmitted, got.Status)
}
