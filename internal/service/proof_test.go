package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

const planText = "1. open account 2. wire funds 3. collect receipt"

func commitTestProof(t *testing.T, env *testEnv) *domain.Proof {
	t.Helper()
	proof, err := env.svc.CommitProof(context.Background(), CommitProofRequest{
		OperatorID: "op_1",
		DealID:     "deal_1",
		PlanHash:   HashText(planText),
	})
	assert.NoError(t, err)
	return proof
}

func TestCommitProofDefaults(t *testing.T) {
	env := newTestEnv(t)

	proof := commitTestProof(t, env)
	assert.Equal(t, domain.ProofStatusCommitted, proof.Status)
	assert.Equal(t, HashText(planText), proof.PlanHash)
	assert.Equal(t, env.clock.Now().Add(72*time.Hour), proof.Deadline)
	assert.Empty(t, proof.PlanText)

	assert.Equal(t, []string{domain.EventProofCommitted}, env.dispatcher.names())
}

func TestCommitProofNormalizesHash(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	upper := "A3F2" + HashText(planText)[4:]
	proof, err := env.svc.CommitProof(ctx, CommitProofRequest{
		OperatorID: "op_1",
		PlanHash:   upper,
	})
	assert.NoError(t, err)
	assert.Equal(t, "a3f2"+HashText(planText)[4:], proof.PlanHash)
}

func TestCommitProofValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.CommitProof(ctx, CommitProofRequest{PlanHash: HashText(planText)})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = env.svc.CommitProof(ctx, CommitProofRequest{OperatorID: "op_1", PlanHash: "abc"})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	notHex := "zz" + HashText(planText)[2:]
	_, err = env.svc.CommitProof(ctx, CommitProofRequest{OperatorID: "op_1", PlanHash: notHex})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	past := env.clock.Now().Add(-time.Hour)
	_, err = env.svc.CommitProof(ctx, CommitProofRequest{
		OperatorID: "op_1", PlanHash: HashText(planText), Deadline: &past,
	})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestSubmitEvidenceRevealMatches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	got, err := env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		PlanText: planText,
		Evidence: []domain.EvidenceItem{
			{Type: domain.EvidenceReceipt, Description: "wire receipt", URL: "https://example.com/r.pdf"},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusEvidenceSubmitted, got.Status)
	assert.Equal(t, planText, got.PlanText)
	assert.NotEmpty(t, got.EvidenceHash)
	assert.NotNil(t, got.ChallengeWindowEnds)
	assert.Equal(t, env.clock.Now().Add(24*time.Hour), *got.ChallengeWindowEnds)
}

func TestSubmitEvidenceHashMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	_, err := env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		PlanText: "a different plan entirely",
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceReceipt}},
	})
	assert.Equal(t, domain.CodeIntegrity, domain.CodeOf(err))

	var de *domain.Error
	assert.ErrorAs(t, err, &de)
	assert.Equal(t, proof.PlanHash, de.Details["committed_hash"])
	assert.Equal(t, HashText("a different plan entirely"), de.Details["computed_hash"])

	// The proof stays committed: a correct reveal can still follow.
	got, err := env.svc.GetProof(ctx, proof.ProofID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusCommitted, got.Status)
}

func TestSubmitEvidenceAfterDeadline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	env.clock.Advance(73 * time.Hour)

	// A correct reveal after the deadline still expires the proof.
	_, err := env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		PlanText: planText,
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceReceipt}},
	})
	assert.Equal(t, domain.CodeExpired, domain.CodeOf(err))

	got, err := env.svc.GetProof(ctx, proof.ProofID)
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusExpired, got.Status)
}

func TestSubmitEvidenceValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	_, err := env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceReceipt}},
	})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{PlanText: planText})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		PlanText: planText,
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceType("vibes")}},
	})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestSubmitEvidenceTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	req := SubmitEvidenceRequest{
		PlanText: planText,
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceReceipt}},
	}
	_, err := env.svc.SubmitEvidence(ctx, proof.ProofID, req)
	assert.NoError(t, err)

	_, err = env.svc.SubmitEvidence(ctx, proof.ProofID, req)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestVerifyProof(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	// Verification before the reveal conflicts.
	_, err := env.svc.VerifyProof(ctx, proof.ProofID, "agent_1")
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))

	_, err = env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		PlanText: planText,
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceReceipt}},
	})
	assert.NoError(t, err)

	got, err := env.svc.VerifyProof(ctx, proof.ProofID, "")
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusVerified, got.Status)
	assert.Equal(t, "agent", got.VerifiedBy)
	assert.NotNil(t, got.VerifiedAt)
}

func TestChallengeProofWithinWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	_, err := env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		PlanText: planText,
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceReceipt}},
	})
	assert.NoError(t, err)

	env.clock.Advance(23 * time.Hour)

	got, err := env.svc.ChallengeProof(ctx, proof.ProofID, "agent_1", "receipt amount is wrong")
	assert.NoError(t, err)
	assert.Equal(t, domain.ProofStatusChallenged, got.Status)
	assert.Len(t, got.Challenges, 1)
	assert.Equal(t, "agent_1", got.Challenges[0].Challenger)

	// A second challenge inside the window accumulates.
	got, err = env.svc.ChallengeProof(ctx, proof.ProofID, "agent_2", "")
	assert.NoError(t, err)
	assert.Len(t, got.Challenges, 2)
	assert.Equal(t, "no reason provided", got.Challenges[1].Reason)
}

func TestChallengeProofAfterWindowCloses(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	_, err := env.svc.SubmitEvidence(ctx, proof.ProofID, SubmitEvidenceRequest{
		PlanText: planText,
		Evidence: []domain.EvidenceItem{{Type: domain.EvidenceReceipt}},
	})
	assert.NoError(t, err)

	env.clock.Advance(25 * time.Hour)

	_, err = env.svc.ChallengeProof(ctx, proof.ProofID, "agent_1", "too late")
	assert.Equal(t, domain.CodeExpired, domain.CodeOf(err))
}

func TestChallengeProofBeforeReveal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	proof := commitTestProof(t, env)

	_, err := env.svc.ChallengeProof(ctx, proof.ProofID, "agent_1", "premature")
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestListProofsByDeal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	commitTestProof(t, env)
	_, err := env.svc.CommitProof(ctx, CommitProofRequest{
		OperatorID: "op_2",
		DealID:     "deal_2",
		PlanHash:   HashText("another plan"),
	})
	assert.NoError(t, err)

	proofs, err := env.svc.ListProofs(ctx, domain.ProofFilter{DealID: "deal_1"})
	assert.NoError(t, err)
	assert.Len(t, proofs, 1)
	assert.Equal(t, "op_1", proofs[0].OperatorID)
}
