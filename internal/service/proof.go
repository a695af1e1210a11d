package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

// CommitProofRequest locks in a hash of an execution plan before the work
// happens. The plan text itself is withheld until the reveal.
type CommitProofRequest struct {
	OperatorID string     `json:"operator_id"`
	DealID     string     `json:"deal_id,omitempty"`
	RequestID  string     `json:"request_id,omitempty"`
	PlanHash   string     `json:"plan_hash"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// SubmitEvidenceRequest reveals the plan text with supporting evidence.
type SubmitEvidenceRequest struct {
	PlanText string                `json:"plan_text"`
	Evidence []domain.EvidenceItem `json:"evidence"`
}

// CommitProof creates a proof in the committed state. The plan hash must be a
// 64-character hex SHA-256 digest; it is normalized to lowercase so later
// comparisons are byte-for-byte.
func (s *Service) CommitProof(ctx context.Context, req CommitProofRequest) (*domain.Proof, error) {
	if req.OperatorID == "" {
		return nil, domain.Validation("operator_id is required")
	}
	hash := strings.ToLower(strings.TrimSpace(req.PlanHash))
	if len(hash) != 64 {
		return nil, domain.Validation("plan_hash must be a 64-character hex SHA-256 digest").
			WithDetail("length", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return nil, domain.Validation("plan_hash must be a 64-character hex SHA-256 digest")
	}

	now := s.now()
	deadline := now.Add(s.cfg.ProofDeadline)
	if req.Deadline != nil {
		if !req.Deadline.After(now) {
			return nil, domain.Validation("deadline must be in the future")
		}
		deadline = *req.Deadline
	}

	proof := &domain.Proof{
		ProofID:    newID("proof"),
		DealID:     req.DealID,
		RequestID:  req.RequestID,
		OperatorID: req.OperatorID,
		Status:     domain.ProofStatusCommitted,
		PlanHash:   hash,
		Deadline:   deadline,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateProof(ctx, proof); err != nil {
		return nil, fmt.Errorf("failed to create proof: %w", err)
	}

	s.dispatch(domain.EventProofCommitted, map[string]any{
		"proof_id":    proof.ProofID,
		"operator_id": req.OperatorID,
		"deal_id":     req.DealID,
		"deadline":    deadline.UTC().Format(time.RFC3339),
	})
	return proof, nil
}

// SubmitEvidence reveals the plan behind a committed proof. The revealed text
// must hash to the committed digest; a mismatch leaves the proof untouched and
// reports both hashes. A reveal after the deadline expires the proof even when
// the hash would have matched.
func (s *Service) SubmitEvidence(ctx context.Context, proofID string, req SubmitEvidenceRequest) (*domain.Proof, error) {
	if req.PlanText == "" {
		return nil, domain.Validation("plan_text is required")
	}
	if len(req.Evidence) == 0 {
		return nil, domain.Validation("at least one evidence item is required")
	}
	for i, item := range req.Evidence {
		if !domain.ValidEvidenceType(item.Type) {
			return nil, domain.Validation(fmt.Sprintf("evidence[%d] has unknown type %q", i, item.Type))
		}
	}

	proof, err := s.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, fmt.Errorf("failed to load proof: %w", err)
	}
	if proof == nil {
		return nil, domain.NotFound(fmt.Sprintf("proof %q not found", proofID))
	}
	if proof.Status != domain.ProofStatusCommitted {
		return nil, domain.Conflict(fmt.Sprintf("proof is already %s", proof.Status)).
			WithDetail("status", string(proof.Status))
	}

	now := s.now()
	if now.After(proof.Deadline) {
		if _, err := s.store.MarkProofExpired(ctx, proofID); err != nil {
			return nil, fmt.Errorf("failed to expire proof: %w", err)
		}
		return nil, domain.Expired("proof deadline has passed").
			WithDetail("deadline", proof.Deadline.UTC().Format(time.RFC3339))
	}

	computed := hashString(req.PlanText)
	if computed != proof.PlanHash {
		return nil, domain.Integrity("revealed plan does not match committed hash").
			WithDetail("committed_hash", proof.PlanHash).
			WithDetail("computed_hash", computed)
	}

	evidenceJSON, err := json.Marshal(req.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence: %w", err)
	}
	evidenceHash := hashString(string(evidenceJSON) + req.PlanText + now.UTC().Format(time.RFC3339))
	windowEnds := now.Add(s.cfg.ChallengeWindow)

	ok, err := s.store.MarkProofEvidence(ctx, proofID, req.PlanText, req.Evidence, evidenceHash, windowEnds)
	if err != nil {
		return nil, fmt.Errorf("failed to record evidence: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("proof is no longer awaiting evidence")
	}

	proof.Status = domain.ProofStatusEvidenceSubmitted
	proof.PlanText = req.PlanText
	proof.Evidence = req.Evidence
	proof.EvidenceHash = evidenceHash
	proof.ChallengeWindowEnds = &windowEnds
	proof.UpdatedAt = now

	s.dispatch(domain.EventProofEvidenceSubmitted, map[string]any{
		"proof_id":              proofID,
		"operator_id":           proof.OperatorID,
		"evidence_hash":         evidenceHash,
		"challenge_window_ends": windowEnds.UTC().Format(time.RFC3339),
	})
	return proof, nil
}

// VerifyProof accepts submitted evidence, closing the proof.
func (s *Service) VerifyProof(ctx context.Context, proofID, verifiedBy string) (*domain.Proof, error) {
	if verifiedBy == "" {
		verifiedBy = "agent"
	}
	proof, err := s.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, fmt.Errorf("failed to load proof: %w", err)
	}
	if proof == nil {
		return nil, domain.NotFound(fmt.Sprintf("proof %q not found", proofID))
	}

	now := s.now()
	ok, err := s.store.MarkProofVerified(ctx, proofID, verifiedBy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to verify proof: %w", err)
	}
	if !ok {
		current, err := s.store.GetProof(ctx, proofID)
		if err == nil && current != nil {
			return nil, domain.Conflict(fmt.Sprintf("proof cannot be verified while %s", current.Status)).
				WithDetail("status", string(current.Status))
		}
		return nil, domain.Conflict("proof cannot be verified")
	}

	proof.Status = domain.ProofStatusVerified
	proof.VerifiedBy = verifiedBy
	proof.VerifiedAt = &now
	proof.UpdatedAt = now

	s.dispatch(domain.EventProofVerified, map[string]any{
		"proof_id":    proofID,
		"verified_by": verifiedBy,
	})
	return proof, nil
}

// ChallengeProof disputes submitted evidence. Challenges are only accepted
// while the challenge window is open; further challenges against an already
// challenged proof accumulate.
func (s *Service) ChallengeProof(ctx context.Context, proofID, challenger, reason string) (*domain.Proof, error) {
	if challenger == "" {
		challenger = "agent"
	}
	if reason == "" {
		reason = "no reason provided"
	}

	proof, err := s.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, fmt.Errorf("failed to load proof: %w", err)
	}
	if proof == nil {
		return nil, domain.NotFound(fmt.Sprintf("proof %q not found", proofID))
	}
	if proof.Status != domain.ProofStatusEvidenceSubmitted && proof.Status != domain.ProofStatusChallenged {
		return nil, domain.Conflict(fmt.Sprintf("proof cannot be challenged while %s", proof.Status)).
			WithDetail("status", string(proof.Status))
	}

	now := s.now()
	if proof.ChallengeWindowEnds != nil && now.After(*proof.ChallengeWindowEnds) {
		return nil, domain.Expired("challenge window has closed").
			WithDetail("ended", proof.ChallengeWindowEnds.UTC().Format(time.RFC3339))
	}

	ch := domain.Challenge{
		Challenger: challenger,
		Reason:     reason,
		Timestamp:  now,
	}
	ok, err := s.store.AppendProofChallenge(ctx, proofID, ch)
	if err != nil {
		return nil, fmt.Errorf("failed to record challenge: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("proof is no longer open to challenges")
	}

	proof.Status = domain.ProofStatusChallenged
	proof.Challenges = append(proof.Challenges, ch)
	proof.UpdatedAt = now

	s.dispatch(domain.EventProofChallenged, map[string]any{
		"proof_id":   proofID,
		"challenger": challenger,
		"reason":     reason,
	})
	return proof, nil
}

// GetProof returns one proof by id.
func (s *Service) GetProof(ctx context.Context, proofID string) (*domain.Proof, error) {
	proof, err := s.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, fmt.Errorf("failed to load proof: %w", err)
	}
	if proof == nil {
		return nil, domain.NotFound(fmt.Sprintf("proof %q not found", proofID))
	}
	return proof, nil
}

// ListProofs returns proofs matching the filter.
func (s *Service) ListProofs(ctx context.Context, filter domain.ProofFilter) ([]domain.Proof, error) {
	return s.store.ListProofs(ctx, filter)
}

// HashText computes the hex SHA-256 digest of a plan, matching what
// CommitProof expects as plan_hash.
func HashText(text string) string {
	return hashString(text)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
