package domain

import "time"

// ProofStatus represents the status of a commit-reveal proof.
type ProofStatus string

const (
	ProofStatusCommitted         ProofStatus = "committed"
	ProofStatusEvidenceSubmitted ProofStatus = "evidence_submitted"
	ProofStatusVerified          ProofStatus = "verified"
	ProofStatusChallenged        ProofStatus = "challenged"
	ProofStatusExpired           ProofStatus = "expired"
)

// Terminal reports whether the proof state machine has finished.
func (s ProofStatus) Terminal() bool {
	return s == ProofStatusVerified || s == ProofStatusChallenged || s == ProofStatusExpired
}

// EvidenceType classifies a submitted evidence item.
type EvidenceType string

const (
	EvidencePhoto        EvidenceType = "photo"
	EvidenceReceipt      EvidenceType = "receipt"
	EvidenceGPS          EvidenceType = "gps"
	EvidenceDocument     EvidenceType = "document"
	EvidenceConfirmation EvidenceType = "confirmation"
	EvidenceScreenshot   EvidenceType = "screenshot"
)

// ValidEvidenceType reports whether t is part of the evidence vocabulary.
func ValidEvidenceType(t EvidenceType) bool {
	switch t {
	case EvidencePhoto, EvidenceReceipt, EvidenceGPS, EvidenceDocument, EvidenceConfirmation, EvidenceScreenshot:
		return true
	default:
		return false
	}
}

// EvidenceItem is one typed piece of evidence revealed alongside the plan.
type EvidenceItem struct {
	Type        EvidenceType `json:"type"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
}

// Challenge is one dispute raised against submitted evidence.
type Challenge struct {
	Challenger string    `json:"challenger"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// Proof is a commit-reveal record binding a human operator's execution plan to
// later-submitted evidence. PlanHash is set at commit and immutable; PlanText
// and Evidence stay empty until the reveal.
type Proof struct {
	ProofID    string `json:"proof_id"`
	DealID     string `json:"deal_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	OperatorID string `json:"operator_id"`

	Status   ProofStatus `json:"status"`
	PlanHash string      `json:"plan_hash"`
	PlanText string      `json:"plan_text,omitempty"`

	Evidence     []EvidenceItem `json:"evidence,omitempty"`
	EvidenceHash string         `json:"evidence_hash,omitempty"`

	Deadline            time.Time  `json:"deadline"`
	ChallengeWindowEnds *time.Time `json:"challenge_window_ends,omitempty"`

	Challenges []Challenge `json:"challenges,omitempty"`

	VerifiedBy string     `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProofFilter narrows ListProofs.
type ProofFilter struct {
	DealID    string
	RequestID string
	Limit     int
}
