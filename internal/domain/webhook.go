package domain

import "time"

// Webhook event names.
const (
	EventDealProposed           = "deal.proposed"
	EventDealAccepted           = "deal.accepted"
	EventDealCountered          = "deal.countered"
	EventDealRejected           = "deal.rejected"
	EventDealCompleted          = "deal.completed"
	EventDealMessage            = "deal.message"
	EventProofCommitted         = "proof.committed"
	EventProofEvidenceSubmitted = "proof.evidence_submitted"
	EventProofVerified          = "proof.verified"
	EventProofChallenged        = "proof.challenged"
)

// WebhookEvents is the full event vocabulary, used as the default subscription
// set and to validate registrations.
var WebhookEvents = []string{
	EventDealProposed,
	EventDealAccepted,
	EventDealCountered,
	EventDealRejected,
	EventDealCompleted,
	EventDealMessage,
	EventProofCommitted,
	EventProofEvidenceSubmitted,
	EventProofVerified,
	EventProofChallenged,
}

// ValidWebhookEvent reports whether name is part of the event vocabulary.
func ValidWebhookEvent(name string) bool {
	for _, e := range WebhookEvents {
		if e == name {
			return true
		}
	}
	return false
}

// Webhook is one registered subscriber. Secret, when set, is used to HMAC-sign
// delivered payloads.
type Webhook struct {
	WebhookID string    `json:"webhook_id"`
	AgentID   string    `json:"agent_id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
