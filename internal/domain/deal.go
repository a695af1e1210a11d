// Package domain defines the core domain models for the broker.
package domain

import (
	"encoding/json"
	"time"
)

// DealStatus represents the status of a deal.
type DealStatus string

const (
	DealStatusProposed  DealStatus = "proposed"
	DealStatusCountered DealStatus = "countered"
	DealStatusAccepted  DealStatus = "accepted"
	DealStatusRejected  DealStatus = "rejected"
	DealStatusExpired   DealStatus = "expired"
	DealStatusCompleted DealStatus = "completed"
)

// Terminal reports whether a deal in this status accepts no further mutation.
func (s DealStatus) Terminal() bool {
	return s == DealStatusRejected || s == DealStatusCompleted
}

// DealAction represents an action a party can take on a deal.
type DealAction string

const (
	DealActionPropose DealAction = "propose"
	DealActionCounter DealAction = "counter"
	DealActionAccept  DealAction = "accept"
	DealActionReject  DealAction = "reject"
	DealActionMessage DealAction = "message"
)

// SystemActor is the synthetic party recorded on transcript entries the broker
// writes itself, e.g. the accept message appended on auto-accept.
const SystemActor = "unbound"

// Deal represents a priced negotiation between a proposing agent and the
// human operator side of the platform.
type Deal struct {
	DealID     string      `json:"deal_id"`
	ProposerID string      `json:"proposer_id"`
	TargetID   string      `json:"target_id"`
	Service    ServiceKind `json:"service"`
	Terms      Terms       `json:"terms"`
	Status     DealStatus  `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// DealMessage is one append-only transcript entry. Insertion order is the
// canonical negotiation history.
type DealMessage struct {
	DealID    string          `json:"deal_id"`
	FromAgent string          `json:"from_agent"`
	Action    DealAction      `json:"action"`
	Content   json.RawMessage `json:"content,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DealFilter narrows ListDeals.
type DealFilter struct {
	AgentID string
	Status  DealStatus
	Limit   int
}
