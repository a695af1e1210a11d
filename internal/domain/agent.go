package domain

import "time"

// Agent is a registered autonomous agent. The capability set is used for
// discovery filtering only.
type Agent struct {
	AgentID      string         `json:"agent_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Contact      map[string]any `json:"contact"`
	CreatedAt    time.Time      `json:"created_at"`
}
