// Package model holds the domain types shared across the ingestion and
// retrieval packages: agents, knowledge sources, vector-store points, and
// chat sessions/messages.
package model

import "time"

// AgentStatus is the lifecycle state of an Agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusIndexing AgentStatus = "indexing"
	AgentStatusUpdating AgentStatus = "updating"
	AgentStatusInactive AgentStatus = "inactive"
)

// Agent is a tenant-scoped chat persona with its own knowledge base and LLM
// configuration. Identified by an opaque AgentID; created once and mutated
// by ingestion (status transitions) and by owner edits.
type Agent struct {
	AgentID          string      `json:"agentId"`
	OwnerUserID      string      `json:"ownerUserId"`
	DisplayName      string      `json:"displayName"`
	Aliases          []string    `json:"aliases,omitempty"`
	LLMModel         string      `json:"llmModel"`
	Temperature      *float64    `json:"temperature,omitempty"`
	SystemPrompt     string      `json:"systemPrompt,omitempty"`
	WelcomeMessage   string      `json:"welcomeMessage,omitempty"`
	AgentStatus      AgentStatus `json:"agentStatus"`
	AgentCurrentTask string      `json:"agentCurrentTask,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}
