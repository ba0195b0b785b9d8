package model

import "github.com/google/uuid"

// InboundReply is a reply event as received from a webhook or the queue.
type InboundReply struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Address     string    `json:"address" validate:"required"`
	Body        string    `json:"body"`
	Subject     string    `json:"subject,omitempty"`
}
