package model

import "github.com/google/uuid"

type MessageTemplate struct {
	ID          int       `db:"id" json:"id"`
	WorkspaceID uuid.UUID `db:"workspace_id" json:"workspace_id"`
	Name        string    `db:"name" json:"name"`
	Subject     string    `db:"subject" json:"subject"`
	Body        string    `db:"body" json:"body"`
}
