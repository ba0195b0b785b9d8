package model

import (
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID          int       `db:"id" json:"id"`
	WorkspaceID uuid.UUID `db:"workspace_id" json:"workspace_id"`
	ContactID   int       `db:"contact_id" json:"contact_id"`
	JourneyID   *int      `db:"journey_id" json:"journey_id,omitempty"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	DueAt       time.Time `db:"due_at" json:"due_at"`
	Completed   bool      `db:"completed" json:"completed"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
