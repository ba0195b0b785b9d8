// internal/model/contact.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type Contact struct {
	ID                int        `db:"id" json:"id"`
	WorkspaceID       uuid.UUID  `db:"workspace_id" json:"workspace_id"`
	Email             string     `db:"email" json:"email"`
	Phone             string     `db:"phone" json:"phone"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	Company           string     `db:"company" json:"company"`
	Title             string     `db:"title" json:"title"`
	Industry          string     `db:"industry" json:"industry"`
	LastContactedAt   *time.Time `db:"last_contacted_at" json:"last_contacted_at,omitempty"`
	LastContactMethod string     `db:"last_contact_method" json:"last_contact_method,omitempty"`
}

// Address returns the recipient address a channel delivers to.
func (c *Contact) Address(ch Channel) string {
	if ch == ChannelSMS {
		return c.Phone
	}
	return c.Email
}
