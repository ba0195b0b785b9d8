// internal/model/outbound_message.go
package model

import "time"

const (
	OutboundSent   = "sent"
	OutboundFailed = "failed"
)

// OutboundMessage audits one send attempt made by a message step.
type OutboundMessage struct {
	ID              int       `db:"id" json:"id"`
	JourneyID       int       `db:"journey_id" json:"journey_id"`
	CampaignID      int       `db:"campaign_id" json:"campaign_id"`
	ContactID       int       `db:"contact_id" json:"contact_id"`
	StepID          int       `db:"step_id" json:"step_id"`
	Channel         Channel   `db:"channel" json:"channel"`
	Recipient       string    `db:"recipient" json:"recipient"`
	Subject         string    `db:"subject" json:"subject"`
	Status          string    `db:"status" json:"status"` // sent, failed
	RenderedContent string    `db:"rendered_content" json:"rendered_content"`
	LastError       string    `db:"last_error,omitempty" json:"last_error,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
