// internal/model/campaign.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelLinkedIn Channel = "linkedin"
)

// Counter names a campaign aggregate column.
type Counter string

const (
	CounterSent    Counter = "sent_count"
	CounterOpened  Counter = "open_count"
	CounterReplied Counter = "reply_count"
)

type Campaign struct {
	ID          int             `db:"id" json:"id"`
	WorkspaceID uuid.UUID       `db:"workspace_id" json:"workspace_id"`
	Name        string          `db:"name" json:"name"`
	Channel     Channel         `db:"channel" json:"channel"`
	Status      CampaignStatus  `db:"status" json:"status"`
	Schedule    *ScheduleConfig `db:"schedule_config" json:"schedule_config,omitempty"`
	SentCount   int             `db:"sent_count" json:"sent_count"`
	OpenCount   int             `db:"open_count" json:"open_count"`
	ReplyCount  int             `db:"reply_count" json:"reply_count"`
	Steps       []Step          `json:"steps,omitempty"`
	// ScheduleErr is set when the stored schedule could not be decoded.
	ScheduleErr error           `json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// ScheduleConfig restricts when a campaign may run. Times are "HH:MM" in
// the configured timezone; days are weekday names ("Mon" or "Monday").
type ScheduleConfig struct {
	Timezone  string   `json:"timezone,omitempty" yaml:"timezone"`
	Days      []string `json:"days,omitempty" yaml:"days"`
	StartTime string   `json:"start_time,omitempty" yaml:"start_time"`
	EndTime   string   `json:"end_time,omitempty" yaml:"end_time"`
}
