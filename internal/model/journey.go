// internal/model/journey.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type JourneyStatus string

const (
	JourneyActive       JourneyStatus = "active"
	JourneyPaused       JourneyStatus = "paused"
	JourneyReplied      JourneyStatus = "replied"
	JourneyDisqualified JourneyStatus = "disqualified"
	JourneyCompleted    JourneyStatus = "completed"
)

// Terminal reports whether no further transition can leave the status.
func (s JourneyStatus) Terminal() bool {
	return s == JourneyDisqualified || s == JourneyCompleted
}

type HistoryAction string

const (
	HistoryEnrolled      HistoryAction = "enrolled"
	HistoryStarted       HistoryAction = "started"
	HistoryMessageSent   HistoryAction = "message_sent"
	HistoryWaitStarted   HistoryAction = "wait_started"
	HistoryWaitCompleted HistoryAction = "wait_completed"
	HistoryTaskCreated   HistoryAction = "task_created"
	HistoryBranchPassed  HistoryAction = "branch_passed"
	HistoryAdvanced      HistoryAction = "advanced"
	HistoryCompleted     HistoryAction = "completed"
	HistoryReplied       HistoryAction = "replied"
	HistoryDisqualified  HistoryAction = "disqualified"
	HistoryPaused        HistoryAction = "paused"
	HistoryResumed       HistoryAction = "resumed"
	HistoryNotified      HistoryAction = "notified"
)

// HistoryEntry is one immutable record in a journey's audit trail.
type HistoryEntry struct {
	StepID    *int          `json:"step_id,omitempty"`
	Action    HistoryAction `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Detail    string        `json:"detail,omitempty"`
}

// Journey is the cursor of one contact through one campaign.
//
// A completed journey never has a current step, and a journey whose
// NextEligibleAt lies in the future is not picked up by a tick.
type Journey struct {
	ID             int            `db:"id" json:"id"`
	WorkspaceID    uuid.UUID      `db:"workspace_id" json:"workspace_id"`
	CampaignID     int            `db:"campaign_id" json:"campaign_id"`
	ContactID      int            `db:"contact_id" json:"contact_id"`
	CurrentStepID  *int           `db:"current_step_id" json:"current_step_id"`
	NextEligibleAt *time.Time     `db:"next_eligible_at" json:"next_eligible_at"`
	Status         JourneyStatus  `db:"status" json:"status"`
	LastRunAt      *time.Time     `db:"last_run_at" json:"last_run_at,omitempty"`
	History        []HistoryEntry `db:"history" json:"history"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Record appends a history entry. Existing entries are never rewritten.
func (j *Journey) Record(stepID *int, action HistoryAction, at time.Time, detail string) {
	var id *int
	if stepID != nil {
		v := *stepID
		id = &v
	}
	j.History = append(j.History, HistoryEntry{StepID: id, Action: action, Timestamp: at, Detail: detail})
}

// DueAt reports whether a tick at now may act on the journey.
func (j *Journey) DueAt(now time.Time) bool {
	return j.Status == JourneyActive && (j.NextEligibleAt == nil || !j.NextEligibleAt.After(now))
}
