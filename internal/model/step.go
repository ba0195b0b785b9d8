// internal/model/step.go
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type StepKind string

const (
	StepMessage    StepKind = "message"
	StepWait       StepKind = "wait"
	StepManualTask StepKind = "manual_task"
	StepBranch     StepKind = "branch"
)

// StepConfig is the kind-specific payload of a Step. The set of
// implementations is closed: MessageConfig, WaitConfig, TaskConfig and
// BranchConfig.
type StepConfig interface {
	Kind() StepKind
	isStepConfig()
}

// MessageConfig sends either a stored template or content generated from a
// free-text instruction. TemplateID wins when both are set.
type MessageConfig struct {
	TemplateID  *int
	Instruction string
}

type WaitConfig struct {
	Days int
}

type TaskConfig struct {
	Title       string
	Description string
	DueInDays   int
}

type BranchConfig struct {
	Policy BranchPolicy
}

func (MessageConfig) Kind() StepKind { return StepMessage }
func (WaitConfig) Kind() StepKind    { return StepWait }
func (TaskConfig) Kind() StepKind    { return StepManualTask }
func (BranchConfig) Kind() StepKind  { return StepBranch }

func (MessageConfig) isStepConfig() {}
func (WaitConfig) isStepConfig()    {}
func (TaskConfig) isStepConfig()    {}
func (BranchConfig) isStepConfig()  {}

// Step is one ordered node of a campaign sequence. Policy is the reply
// policy attached to a non-branch step (typically the message step that
// produced the outbound contact).
type Step struct {
	ID         int
	CampaignID int
	Order      int
	Name       string
	Config     StepConfig
	Policy     *BranchPolicy
}

func (s Step) Kind() StepKind {
	if s.Config == nil {
		return ""
	}
	return s.Config.Kind()
}

// ReplyPolicy returns the policy a reply at this step should follow, or nil
// when the step carries none.
func (s Step) ReplyPolicy() *BranchPolicy {
	if b, ok := s.Config.(BranchConfig); ok {
		p := b.Policy
		return &p
	}
	return s.Policy
}

// WaitDays returns the configured wait, never less than one day.
func (w WaitConfig) WaitDays() int {
	if w.Days < 1 {
		return 1
	}
	return w.Days
}

// StepFields is the flat shape a Step takes on the wire and in the
// campaign_steps table.
type StepFields struct {
	ID          int           `json:"id,omitempty"`
	CampaignID  int           `json:"campaign_id,omitempty"`
	Order       int           `json:"order" validate:"gte=0"`
	Name        string        `json:"name,omitempty"`
	Kind        StepKind      `json:"step_type" validate:"required"`
	TemplateID  *int          `json:"template_id,omitempty"`
	Instruction string        `json:"content_instruction,omitempty"`
	WaitDays    int           `json:"wait_days,omitempty" validate:"gte=0"`
	TaskTitle   string        `json:"task_title,omitempty"`
	TaskDueDays int           `json:"task_due_days,omitempty" validate:"gte=0"`
	Policy      *BranchPolicy `json:"branch_config,omitempty"`
}

// NormalizeStepKind maps legacy spellings ("email", "delay", "task",
// "manual-task") onto the canonical kinds.
func NormalizeStepKind(s string) StepKind {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "message", "email":
		return StepMessage
	case "wait", "delay":
		return StepWait
	case "manual_task", "task":
		return StepManualTask
	case "branch":
		return StepBranch
	}
	return StepKind(s)
}

// ToStep builds the tagged Step, rejecting unknown kinds and message steps
// with neither a template nor an instruction.
func (f StepFields) ToStep() (Step, error) {
	s := Step{ID: f.ID, CampaignID: f.CampaignID, Order: f.Order, Name: f.Name}

	switch NormalizeStepKind(string(f.Kind)) {
	case StepMessage:
		if f.TemplateID == nil && strings.TrimSpace(f.Instruction) == "" {
			return Step{}, fmt.Errorf("message step %d needs a template_id or content_instruction", f.Order)
		}
		s.Config = MessageConfig{TemplateID: f.TemplateID, Instruction: f.Instruction}
		s.Policy = f.Policy
	case StepWait:
		s.Config = WaitConfig{Days: f.WaitDays}
		s.Policy = f.Policy
	case StepManualTask:
		s.Config = TaskConfig{Title: f.TaskTitle, Description: f.Instruction, DueInDays: f.TaskDueDays}
		s.Policy = f.Policy
	case StepBranch:
		var p BranchPolicy
		if f.Policy != nil {
			p = *f.Policy
		}
		s.Config = BranchConfig{Policy: p}
	default:
		return Step{}, fmt.Errorf("unknown step type %q", f.Kind)
	}
	return s, nil
}

// Fields flattens a Step back into its wire/table shape.
func (s Step) Fields() StepFields {
	f := StepFields{ID: s.ID, CampaignID: s.CampaignID, Order: s.Order, Name: s.Name, Policy: s.Policy}

	switch c := s.Config.(type) {
	case MessageConfig:
		f.Kind = StepMessage
		f.TemplateID = c.TemplateID
		f.Instruction = c.Instruction
	case WaitConfig:
		f.Kind = StepWait
		f.WaitDays = c.Days
	case TaskConfig:
		f.Kind = StepManualTask
		f.TaskTitle = c.Title
		f.Instruction = c.Description
		f.TaskDueDays = c.DueInDays
	case BranchConfig:
		f.Kind = StepBranch
		p := c.Policy
		f.Policy = &p
	}
	return f
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Fields())
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var f StepFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	step, err := f.ToStep()
	if err != nil {
		return err
	}
	*s = step
	return nil
}
