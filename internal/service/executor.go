package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
	"github.com/unclebandit/dripline/internal/sender"
)

// StepOutcome tells the processor what to do with the journey after a step
// ran.
type StepOutcome int

const (
	OutcomeAdvance StepOutcome = iota
	OutcomeHold
)

const (
	defaultTaskTitlePrefix = "Campaign Task: "
	defaultTaskDescription = "Manual step required"
)

// ExecuteStep performs step's side effect for j. It mutates j's history and
// wait timer but never persists it. On error j must be discarded.
func (e *Engine) ExecuteStep(ctx context.Context, c *model.Campaign, j *model.Journey, step model.Step, now time.Time) (StepOutcome, error) {
	switch cfg := step.Config.(type) {
	case model.MessageConfig:
		if err := e.sendMessage(ctx, c, j, step, cfg, now); err != nil {
			return OutcomeHold, err
		}
		return OutcomeAdvance, nil

	case model.WaitConfig:
		if j.NextEligibleAt == nil {
			until := now.Add(time.Duration(cfg.WaitDays()) * 24 * time.Hour)
			j.NextEligibleAt = &until
			j.Record(&step.ID, model.HistoryWaitStarted, now, fmt.Sprintf("waiting %d day(s) until %s", cfg.WaitDays(), until.Format(time.RFC3339)))
			return OutcomeHold, nil
		}
		j.NextEligibleAt = nil
		j.Record(&step.ID, model.HistoryWaitCompleted, now, "")
		return OutcomeAdvance, nil

	case model.TaskConfig:
		task, err := e.createStepTask(ctx, j, step, cfg, now)
		if err != nil {
			return OutcomeHold, err
		}
		j.Record(&step.ID, model.HistoryTaskCreated, now, task.Title)
		return OutcomeAdvance, nil

	case model.BranchConfig:
		j.Record(&step.ID, model.HistoryBranchPassed, now, "")
		return OutcomeAdvance, nil
	}
	return OutcomeHold, fmt.Errorf("%w: step %d has no executable config", appErrors.ErrInvalidStep, step.ID)
}

func (e *Engine) sendMessage(ctx context.Context, c *model.Campaign, j *model.Journey, step model.Step, cfg model.MessageConfig, now time.Time) error {
	contact, err := e.ContactRepo.GetByID(ctx, j.WorkspaceID, j.ContactID)
	if err != nil {
		return err
	}

	content, err := e.renderMessage(ctx, j, contact, cfg)
	if err != nil {
		return err
	}

	env := sender.Envelope{
		Channel:    c.Channel,
		To:         contact.Address(c.Channel),
		Subject:    content.Subject,
		Body:       content.Body,
		CampaignID: c.ID,
		JourneyID:  j.ID,
	}
	audit := &model.OutboundMessage{
		JourneyID:       j.ID,
		CampaignID:      c.ID,
		ContactID:       contact.ID,
		StepID:          step.ID,
		Channel:         c.Channel,
		Recipient:       env.To,
		Subject:         env.Subject,
		RenderedContent: env.Body,
		CreatedAt:       now,
	}

	sendCtx, cancel := e.callContext(ctx)
	sendErr := e.Sender.Send(sendCtx, env)
	cancel()

	if sendErr != nil {
		audit.Status = model.OutboundFailed
		audit.LastError = sendErr.Error()
		e.recordOutbound(ctx, audit)
		return appErrors.NewTransientSend(j.ID, sendErr)
	}

	audit.Status = model.OutboundSent
	e.recordOutbound(ctx, audit)
	j.Record(&step.ID, model.HistoryMessageSent, now, fmt.Sprintf("%s to %s: %s", c.Channel, env.To, env.Subject))

	if err := e.CampaignRepo.IncrementCounter(ctx, c.ID, model.CounterSent); err != nil {
		e.logger().Warn("sent counter not updated", zap.Int("campaign_id", c.ID), zap.Error(err))
	}
	if err := e.ContactRepo.MarkContacted(ctx, contact.ID, now, c.Channel); err != nil {
		e.logger().Warn("last contacted not updated", zap.Int("contact_id", contact.ID), zap.Error(err))
	}
	e.Metrics.MessageSent()
	return nil
}

// renderMessage prefers the step's template over its instruction.
func (e *Engine) renderMessage(ctx context.Context, j *model.Journey, contact *model.Contact, cfg model.MessageConfig) (Content, error) {
	if cfg.TemplateID != nil {
		tpl, err := e.TemplateRepo.GetByID(ctx, j.WorkspaceID, *cfg.TemplateID)
		if err != nil {
			return Content{}, err
		}
		bindings := ContactBindings(contact)
		subject, err := e.Templates.Render(tpl.Subject, bindings)
		if err != nil {
			return Content{}, fmt.Errorf("template %d subject: %w", tpl.ID, err)
		}
		body, err := e.Templates.Render(tpl.Body, bindings)
		if err != nil {
			return Content{}, fmt.Errorf("template %d body: %w", tpl.ID, err)
		}
		return Content{Subject: subject, Body: body}, nil
	}

	genCtx, cancel := e.callContext(ctx)
	defer cancel()
	content, err := e.Generator.Generate(genCtx, contact, cfg.Instruction)
	if err != nil {
		return Content{}, fmt.Errorf("generate content: %w", err)
	}
	return content, nil
}

func (e *Engine) recordOutbound(ctx context.Context, msg *model.OutboundMessage) {
	if e.OutboundRepo == nil {
		return
	}
	if err := e.OutboundRepo.Create(ctx, msg); err != nil {
		e.logger().Warn("outbound audit not written", zap.Int("journey_id", msg.JourneyID), zap.Error(err))
	}
}

func (e *Engine) createStepTask(ctx context.Context, j *model.Journey, step model.Step, cfg model.TaskConfig, now time.Time) (*model.Task, error) {
	title := cfg.Title
	if title == "" {
		title = defaultTaskTitlePrefix + stepLabel(step)
	}
	description := cfg.Description
	if description == "" {
		description = defaultTaskDescription
	}
	due := cfg.DueInDays
	if due <= 0 {
		due = 1
	}
	journeyID := j.ID
	task := &model.Task{
		WorkspaceID: j.WorkspaceID,
		ContactID:   j.ContactID,
		JourneyID:   &journeyID,
		Title:       title,
		Description: description,
		DueAt:       now.Add(time.Duration(due) * 24 * time.Hour),
		CreatedAt:   now,
	}
	if err := e.TaskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func stepLabel(s model.Step) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d", s.Order)
}
