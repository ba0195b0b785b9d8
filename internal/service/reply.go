package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/unclebandit/dripline/internal/model"
)

const replyExcerptLen = 100

// HandleReply reroutes the contact's most recently run active journey
// according to the reply's sentiment. It returns false with a NotFound error
// when the address matches no contact or the contact has no active journey.
func (e *Engine) HandleReply(ctx context.Context, reply model.InboundReply) (bool, error) {
	log := e.logger().With(zap.String("workspace_id", reply.WorkspaceID.String()))

	contact, err := e.ContactRepo.GetByAddress(ctx, reply.WorkspaceID, reply.Address)
	if err != nil {
		return false, err
	}
	j, err := e.JourneyRepo.GetActiveForContact(ctx, reply.WorkspaceID, contact.ID)
	if err != nil {
		return false, err
	}
	log = log.With(zap.Int("journey_id", j.ID), zap.Int("campaign_id", j.CampaignID))

	classifyCtx, cancel := e.callContext(ctx)
	sentiment, err := e.Classifier.Classify(classifyCtx, reply.Body)
	cancel()
	if err != nil {
		return false, fmt.Errorf("classify reply: %w", err)
	}

	campaign, err := e.CampaignRepo.GetByID(ctx, reply.WorkspaceID, j.CampaignID)
	if err != nil {
		return false, err
	}
	policy := ResolvePolicy(campaign.Steps, j.CurrentStepID)
	action := policy.ActionFor(sentiment)

	now := e.now()
	j.Status = model.JourneyReplied
	j.Record(j.CurrentStepID, model.HistoryReplied, now, fmt.Sprintf("sentiment %s, action %s", sentiment, action))

	switch action {
	case model.ActionDisqualify:
		j.Status = model.JourneyDisqualified
		j.Record(j.CurrentStepID, model.HistoryDisqualified, now, "")

	case model.ActionCreateTask:
		journeyID := j.ID
		task := &model.Task{
			WorkspaceID: reply.WorkspaceID,
			ContactID:   contact.ID,
			JourneyID:   &journeyID,
			Title:       fmt.Sprintf("Reply from %s (%s)", contact.FirstName, sentiment),
			Description: fmt.Sprintf("Lead replied: %s...", excerpt(reply.Body, replyExcerptLen)),
			DueAt:       now,
			CreatedAt:   now,
		}
		if err := e.TaskRepo.Create(ctx, task); err != nil {
			return false, fmt.Errorf("create reply task: %w", err)
		}
		j.Status = model.JourneyPaused
		j.Record(j.CurrentStepID, model.HistoryTaskCreated, now, task.Title)
		j.Record(j.CurrentStepID, model.HistoryPaused, now, "")

	case model.ActionNextStep:
		j.Status = model.JourneyActive
		j.Record(j.CurrentStepID, model.HistoryResumed, now, "")
		if j.CurrentStepID != nil {
			if idx := stepIndex(campaign.Steps, *j.CurrentStepID); idx >= 0 {
				Advance(j, campaign.Steps, campaign.Steps[idx], now)
			}
		}

	case model.ActionNotify:
		j.Record(j.CurrentStepID, model.HistoryNotified, now, "")
	}

	if err := e.JourneyRepo.Save(ctx, j); err != nil {
		return false, fmt.Errorf("save journey: %w", err)
	}
	if err := e.CampaignRepo.IncrementCounter(ctx, campaign.ID, model.CounterReplied); err != nil {
		log.Warn("reply counter not updated", zap.Error(err))
	}

	e.Metrics.Reply(string(sentiment), string(action))
	log.Info("reply handled", zap.String("sentiment", string(sentiment)), zap.String("action", string(action)), zap.String("status", string(j.Status)))
	return true, nil
}

// ResolvePolicy picks the reply policy for a journey sitting at currentID.
// The current step's own policy wins. A wait step without one defers to the
// nearest earlier non-wait step, found by position in the ordered list so
// gaps in order numbers do not matter. A nil result means the defaults.
func ResolvePolicy(steps []model.Step, currentID *int) *model.BranchPolicy {
	if currentID == nil {
		return nil
	}
	idx := stepIndex(steps, *currentID)
	if idx < 0 {
		return nil
	}
	if p := steps[idx].ReplyPolicy(); p != nil {
		return p
	}
	if steps[idx].Kind() != model.StepWait {
		return nil
	}
	for i := idx - 1; i >= 0; i-- {
		if steps[i].Kind() == model.StepWait {
			continue
		}
		return steps[i].ReplyPolicy()
	}
	return nil
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
