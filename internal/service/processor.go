package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/lock"
	"github.com/unclebandit/dripline/internal/model"
	"github.com/unclebandit/dripline/internal/schedule"
)

// ProcessResult aggregates one tick.
type ProcessResult struct {
	Processed      int `json:"processed"`
	MessagesSent   int `json:"messages_sent"`
	StepsAdvanced  int `json:"steps_advanced"`
	Failed         int `json:"failed"`
	Skipped        int `json:"skipped"`
	OutsideWindow  int `json:"campaigns_outside_window"`
	CampaignsFound int `json:"campaigns"`
}

func (r *ProcessResult) add(o ProcessResult) {
	r.Processed += o.Processed
	r.MessagesSent += o.MessagesSent
	r.StepsAdvanced += o.StepsAdvanced
	r.Failed += o.Failed
	r.Skipped += o.Skipped
	r.OutsideWindow += o.OutsideWindow
	r.CampaignsFound += o.CampaignsFound
}

type journeyOutcome struct {
	skipped  bool
	sent     bool
	advanced bool
}

// ProcessAll runs one tick for every workspace with an active campaign.
func (e *Engine) ProcessAll(ctx context.Context) (ProcessResult, error) {
	var total ProcessResult
	workspaces, err := e.CampaignRepo.ListActiveWorkspaces(ctx)
	if err != nil {
		return total, fmt.Errorf("list active workspaces: %w", err)
	}
	for _, ws := range workspaces {
		res, err := e.ProcessCampaigns(ctx, ws)
		total.add(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ProcessCampaigns runs one tick for a workspace: every active campaign
// inside its schedule window gets its due journeys executed and advanced.
// A failing journey is logged and counted, never fatal.
func (e *Engine) ProcessCampaigns(ctx context.Context, workspaceID uuid.UUID) (ProcessResult, error) {
	var res ProcessResult
	log := e.logger().With(zap.String("workspace_id", workspaceID.String()))

	campaigns, err := e.CampaignRepo.ListActive(ctx, workspaceID)
	if err != nil {
		return res, fmt.Errorf("list active campaigns: %w", err)
	}

	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.CampaignsFound++
		clog := log.With(zap.Int("campaign_id", c.ID))
		now := e.now()

		runnable, werr := schedule.Evaluate(c.Schedule, now)
		if c.ScheduleErr != nil {
			runnable, werr = true, c.ScheduleErr
		}
		if werr != nil {
			clog.Warn("schedule window unreadable, running anyway", zap.Error(werr))
			e.Metrics.FailOpen()
		}
		if !runnable {
			res.OutsideWindow++
			continue
		}

		if err := e.processDue(ctx, c, now, clog, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// processDue pages through every journey of c that is due at now, in id
// order. Journeys that fail stay due but never hold back those after them.
func (e *Engine) processDue(ctx context.Context, c *model.Campaign, now time.Time, clog *zap.Logger, res *ProcessResult) error {
	batch := e.batchSize()
	afterID := 0
	for {
		journeys, err := e.JourneyRepo.ListDue(ctx, c.ID, now, afterID, batch)
		if err != nil {
			clog.Error("list due journeys failed", zap.Error(err))
			res.Failed++
			return nil
		}

		for _, j := range journeys {
			if err := ctx.Err(); err != nil {
				return err
			}
			afterID = j.ID
			jlog := clog.With(zap.Int("journey_id", j.ID), zap.Int("contact_id", j.ContactID))
			out, err := e.processJourney(ctx, c, j)
			switch {
			case err != nil:
				res.Failed++
				e.Metrics.JourneyResult("failed")
				if errors.Is(err, appErrors.ErrTransientSend) {
					jlog.Warn("send failed, will retry next tick", zap.Error(err))
				} else {
					jlog.Error("journey processing failed", zap.Error(err))
				}
			case out.skipped:
				res.Skipped++
				e.Metrics.JourneyResult("skipped")
			default:
				res.Processed++
				e.Metrics.JourneyResult("processed")
				if out.sent {
					res.MessagesSent++
				}
				if out.advanced {
					res.StepsAdvanced++
					e.Metrics.StepAdvanced()
				}
			}
		}

		if len(journeys) < batch {
			return nil
		}
	}
}

// processJourney claims the journey, reloads it and executes at most one
// step. A journey whose stored state moved on since it was listed is
// skipped.
func (e *Engine) processJourney(ctx context.Context, c *model.Campaign, listed *model.Journey) (journeyOutcome, error) {
	key := lock.JourneyKey(listed.ID)
	claimed, err := e.claimer().Acquire(ctx, key)
	if err != nil {
		return journeyOutcome{}, err
	}
	if !claimed {
		return journeyOutcome{skipped: true}, nil
	}
	defer func() {
		if err := e.claimer().Release(context.WithoutCancel(ctx), key); err != nil {
			e.logger().Warn("claim release failed", zap.String("key", key), zap.Error(err))
		}
	}()

	j, err := e.JourneyRepo.GetByID(ctx, listed.WorkspaceID, listed.ID)
	if err != nil {
		return journeyOutcome{}, err
	}
	now := e.now()
	if !j.DueAt(now) || !sameCursor(j, listed) {
		return journeyOutcome{skipped: true}, nil
	}

	if j.CurrentStepID == nil {
		if len(c.Steps) == 0 {
			j.Status = model.JourneyCompleted
			j.NextEligibleAt = nil
			j.LastRunAt = &now
			j.Record(nil, model.HistoryCompleted, now, "campaign has no steps")
			return journeyOutcome{advanced: true}, e.JourneyRepo.Save(ctx, j)
		}
		first := c.Steps[0].ID
		j.CurrentStepID = &first
		j.Record(&first, model.HistoryStarted, now, "")
	}

	idx := stepIndex(c.Steps, *j.CurrentStepID)
	if idx < 0 {
		return journeyOutcome{}, appErrors.NewStepNotFound(*j.CurrentStepID)
	}
	step := c.Steps[idx]

	outcome, err := e.ExecuteStep(ctx, c, j, step, now)
	if err != nil {
		return journeyOutcome{}, err
	}

	out := journeyOutcome{sent: step.Kind() == model.StepMessage}
	if outcome == OutcomeAdvance {
		Advance(j, c.Steps, step, now)
		out.advanced = true
	} else {
		j.LastRunAt = &now
	}
	if err := e.JourneyRepo.Save(ctx, j); err != nil {
		return journeyOutcome{}, fmt.Errorf("save journey: %w", err)
	}
	return out, nil
}

func sameCursor(a, b *model.Journey) bool {
	return equalIntPtr(a.CurrentStepID, b.CurrentStepID) && equalTimePtr(a.LastRunAt, b.LastRunAt)
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
