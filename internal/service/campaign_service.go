// internal/service/campaign_service.go
package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
	"github.com/unclebandit/dripline/internal/repository"
	"github.com/unclebandit/dripline/internal/schedule"
)

// CampaignService owns campaign definition and enrollment.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	JourneyRepo  repository.JourneyRepositoryInterface
	OutboundRepo repository.OutboundMessageRepositoryInterface
	Logger       *zap.Logger
	Now          func() time.Time
}

type CampaignDetails struct {
	*model.Campaign
	JourneyStats  map[model.JourneyStatus]int `json:"journey_stats"`
	OutboundStats map[string]int              `json:"outbound_stats"`
}

// CreateCampaignInput is the payload accepted by CreateCampaign.
type CreateCampaignInput struct {
	Name     string                `json:"name" validate:"required,max=200"`
	Channel  model.Channel         `json:"channel" validate:"omitempty,oneof=email sms linkedin"`
	Schedule *model.ScheduleConfig `json:"schedule_config"`
	Steps    []model.StepFields    `json:"steps" validate:"dive"`
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *CampaignService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// CreateCampaign stores a draft campaign and any steps supplied with it.
func (s *CampaignService) CreateCampaign(ctx context.Context, workspaceID uuid.UUID, in CreateCampaignInput) (*model.Campaign, error) {
	if in.Schedule != nil {
		if _, err := schedule.Resolve(in.Schedule); err != nil {
			return nil, err
		}
	}
	steps := make([]model.Step, 0, len(in.Steps))
	seen := map[int]bool{}
	for _, f := range in.Steps {
		if seen[f.Order] {
			return nil, fmt.Errorf("%w: order %d used twice", appErrors.ErrInvalidStep, f.Order)
		}
		seen[f.Order] = true
		step, err := s.buildStep(ctx, workspaceID, f)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	c := &model.Campaign{
		WorkspaceID: workspaceID,
		Name:        in.Name,
		Channel:     in.Channel,
		Status:      model.CampaignDraft,
		Schedule:    in.Schedule,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	for i := range steps {
		steps[i].CampaignID = c.ID
		if err := s.CampaignRepo.AddStep(ctx, &steps[i]); err != nil {
			return nil, err
		}
	}
	sortSteps(steps)
	c.Steps = steps

	s.logger().Info("campaign created", zap.Int("campaign_id", c.ID), zap.Int("steps", len(steps)))
	return c, nil
}

// AddStep appends a step to a campaign that has not completed.
func (s *CampaignService) AddStep(ctx context.Context, workspaceID uuid.UUID, campaignID int, f model.StepFields) (*model.Step, error) {
	c, err := s.CampaignRepo.GetByID(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == model.CampaignCompleted {
		return nil, fmt.Errorf("%w: campaign %d is completed", appErrors.ErrInvalidTransition, campaignID)
	}
	step, err := s.buildStep(ctx, workspaceID, f)
	if err != nil {
		return nil, err
	}
	step.CampaignID = campaignID
	if err := s.CampaignRepo.AddStep(ctx, &step); err != nil {
		return nil, err
	}
	return &step, nil
}

func (s *CampaignService) buildStep(ctx context.Context, workspaceID uuid.UUID, f model.StepFields) (model.Step, error) {
	step, err := f.ToStep()
	if err != nil {
		return model.Step{}, fmt.Errorf("%w: %v", appErrors.ErrInvalidStep, err)
	}
	if mc, ok := step.Config.(model.MessageConfig); ok && mc.TemplateID != nil && s.TemplateRepo != nil {
		if _, err := s.TemplateRepo.GetByID(ctx, workspaceID, *mc.TemplateID); err != nil {
			return model.Step{}, err
		}
	}
	return step, nil
}

// Launch moves a draft or paused campaign to active. Launching an active
// campaign is a no-op; a completed campaign cannot be relaunched.
func (s *CampaignService) Launch(ctx context.Context, workspaceID uuid.UUID, campaignID int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	if len(c.Steps) == 0 {
		return nil, fmt.Errorf("launch campaign %d: %w", campaignID, appErrors.ErrCampaignHasNoSteps)
	}
	switch c.Status {
	case model.CampaignActive:
		return c, nil
	case model.CampaignDraft, model.CampaignPaused:
	default:
		return nil, fmt.Errorf("%w: cannot launch %s campaign %d", appErrors.ErrInvalidTransition, c.Status, campaignID)
	}

	if err := s.CampaignRepo.UpdateStatus(ctx, workspaceID, campaignID, model.CampaignActive); err != nil {
		return nil, err
	}
	c.Status = model.CampaignActive
	s.logger().Info("campaign launched", zap.Int("campaign_id", campaignID))
	return c, nil
}

// Enroll creates a journey for each contact not already in the campaign and
// returns how many were created. Every contact is checked before any journey
// is written. Journeys of an active campaign start at its first step; those
// of a draft or paused campaign get no step yet, so steps added before launch
// are picked up by the first tick.
func (s *CampaignService) Enroll(ctx context.Context, workspaceID uuid.UUID, campaignID int, contactIDs []int) (int, error) {
	c, err := s.CampaignRepo.GetByID(ctx, workspaceID, campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status == model.CampaignCompleted {
		return 0, fmt.Errorf("%w: campaign %d is completed", appErrors.ErrInvalidTransition, campaignID)
	}
	if len(c.Steps) == 0 {
		return 0, fmt.Errorf("enroll into campaign %d: %w", campaignID, appErrors.ErrCampaignHasNoSteps)
	}

	ids := make([]int, 0, len(contactIDs))
	seen := map[int]bool{}
	for _, id := range contactIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.ContactRepo.GetByID(ctx, workspaceID, id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}

	var first *int
	if c.Status == model.CampaignActive {
		first = &c.Steps[0].ID
	}
	now := s.now()
	enrolled := 0
	for _, contactID := range ids {
		j := &model.Journey{
			WorkspaceID: workspaceID,
			CampaignID:  campaignID,
			ContactID:   contactID,
			Status:      model.JourneyActive,
			CreatedAt:   now,
		}
		if first != nil {
			stepID := *first
			j.CurrentStepID = &stepID
		}
		j.Record(nil, model.HistoryEnrolled, now, "")
		inserted, err := s.JourneyRepo.Create(ctx, j)
		if err != nil {
			return enrolled, fmt.Errorf("enroll contact %d: %w", contactID, err)
		}
		if inserted {
			enrolled++
		}
	}

	s.logger().Info("contacts enrolled", zap.Int("campaign_id", campaignID), zap.Int("requested", len(contactIDs)), zap.Int("enrolled", enrolled))
	return enrolled, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, workspaceID uuid.UUID, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	page, pageSize, offset := normalizePage(page, pageSize)

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, workspaceID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}
	return campaigns, pagination(page, pageSize, total), nil
}

// GetCampaignDetails returns the campaign, its steps and per-status counts.
func (s *CampaignService) GetCampaignDetails(ctx context.Context, workspaceID uuid.UUID, campaignID int) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	journeyStats, err := s.JourneyRepo.CountByStatus(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	for _, st := range []model.JourneyStatus{model.JourneyActive, model.JourneyPaused, model.JourneyReplied, model.JourneyDisqualified, model.JourneyCompleted} {
		if _, ok := journeyStats[st]; !ok {
			journeyStats[st] = 0
		}
	}
	details := &CampaignDetails{Campaign: c, JourneyStats: journeyStats}
	if s.OutboundRepo != nil {
		if details.OutboundStats, err = s.OutboundRepo.CountByStatus(ctx, campaignID); err != nil {
			return nil, err
		}
	}
	return details, nil
}

// ListJourneys pages through a campaign's journeys.
func (s *CampaignService) ListJourneys(ctx context.Context, workspaceID uuid.UUID, campaignID, page, pageSize int) ([]*model.Journey, map[string]int, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, workspaceID, campaignID); err != nil {
		return nil, nil, err
	}
	page, pageSize, offset := normalizePage(page, pageSize)
	journeys, total, err := s.JourneyRepo.ListByCampaign(ctx, workspaceID, campaignID, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}
	return journeys, pagination(page, pageSize, total), nil
}

func normalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}

func pagination(page, pageSize, total int) map[string]int {
	return map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
}

func sortSteps(steps []model.Step) {
	slices.SortStableFunc(steps, func(a, b model.Step) int { return cmp.Compare(a.Order, b.Order) })
}
