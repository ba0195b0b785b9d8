package service_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
	"github.com/unclebandit/dripline/internal/service"
)

func draft(f *fixture, steps ...model.Step) *model.Campaign {
	c := f.campaign(steps...)
	f.store.campaigns[c.ID].Status = model.CampaignDraft
	return c
}

func TestCreateCampaign(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.templates[3] = &model.MessageTemplate{ID: 3, WorkspaceID: ws, Subject: "s", Body: "b"}

	c, err := f.svc.CreateCampaign(ctx, ws, service.CreateCampaignInput{
		Name:    "Spring outreach",
		Channel: model.ChannelEmail,
		Steps: []model.StepFields{
			{Order: 3, Kind: "email", Instruction: "Follow up with {{ first_name }}"},
			{Order: 1, Kind: model.StepMessage, TemplateID: ptr(3)},
			{Order: 2, Kind: "delay", WaitDays: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.CampaignDraft, c.Status)
	require.Len(t, c.Steps, 3)

	var kinds []model.StepKind
	for _, s := range c.Steps {
		kinds = append(kinds, s.Kind())
	}
	if diff := cmp.Diff([]model.StepKind{model.StepMessage, model.StepWait, model.StepMessage}, kinds); diff != "" {
		t.Errorf("step kinds (-want +got):\n%s", diff)
	}

	stored, err := fakeCampaigns{f.store}.GetByID(ctx, ws, c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 3)
}

func TestCreateCampaign_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input service.CreateCampaignInput
		want  error
	}{
		{
			name:  "duplicate order",
			input: service.CreateCampaignInput{Name: "x", Steps: []model.StepFields{{Order: 1, Kind: "wait"}, {Order: 1, Kind: "wait"}}},
			want:  appErrors.ErrInvalidStep,
		},
		{
			name:  "unknown kind",
			input: service.CreateCampaignInput{Name: "x", Steps: []model.StepFields{{Order: 1, Kind: "carrier_pigeon"}}},
			want:  appErrors.ErrInvalidStep,
		},
		{
			name:  "message without content",
			input: service.CreateCampaignInput{Name: "x", Steps: []model.StepFields{{Order: 1, Kind: "message"}}},
			want:  appErrors.ErrInvalidStep,
		},
		{
			name:  "missing template",
			input: service.CreateCampaignInput{Name: "x", Steps: []model.StepFields{{Order: 1, Kind: "message", TemplateID: ptr(404)}}},
			want:  appErrors.ErrNotFound,
		},
		{
			name:  "bad timezone",
			input: service.CreateCampaignInput{Name: "x", Schedule: &model.ScheduleConfig{Timezone: "Nowhere/Special"}},
			want:  appErrors.ErrInvalidConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.CreateCampaign(context.Background(), ws, tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.store.campaigns)
		})
	}
}

func TestAddStep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := draft(f, msgStep(1, "hello"))

	step, err := f.svc.AddStep(ctx, ws, c.ID, model.StepFields{Order: 2, Kind: "manual-task", TaskTitle: "Call"})
	require.NoError(t, err)
	assert.Equal(t, model.StepManualTask, step.Kind())
	assert.Equal(t, c.ID, step.CampaignID)

	_, err = f.svc.AddStep(ctx, ws, c.ID, model.StepFields{Order: 2, Kind: "wait"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidStep)

	f.store.campaigns[c.ID].Status = model.CampaignCompleted
	_, err = f.svc.AddStep(ctx, ws, c.ID, model.StepFields{Order: 3, Kind: "wait"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestLaunch(t *testing.T) {
	tests := []struct {
		name    string
		status  model.CampaignStatus
		steps   []model.Step
		want    model.CampaignStatus
		wantErr error
	}{
		{"draft", model.CampaignDraft, []model.Step{msgStep(1, "a")}, model.CampaignActive, nil},
		{"paused", model.CampaignPaused, []model.Step{msgStep(1, "a")}, model.CampaignActive, nil},
		{"already active", model.CampaignActive, []model.Step{msgStep(1, "a")}, model.CampaignActive, nil},
		{"completed", model.CampaignCompleted, []model.Step{msgStep(1, "a")}, model.CampaignCompleted, appErrors.ErrInvalidTransition},
		{"no steps", model.CampaignDraft, nil, model.CampaignDraft, appErrors.ErrCampaignHasNoSteps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			c := f.campaign(tt.steps...)
			f.store.campaigns[c.ID].Status = tt.status

			got, err := f.svc.Launch(context.Background(), ws, c.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got.Status)
			}
			assert.Equal(t, tt.want, f.store.campaigns[c.ID].Status)
		})
	}
}

func TestLaunch_OtherWorkspace(t *testing.T) {
	f := newFixture()
	c := draft(f, msgStep(1, "a"))

	_, err := f.svc.Launch(context.Background(), uuid.New(), c.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEnroll(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.contacts[2] = &model.Contact{ID: 2, WorkspaceID: ws, Email: "grace@example.com"}
	c := f.campaign(msgStep(4, "b"), msgStep(2, "a"))

	n, err := f.svc.Enroll(ctx, ws, c.ID, []int{1, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// already enrolled contacts are skipped
	n, err = f.svc.Enroll(ctx, ws, c.ID, []int{1, 2})
	require.NoError(t, err)
	assert.Zero(t, n)

	journeys, page, err := f.svc.ListJourneys(ctx, ws, c.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, journeys, 2)
	assert.Equal(t, 2, page["total_count"])
	for _, j := range journeys {
		assert.Equal(t, model.JourneyActive, j.Status)
		require.NotNil(t, j.CurrentStepID)
		assert.Equal(t, 1002, *j.CurrentStepID)
		assert.Equal(t, model.HistoryEnrolled, j.History[0].Action)
	}
}

func TestEnroll_DraftStartsAtLowestOrderAtLaunch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := draft(f, msgStep(10, "Second touch"))

	_, err := f.svc.Enroll(ctx, ws, c.ID, []int{1})
	require.NoError(t, err)
	_, err = f.svc.AddStep(ctx, ws, c.ID, model.StepFields{Order: 5, Kind: model.StepMessage, Instruction: "Hi {{ first_name }}"})
	require.NoError(t, err)
	_, err = f.svc.Launch(ctx, ws, c.ID)
	require.NoError(t, err)

	journeys, _, err := f.svc.ListJourneys(ctx, ws, c.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, journeys, 1)
	assert.Nil(t, journeys[0].CurrentStepID)

	f.tick(ctx)
	f.tick(ctx)

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Body, "Hi Ada")
	assert.Contains(t, sent[1].Body, "Second touch")
	assert.Equal(t, model.JourneyCompleted, f.load(journeys[0].ID).Status)
}

func TestEnroll_Rejects(t *testing.T) {
	t.Run("unknown contact writes nothing", func(t *testing.T) {
		f := newFixture()
		c := f.campaign(msgStep(1, "a"))
		_, err := f.svc.Enroll(context.Background(), ws, c.ID, []int{1, 77})
		assert.ErrorIs(t, err, appErrors.ErrNotFound)
		assert.Empty(t, f.store.journeys)
	})
	t.Run("no steps", func(t *testing.T) {
		f := newFixture()
		c := f.campaign()
		_, err := f.svc.Enroll(context.Background(), ws, c.ID, []int{1})
		assert.ErrorIs(t, err, appErrors.ErrCampaignHasNoSteps)
	})
	t.Run("completed campaign", func(t *testing.T) {
		f := newFixture()
		c := f.campaign(msgStep(1, "a"))
		f.store.campaigns[c.ID].Status = model.CampaignCompleted
		_, err := f.svc.Enroll(context.Background(), ws, c.ID, []int{1})
		assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	})
}

func TestEnrollThenTickSendsFirstStep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := draft(f, msgStep(1, "Hi {{ first_name }}"))

	_, err := f.svc.Launch(ctx, ws, c.ID)
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, ws, c.ID, []int{1})
	require.NoError(t, err)

	res := f.tick(ctx)
	assert.Equal(t, 1, res.MessagesSent)

	details, err := f.svc.GetCampaignDetails(ctx, ws, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, details.JourneyStats[model.JourneyCompleted])
	assert.Equal(t, 0, details.JourneyStats[model.JourneyPaused])
	assert.Contains(t, details.JourneyStats, model.JourneyReplied)
	assert.Equal(t, map[string]int{model.OutboundSent: 1, model.OutboundFailed: 0}, details.OutboundStats)
}

func TestListCampaigns_Pagination(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		draft(f, msgStep(1, "a"))
	}

	campaigns, page, err := f.svc.ListCampaigns(context.Background(), ws, 2, 2, "")
	require.NoError(t, err)
	assert.Len(t, campaigns, 2)
	assert.Equal(t, map[string]int{"page": 2, "page_size": 2, "total_count": 5, "total_pages": 3}, page)

	_, page, err = f.svc.ListCampaigns(context.Background(), ws, 0, 500, "active")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"page": 1, "page_size": 100, "total_count": 0, "total_pages": 0}, page)
}
