package service_test

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
	"github.com/unclebandit/dripline/internal/sender"
	"github.com/unclebandit/dripline/internal/service"
)

var ws = uuid.MustParse("0b7c6a3e-5d0f-4b43-9d7a-2c1e8f9a6b55")

// store backs every fake repository with shared in-memory state.
type store struct {
	mu        sync.Mutex
	nextID    int
	campaigns map[int]*model.Campaign
	contacts  map[int]*model.Contact
	templates map[int]*model.MessageTemplate
	journeys  map[int]*model.Journey
	tasks     []model.Task
	outbound  []model.OutboundMessage
	counters  map[int]map[model.Counter]int
	saveErr   error
}

func newStore() *store {
	return &store{
		nextID:    100,
		campaigns: map[int]*model.Campaign{},
		contacts:  map[int]*model.Contact{},
		templates: map[int]*model.MessageTemplate{},
		journeys:  map[int]*model.Journey{},
		counters:  map[int]map[model.Counter]int{},
	}
}

func (s *store) id() int {
	s.nextID++
	return s.nextID
}

func cloneJourney(j *model.Journey) *model.Journey {
	c := *j
	if j.CurrentStepID != nil {
		v := *j.CurrentStepID
		c.CurrentStepID = &v
	}
	if j.NextEligibleAt != nil {
		v := *j.NextEligibleAt
		c.NextEligibleAt = &v
	}
	if j.LastRunAt != nil {
		v := *j.LastRunAt
		c.LastRunAt = &v
	}
	c.History = slices.Clone(j.History)
	return &c
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.Steps = slices.Clone(c.Steps)
	sort.SliceStable(cp.Steps, func(a, b int) bool { return cp.Steps[a].Order < cp.Steps[b].Order })
	return &cp
}

// ---- campaigns ----

type fakeCampaigns struct{ s *store }

func (f fakeCampaigns) Create(_ context.Context, c *model.Campaign) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c.ID = f.s.id()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Channel == "" {
		c.Channel = model.ChannelEmail
	}
	f.s.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (f fakeCampaigns) GetByID(_ context.Context, workspaceID uuid.UUID, id int) (*model.Campaign, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.campaigns[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (f fakeCampaigns) ListCampaigns(_ context.Context, workspaceID uuid.UUID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var all []*model.Campaign
	for _, c := range f.s.campaigns {
		if c.WorkspaceID == workspaceID && (status == "" || string(c.Status) == status) {
			all = append(all, cloneCampaign(c))
		}
	}
	sort.Slice(all, func(a, b int) bool { return all[a].ID > all[b].ID })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (f fakeCampaigns) UpdateStatus(_ context.Context, workspaceID uuid.UUID, id int, status model.CampaignStatus) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.campaigns[id]
	if !ok || c.WorkspaceID != workspaceID {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (f fakeCampaigns) IncrementCounter(_ context.Context, id int, counter model.Counter) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.counters[id] == nil {
		f.s.counters[id] = map[model.Counter]int{}
	}
	f.s.counters[id][counter]++
	return nil
}

func (f fakeCampaigns) ListActive(_ context.Context, workspaceID uuid.UUID) ([]*model.Campaign, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*model.Campaign
	for _, c := range f.s.campaigns {
		if c.WorkspaceID == workspaceID && c.Status == model.CampaignActive {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (f fakeCampaigns) ListActiveWorkspaces(_ context.Context) ([]uuid.UUID, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, c := range f.s.campaigns {
		if c.Status == model.CampaignActive && !seen[c.WorkspaceID] {
			seen[c.WorkspaceID] = true
			out = append(out, c.WorkspaceID)
		}
	}
	return out, nil
}

func (f fakeCampaigns) AddStep(_ context.Context, step *model.Step) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.campaigns[step.CampaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(step.CampaignID)
	}
	for _, existing := range c.Steps {
		if existing.Order == step.Order {
			return appErrors.ErrInvalidStep
		}
	}
	step.ID = f.s.id()
	c.Steps = append(c.Steps, *step)
	return nil
}

func (f fakeCampaigns) ListSteps(_ context.Context, campaignID int) ([]model.Step, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.campaigns[campaignID]
	if !ok {
		return nil, nil
	}
	return cloneCampaign(c).Steps, nil
}

// ---- contacts ----

type fakeContacts struct{ s *store }

func (f fakeContacts) GetByID(_ context.Context, workspaceID uuid.UUID, id int) (*model.Contact, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.contacts[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, appErrors.NewContactNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (f fakeContacts) GetByAddress(_ context.Context, workspaceID uuid.UUID, address string) (*model.Contact, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, c := range f.s.contacts {
		if c.WorkspaceID == workspaceID && (c.Email == address || (c.Phone != "" && c.Phone == address)) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, appErrors.NewContactNotFound(address)
}

func (f fakeContacts) MarkContacted(_ context.Context, id int, at time.Time, method model.Channel) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if c, ok := f.s.contacts[id]; ok {
		c.LastContactedAt = &at
		c.LastContactMethod = string(method)
	}
	return nil
}

// ---- templates ----

type fakeTemplates struct{ s *store }

func (f fakeTemplates) GetByID(_ context.Context, workspaceID uuid.UUID, id int) (*model.MessageTemplate, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.templates[id]
	if !ok || t.WorkspaceID != workspaceID {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	cp := *t
	return &cp, nil
}

// ---- tasks ----

type fakeTasks struct{ s *store }

func (f fakeTasks) Create(_ context.Context, t *model.Task) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t.ID = f.s.id()
	f.s.tasks = append(f.s.tasks, *t)
	return nil
}

func (f fakeTasks) ListByContact(_ context.Context, workspaceID uuid.UUID, contactID int) ([]model.Task, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []model.Task
	for _, t := range f.s.tasks {
		if t.WorkspaceID == workspaceID && t.ContactID == contactID {
			out = append(out, t)
		}
	}
	return out, nil
}

// ---- journeys ----

type fakeJourneys struct{ s *store }

func (f fakeJourneys) Create(_ context.Context, j *model.Journey) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.journeys {
		if existing.CampaignID == j.CampaignID && existing.ContactID == j.ContactID {
			return false, nil
		}
	}
	j.ID = f.s.id()
	f.s.journeys[j.ID] = cloneJourney(j)
	return true, nil
}

func (f fakeJourneys) GetByID(_ context.Context, workspaceID uuid.UUID, id int) (*model.Journey, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	j, ok := f.s.journeys[id]
	if !ok || j.WorkspaceID != workspaceID {
		return nil, appErrors.NewJourneyNotFound(id)
	}
	return cloneJourney(j), nil
}

func (f fakeJourneys) ListDue(_ context.Context, campaignID int, now time.Time, afterID, limit int) ([]*model.Journey, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*model.Journey
	for _, j := range f.s.journeys {
		if j.CampaignID == campaignID && j.ID > afterID && j.DueAt(now) {
			out = append(out, cloneJourney(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeJourneys) GetActiveForContact(_ context.Context, workspaceID uuid.UUID, contactID int) (*model.Journey, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var best *model.Journey
	for _, j := range f.s.journeys {
		if j.WorkspaceID != workspaceID || j.ContactID != contactID || j.Status != model.JourneyActive {
			continue
		}
		if best == nil || moreRecent(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil, appErrors.NewJourneyNotFound(contactID)
	}
	return cloneJourney(best), nil
}

// moreRecent orders by last_run_at DESC NULLS LAST, id DESC.
func moreRecent(a, b *model.Journey) bool {
	switch {
	case a.LastRunAt != nil && b.LastRunAt == nil:
		return true
	case a.LastRunAt == nil && b.LastRunAt != nil:
		return false
	case a.LastRunAt != nil && !a.LastRunAt.Equal(*b.LastRunAt):
		return a.LastRunAt.After(*b.LastRunAt)
	}
	return a.ID > b.ID
}

func (f fakeJourneys) Save(_ context.Context, j *model.Journey) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.saveErr != nil {
		return f.s.saveErr
	}
	if _, ok := f.s.journeys[j.ID]; !ok {
		return appErrors.NewJourneyNotFound(j.ID)
	}
	f.s.journeys[j.ID] = cloneJourney(j)
	return nil
}

func (f fakeJourneys) ListByCampaign(_ context.Context, workspaceID uuid.UUID, campaignID, offset, limit int) ([]*model.Journey, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var all []*model.Journey
	for _, j := range f.s.journeys {
		if j.WorkspaceID == workspaceID && j.CampaignID == campaignID {
			all = append(all, cloneJourney(j))
		}
	}
	sort.Slice(all, func(a, b int) bool { return all[a].ID < all[b].ID })
	total := len(all)
	if offset > total {
		offset = total
	}
	return all[offset:min(offset+limit, total)], total, nil
}

func (f fakeJourneys) CountByStatus(_ context.Context, campaignID int) (map[model.JourneyStatus]int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := map[model.JourneyStatus]int{}
	for _, j := range f.s.journeys {
		if j.CampaignID == campaignID {
			out[j.Status]++
		}
	}
	return out, nil
}

// ---- outbound ----

type fakeOutbound struct{ s *store }

func (f fakeOutbound) Create(_ context.Context, msg *model.OutboundMessage) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	msg.ID = f.s.id()
	f.s.outbound = append(f.s.outbound, *msg)
	return nil
}

func (f fakeOutbound) ListByJourney(_ context.Context, journeyID int) ([]model.OutboundMessage, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []model.OutboundMessage
	for _, m := range f.s.outbound {
		if m.JourneyID == journeyID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f fakeOutbound) CountByStatus(_ context.Context, campaignID int) (map[string]int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := map[string]int{model.OutboundSent: 0, model.OutboundFailed: 0}
	for _, m := range f.s.outbound {
		if m.CampaignID == campaignID {
			out[m.Status]++
		}
	}
	return out, nil
}

// ---- collaborators ----

// recordingSender captures envelopes and can fail or block on demand.
type recordingSender struct {
	mu   sync.Mutex
	sent []sender.Envelope
	err  error
	// gate, when set, is called before recording and may block.
	gate func(ctx context.Context) error
}

func (r *recordingSender) Send(ctx context.Context, env sender.Envelope) error {
	if r.gate != nil {
		if err := r.gate(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, env)
	return nil
}

func (r *recordingSender) Sent() []sender.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

var errSMTPDown = errors.New("smtp: connection refused")

// fixture wires an Engine and CampaignService around one store.
type fixture struct {
	store   *store
	sender  *recordingSender
	engine  *service.Engine
	svc     *service.CampaignService
	clock   *fakeClock
	contact *model.Contact
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture() *fixture {
	s := newStore()
	// Monday 10:00 UTC
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	snd := &recordingSender{}
	templates := service.NewTemplateService()

	engine := &service.Engine{
		CampaignRepo: fakeCampaigns{s},
		ContactRepo:  fakeContacts{s},
		TemplateRepo: fakeTemplates{s},
		TaskRepo:     fakeTasks{s},
		JourneyRepo:  fakeJourneys{s},
		OutboundRepo: fakeOutbound{s},
		Sender:       snd,
		Generator:    &service.InstructionGenerator{Templates: templates},
		Classifier:   service.NewKeywordClassifier(),
		Templates:    templates,
		Logger:       zap.NewNop(),
		Now:          clock.Now,
		CallTimeout:  time.Second,
	}
	svc := &service.CampaignService{
		CampaignRepo: fakeCampaigns{s},
		ContactRepo:  fakeContacts{s},
		TemplateRepo: fakeTemplates{s},
		JourneyRepo:  fakeJourneys{s},
		OutboundRepo: fakeOutbound{s},
		Logger:       zap.NewNop(),
		Now:          clock.Now,
	}

	contact := &model.Contact{
		ID: 1, WorkspaceID: ws, Email: "ada@example.com", Phone: "+15550100",
		FirstName: "Ada", LastName: "Lovelace", Company: "Analytical Engines", Title: "CTO", Industry: "computing",
	}
	s.contacts[contact.ID] = contact

	return &fixture{store: s, sender: snd, engine: engine, svc: svc, clock: clock, contact: contact}
}

// campaign stores an active campaign with the given steps, assigning IDs
// 1000+order to make them easy to reference.
func (f *fixture) campaign(steps ...model.Step) *model.Campaign {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	c := &model.Campaign{ID: f.store.id(), WorkspaceID: ws, Name: "Q2", Channel: model.ChannelEmail, Status: model.CampaignActive}
	for i := range steps {
		steps[i].CampaignID = c.ID
		if steps[i].ID == 0 {
			steps[i].ID = 1000 + steps[i].Order
		}
	}
	c.Steps = steps
	f.store.campaigns[c.ID] = c
	return c
}

// journey stores an active journey for the fixture contact.
func (f *fixture) journey(c *model.Campaign, stepID *int) *model.Journey {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	j := &model.Journey{ID: f.store.id(), WorkspaceID: ws, CampaignID: c.ID, ContactID: f.contact.ID, CurrentStepID: stepID, Status: model.JourneyActive}
	f.store.journeys[j.ID] = j
	return cloneJourney(j)
}

func (f *fixture) load(id int) *model.Journey {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return cloneJourney(f.store.journeys[id])
}

func (f *fixture) tick(ctx context.Context) service.ProcessResult {
	res, err := f.engine.ProcessCampaigns(ctx, ws)
	if err != nil {
		panic(err)
	}
	return res
}

func msgStep(order int, instruction string) model.Step {
	return model.Step{Order: order, Name: "message", Config: model.MessageConfig{Instruction: instruction}}
}

func waitStep(order, days int) model.Step {
	return model.Step{Order: order, Name: "wait", Config: model.WaitConfig{Days: days}}
}

func taskStep(order int, name string) model.Step {
	return model.Step{Order: order, Name: name, Config: model.TaskConfig{}}
}

func ptr[T any](v T) *T { return &v }
