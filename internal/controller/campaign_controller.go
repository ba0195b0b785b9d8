// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
	"github.com/unclebandit/dripline/internal/service"
)

// CampaignServiceInterface is the part of service.CampaignService the
// controller drives.
type CampaignServiceInterface interface {
	CreateCampaign(ctx context.Context, workspaceID uuid.UUID, in service.CreateCampaignInput) (*model.Campaign, error)
	AddStep(ctx context.Context, workspaceID uuid.UUID, campaignID int, f model.StepFields) (*model.Step, error)
	Launch(ctx context.Context, workspaceID uuid.UUID, campaignID int) (*model.Campaign, error)
	Enroll(ctx context.Context, workspaceID uuid.UUID, campaignID int, contactIDs []int) (int, error)
	ListCampaigns(ctx context.Context, workspaceID uuid.UUID, page, pageSize int, status string) ([]model.Campaign, map[string]int, error)
	GetCampaignDetails(ctx context.Context, workspaceID uuid.UUID, campaignID int) (*service.CampaignDetails, error)
	ListJourneys(ctx context.Context, workspaceID uuid.UUID, campaignID, page, pageSize int) ([]*model.Journey, map[string]int, error)
}

// TickRunner runs one processing tick for a workspace.
type TickRunner interface {
	ProcessCampaigns(ctx context.Context, workspaceID uuid.UUID) (service.ProcessResult, error)
}

var (
	_ CampaignServiceInterface = (*service.CampaignService)(nil)
	_ TickRunner               = (*service.Engine)(nil)
)

type CampaignController struct {
	CampaignService CampaignServiceInterface
	Processor       TickRunner
	Validate        *validator.Validate
	Logger          *zap.Logger
}

func NewCampaignController(svc CampaignServiceInterface, processor TickRunner, logger *zap.Logger) *CampaignController {
	return &CampaignController{
		CampaignService: svc,
		Processor:       processor,
		Validate:        validator.New(),
		Logger:          logger,
	}
}

// RegisterRoutes mounts the campaign endpoints under
// /workspaces/{workspaceID}.
func (c *CampaignController) RegisterRoutes(r chi.Router) {
	r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
		r.Post("/campaigns", c.CreateCampaign)
		r.Get("/campaigns", c.ListCampaigns)
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", c.GetCampaignDetails)
			r.Post("/steps", c.AddStep)
			r.Post("/launch", c.Launch)
			r.Post("/enroll", c.Enroll)
			r.Get("/journeys", c.ListJourneys)
		})
		r.Post("/process", c.Process)
	})
}

type enrollRequest struct {
	ContactIDs []int `json:"contact_ids" validate:"required,min=1,dive,gt=0"`
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	ws, ok := c.workspace(w, r)
	if !ok {
		return
	}
	var body service.CreateCampaignInput
	if !c.decode(w, r, &body) {
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), ws, body)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	ws, ok := c.workspace(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), ws, page, pageSize, status)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	ws, id, ok := c.campaignParams(w, r)
	if !ok {
		return
	}
	details, err := c.CampaignService.GetCampaignDetails(r.Context(), ws, id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) AddStep(w http.ResponseWriter, r *http.Request) {
	ws, id, ok := c.campaignParams(w, r)
	if !ok {
		return
	}
	var body model.StepFields
	if !c.decode(w, r, &body) {
		return
	}
	step, err := c.CampaignService.AddStep(r.Context(), ws, id, body)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, step)
}

func (c *CampaignController) Launch(w http.ResponseWriter, r *http.Request) {
	ws, id, ok := c.campaignParams(w, r)
	if !ok {
		return
	}
	campaign, err := c.CampaignService.Launch(r.Context(), ws, id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) Enroll(w http.ResponseWriter, r *http.Request) {
	ws, id, ok := c.campaignParams(w, r)
	if !ok {
		return
	}
	var body enrollRequest
	if !c.decode(w, r, &body) {
		return
	}
	enrolled, err := c.CampaignService.Enroll(r.Context(), ws, id, body.ContactIDs)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id": id,
		"requested":   len(body.ContactIDs),
		"enrolled":    enrolled,
	})
}

func (c *CampaignController) ListJourneys(w http.ResponseWriter, r *http.Request) {
	ws, id, ok := c.campaignParams(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	journeys, pagination, err := c.CampaignService.ListJourneys(r.Context(), ws, id, page, pageSize)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       journeys,
		"pagination": pagination,
	})
}

// Process runs one tick for the workspace synchronously.
func (c *CampaignController) Process(w http.ResponseWriter, r *http.Request) {
	ws, ok := c.workspace(w, r)
	if !ok {
		return
	}
	res, err := c.Processor.ProcessCampaigns(r.Context(), ws)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) workspace(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ws, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeJSONError(w, "invalid workspace id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return ws, true
}

func (c *CampaignController) campaignParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	ws, ok := c.workspace(w, r)
	if !ok {
		return uuid.Nil, 0, false
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid campaign id", http.StatusBadRequest)
		return uuid.Nil, 0, false
	}
	return ws, id, true
}

// decode reads a JSON body into dst and validates it.
func (c *CampaignController) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := c.Validate.Struct(dst); err != nil {
		writeJSONError(w, validationMessage(err), http.StatusBadRequest)
		return false
	}
	return true
}

func (c *CampaignController) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && c.Logger != nil {
		c.Logger.Error("request failed", zap.Error(err))
	}
	writeJSONError(w, err.Error(), status)
}

// StatusFor maps a service error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrInvalidStep), errors.Is(err, appErrors.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrCampaignHasNoSteps), errors.Is(err, appErrors.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, appErrors.ErrTransientSend):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return "field " + fe.Namespace() + " failed on " + fe.Tag()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
