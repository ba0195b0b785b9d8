package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, workspaceID uuid.UUID, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, workspaceID uuid.UUID, offset, limit int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(ctx context.Context, workspaceID uuid.UUID, id int, status model.CampaignStatus) error
	IncrementCounter(ctx context.Context, id int, counter model.Counter) error

	// Tick support
	ListActive(ctx context.Context, workspaceID uuid.UUID) ([]*model.Campaign, error)
	ListActiveWorkspaces(ctx context.Context) ([]uuid.UUID, error)

	// Steps
	AddStep(ctx context.Context, step *model.Step) error
	ListSteps(ctx context.Context, campaignID int) ([]model.Step, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const uniqueViolation = "23505"

const campaignColumns = `id, workspace_id, name, channel, status, schedule_config, sent_count, open_count, reply_count, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Channel == "" {
		c.Channel = model.ChannelEmail
	}
	schedule, err := marshalNullable(c.Schedule)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (workspace_id, name, channel, status, schedule_config, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query, c.WorkspaceID, c.Name, c.Channel, c.Status, schedule, c.CreatedAt).Scan(&c.ID)
}

// GetByID returns the campaign with its steps sorted by order.
func (r *CampaignRepository) GetByID(ctx context.Context, workspaceID uuid.UUID, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND workspace_id=$2`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, workspaceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	if c.Steps, err = r.ListSteps(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, workspaceID uuid.UUID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE workspace_id=$1`
	args := []any{workspaceID}
	if status != "" {
		where += ` AND status=$2`
		args = append(args, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, workspaceID uuid.UUID, id int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3 AND workspace_id=$4`
	res, err := r.DB.ExecContext(ctx, query, status, time.Now().UTC(), id, workspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

// IncrementCounter bumps one of the aggregate columns by one.
func (r *CampaignRepository) IncrementCounter(ctx context.Context, id int, counter model.Counter) error {
	switch counter {
	case model.CounterSent, model.CounterOpened, model.CounterReplied:
	default:
		return fmt.Errorf("unknown campaign counter %q", counter)
	}
	query := fmt.Sprintf(`UPDATE campaigns SET %[1]s=%[1]s+1, updated_at=NOW() WHERE id=$1`, counter)
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

// ====================== Tick support ======================

func (r *CampaignRepository) ListActive(ctx context.Context, workspaceID uuid.UUID) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE workspace_id=$1 AND status=$2 ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, workspaceID, model.CampaignActive)
	if err != nil {
		return nil, err
	}
	var campaigns []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range campaigns {
		if c.Steps, err = r.ListSteps(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return campaigns, nil
}

func (r *CampaignRepository) ListActiveWorkspaces(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT workspace_id FROM campaigns WHERE status=$1 ORDER BY workspace_id`, model.CampaignActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ====================== Steps ======================

func (r *CampaignRepository) AddStep(ctx context.Context, step *model.Step) error {
	f := step.Fields()
	policy, err := marshalNullable(f.Policy)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaign_steps
        (campaign_id, step_order, name, step_type, template_id, content_instruction, wait_days, task_title, task_due_days, branch_config)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	err = r.DB.QueryRowContext(ctx, query,
		f.CampaignID, f.Order, f.Name, f.Kind, f.TemplateID, f.Instruction,
		f.WaitDays, f.TaskTitle, f.TaskDueDays, policy,
	).Scan(&step.ID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: order %d already used in campaign %d", appErrors.ErrInvalidStep, f.Order, f.CampaignID)
	}
	return err
}

// ListSteps returns the campaign's steps sorted by order.
func (r *CampaignRepository) ListSteps(ctx context.Context, campaignID int) ([]model.Step, error) {
	query := `
        SELECT id, campaign_id, step_order, name, step_type, template_id, content_instruction,
               wait_days, task_title, task_due_days, branch_config
        FROM campaign_steps
        WHERE campaign_id=$1
        ORDER BY step_order
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []model.Step{}
	for rows.Next() {
		var (
			f          model.StepFields
			templateID sql.NullInt64
			policy     []byte
		)
		if err := rows.Scan(&f.ID, &f.CampaignID, &f.Order, &f.Name, &f.Kind, &templateID,
			&f.Instruction, &f.WaitDays, &f.TaskTitle, &f.TaskDueDays, &policy); err != nil {
			return nil, err
		}
		if templateID.Valid {
			id := int(templateID.Int64)
			f.TemplateID = &id
		}
		if len(policy) > 0 {
			f.Policy = &model.BranchPolicy{}
			if err := json.Unmarshal(policy, f.Policy); err != nil {
				return nil, fmt.Errorf("step %d branch_config: %w", f.ID, err)
			}
		}
		step, err := f.ToStep()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", f.ID, err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c        model.Campaign
		schedule []byte
		updated  sql.NullTime
	)
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Channel, &c.Status, &schedule,
		&c.SentCount, &c.OpenCount, &c.ReplyCount, &c.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	if len(schedule) > 0 && string(schedule) != "null" {
		c.Schedule = &model.ScheduleConfig{}
		if err := json.Unmarshal(schedule, c.Schedule); err != nil {
			c.Schedule = nil
			c.ScheduleErr = appErrors.NewInvalidConfiguration("schedule_config", err.Error())
		}
	}
	if updated.Valid {
		c.UpdatedAt = &updated.Time
	}
	return &c, nil
}

// marshalNullable encodes v as JSON, or returns nil for a nil pointer so the
// column stays NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
