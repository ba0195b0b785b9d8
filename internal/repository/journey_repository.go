package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
)

type JourneyRepositoryInterface interface {
	// Create inserts the journey unless one already exists for the same
	// campaign and contact. The bool reports whether a row was inserted.
	Create(ctx context.Context, j *model.Journey) (bool, error)
	GetByID(ctx context.Context, workspaceID uuid.UUID, id int) (*model.Journey, error)
	// ListDue returns up to limit active journeys of a campaign whose
	// next_eligible_at is null or not after now, with ids above afterID, in id
	// order.
	ListDue(ctx context.Context, campaignID int, now time.Time, afterID, limit int) ([]*model.Journey, error)
	// GetActiveForContact returns the contact's most recently run active
	// journey.
	GetActiveForContact(ctx context.Context, workspaceID uuid.UUID, contactID int) (*model.Journey, error)
	Save(ctx context.Context, j *model.Journey) error
	ListByCampaign(ctx context.Context, workspaceID uuid.UUID, campaignID, offset, limit int) ([]*model.Journey, int, error)
	CountByStatus(ctx context.Context, campaignID int) (map[model.JourneyStatus]int, error)
}

type JourneyRepository struct {
	DB *sql.DB
}

const journeyColumns = `id, workspace_id, campaign_id, contact_id, current_step_id, next_eligible_at, status, last_run_at, history, created_at, updated_at`

func (r *JourneyRepository) Create(ctx context.Context, j *model.Journey) (bool, error) {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	history, err := marshalHistory(j.History)
	if err != nil {
		return false, err
	}
	query := `
        INSERT INTO journeys (workspace_id, campaign_id, contact_id, current_step_id, next_eligible_at, status, history, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
        RETURNING id
    `
	err = r.DB.QueryRowContext(ctx, query,
		j.WorkspaceID, j.CampaignID, j.ContactID, j.CurrentStepID, j.NextEligibleAt, j.Status, history, j.CreatedAt,
	).Scan(&j.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *JourneyRepository) GetByID(ctx context.Context, workspaceID uuid.UUID, id int) (*model.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys WHERE id=$1 AND workspace_id=$2`
	j, err := scanJourney(r.DB.QueryRowContext(ctx, query, id, workspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewJourneyNotFound(id)
	}
	return j, err
}

func (r *JourneyRepository) ListDue(ctx context.Context, campaignID int, now time.Time, afterID, limit int) ([]*model.Journey, error) {
	query := `
        SELECT ` + journeyColumns + `
        FROM journeys
        WHERE campaign_id=$1 AND status=$2 AND (next_eligible_at IS NULL OR next_eligible_at <= $3) AND id > $4
        ORDER BY id
        LIMIT $5
    `
	return r.list(ctx, query, campaignID, model.JourneyActive, now, afterID, limit)
}

func (r *JourneyRepository) GetActiveForContact(ctx context.Context, workspaceID uuid.UUID, contactID int) (*model.Journey, error) {
	query := `
        SELECT ` + journeyColumns + `
        FROM journeys
        WHERE workspace_id=$1 AND contact_id=$2 AND status=$3
        ORDER BY last_run_at DESC NULLS LAST, id DESC
        LIMIT 1
    `
	j, err := scanJourney(r.DB.QueryRowContext(ctx, query, workspaceID, contactID, model.JourneyActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewJourneyNotFound(fmt.Sprintf("active for contact %d", contactID))
	}
	return j, err
}

// Save writes the whole mutable state of the journey.
func (r *JourneyRepository) Save(ctx context.Context, j *model.Journey) error {
	history, err := marshalHistory(j.History)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	query := `
        UPDATE journeys
        SET current_step_id=$1, next_eligible_at=$2, status=$3, last_run_at=$4, history=$5, updated_at=$6
        WHERE id=$7
    `
	res, err := r.DB.ExecContext(ctx, query, j.CurrentStepID, j.NextEligibleAt, j.Status, j.LastRunAt, history, now, j.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewJourneyNotFound(j.ID)
	}
	j.UpdatedAt = &now
	return nil
}

func (r *JourneyRepository) ListByCampaign(ctx context.Context, workspaceID uuid.UUID, campaignID, offset, limit int) ([]*model.Journey, int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journeys WHERE workspace_id=$1 AND campaign_id=$2`, workspaceID, campaignID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	query := `
        SELECT ` + journeyColumns + `
        FROM journeys
        WHERE workspace_id=$1 AND campaign_id=$2
        ORDER BY id
        LIMIT $3 OFFSET $4
    `
	journeys, err := r.list(ctx, query, workspaceID, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return journeys, total, nil
}

func (r *JourneyRepository) CountByStatus(ctx context.Context, campaignID int) (map[model.JourneyStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM journeys WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.JourneyStatus]int{}
	for rows.Next() {
		var (
			status model.JourneyStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *JourneyRepository) list(ctx context.Context, query string, args ...any) ([]*model.Journey, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	journeys := []*model.Journey{}
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			return nil, err
		}
		journeys = append(journeys, j)
	}
	return journeys, rows.Err()
}

func scanJourney(row rowScanner) (*model.Journey, error) {
	var (
		j        model.Journey
		stepID   sql.NullInt64
		eligible sql.NullTime
		lastRun  sql.NullTime
		updated  sql.NullTime
		history  []byte
	)
	err := row.Scan(&j.ID, &j.WorkspaceID, &j.CampaignID, &j.ContactID, &stepID, &eligible,
		&j.Status, &lastRun, &history, &j.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	if stepID.Valid {
		id := int(stepID.Int64)
		j.CurrentStepID = &id
	}
	if eligible.Valid {
		j.NextEligibleAt = &eligible.Time
	}
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if updated.Valid {
		j.UpdatedAt = &updated.Time
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &j.History); err != nil {
			return nil, fmt.Errorf("journey %d history: %w", j.ID, err)
		}
	}
	return &j, nil
}

func marshalHistory(h []model.HistoryEntry) ([]byte, error) {
	if h == nil {
		h = []model.HistoryEntry{}
	}
	return json.Marshal(h)
}

var _ JourneyRepositoryInterface = (*JourneyRepository)(nil)
