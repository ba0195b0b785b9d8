package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/dripline/internal/model"
)

type OutboundMessageRepositoryInterface interface {
	Create(ctx context.Context, msg *model.OutboundMessage) error
	ListByJourney(ctx context.Context, journeyID int) ([]model.OutboundMessage, error)
	CountByStatus(ctx context.Context, campaignID int) (map[string]int, error)
}

type OutboundMessageRepository struct {
	DB *sql.DB
}

// Create inserts an audit row for one send attempt and sets its ID
func (r *OutboundMessageRepository) Create(ctx context.Context, msg *model.OutboundMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
        INSERT INTO outbound_messages
        (journey_id, campaign_id, contact_id, step_id, channel, recipient, subject, status, rendered_content, last_error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		msg.JourneyID,
		msg.CampaignID,
		msg.ContactID,
		msg.StepID,
		msg.Channel,
		msg.Recipient,
		msg.Subject,
		msg.Status,
		msg.RenderedContent,
		msg.LastError,
		msg.CreatedAt,
	).Scan(&msg.ID)
}

// ListByJourney returns every attempt for a journey, oldest first
func (r *OutboundMessageRepository) ListByJourney(ctx context.Context, journeyID int) ([]model.OutboundMessage, error) {
	query := `
        SELECT id, journey_id, campaign_id, contact_id, step_id, channel, recipient, subject, status, rendered_content, last_error, created_at
        FROM outbound_messages
        WHERE journey_id=$1
        ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []model.OutboundMessage{}
	for rows.Next() {
		var msg model.OutboundMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.JourneyID,
			&msg.CampaignID,
			&msg.ContactID,
			&msg.StepID,
			&msg.Channel,
			&msg.Recipient,
			&msg.Subject,
			&msg.Status,
			&msg.RenderedContent,
			&msg.LastError,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CountByStatus groups a campaign's send attempts by outcome
func (r *OutboundMessageRepository) CountByStatus(ctx context.Context, campaignID int) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM outbound_messages WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{model.OutboundSent: 0, model.OutboundFailed: 0}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ OutboundMessageRepositoryInterface = (*OutboundMessageRepository)(nil)
