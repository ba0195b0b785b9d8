package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/dripline/internal/model"
)

type TaskRepositoryInterface interface {
	Create(ctx context.Context, t *model.Task) error
	ListByContact(ctx context.Context, workspaceID uuid.UUID, contactID int) ([]model.Task, error)
}

type TaskRepository struct {
	DB *sql.DB
}

func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	query := `
        INSERT INTO tasks (workspace_id, contact_id, journey_id, title, description, due_at, completed, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		t.WorkspaceID, t.ContactID, t.JourneyID, t.Title, t.Description, t.DueAt, t.Completed, t.CreatedAt,
	).Scan(&t.ID)
}

func (r *TaskRepository) ListByContact(ctx context.Context, workspaceID uuid.UUID, contactID int) ([]model.Task, error) {
	query := `
        SELECT id, workspace_id, contact_id, journey_id, title, description, due_at, completed, created_at
        FROM tasks
        WHERE workspace_id=$1 AND contact_id=$2
        ORDER BY due_at, id
    `
	rows, err := r.DB.QueryContext(ctx, query, workspaceID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var (
			t         model.Task
			journeyID sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.ContactID, &journeyID, &t.Title,
			&t.Description, &t.DueAt, &t.Completed, &t.CreatedAt); err != nil {
			return nil, err
		}
		if journeyID.Valid {
			id := int(journeyID.Int64)
			t.JourneyID = &id
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

var _ TaskRepositoryInterface = (*TaskRepository)(nil)
