package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(ctx context.Context, workspaceID uuid.UUID, id int) (*model.MessageTemplate, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(ctx context.Context, workspaceID uuid.UUID, id int) (*model.MessageTemplate, error) {
	query := `SELECT id, workspace_id, name, subject, body FROM message_templates WHERE id=$1 AND workspace_id=$2`
	var t model.MessageTemplate
	err := r.DB.QueryRowContext(ctx, query, id, workspaceID).Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Subject, &t.Body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
