package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
)

// ContactRepositoryInterface defines methods used by services
type ContactRepositoryInterface interface {
	GetByID(ctx context.Context, workspaceID uuid.UUID, id int) (*model.Contact, error)
	GetByAddress(ctx context.Context, workspaceID uuid.UUID, address string) (*model.Contact, error)
	MarkContacted(ctx context.Context, id int, at time.Time, method model.Channel) error
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, workspace_id, email, phone, first_name, last_name, company, title, industry, last_contacted_at, last_contact_method`

func (r *ContactRepository) GetByID(ctx context.Context, workspaceID uuid.UUID, id int) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1 AND workspace_id=$2`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id, workspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewContactNotFound(id)
	}
	return c, err
}

// GetByAddress matches an email address (case-insensitively) or a phone
// number.
func (r *ContactRepository) GetByAddress(ctx context.Context, workspaceID uuid.UUID, address string) (*model.Contact, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, appErrors.NewContactNotFound(address)
	}
	query := `
        SELECT ` + contactColumns + `
        FROM contacts
        WHERE workspace_id=$1 AND (lower(email)=lower($2) OR phone=$2)
        ORDER BY id
        LIMIT 1
    `
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, workspaceID, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewContactNotFound(address)
	}
	return c, err
}

// MarkContacted records when and how the contact was last reached.
func (r *ContactRepository) MarkContacted(ctx context.Context, id int, at time.Time, method model.Channel) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE contacts SET last_contacted_at=$1, last_contact_method=$2 WHERE id=$3`,
		at, method, id)
	return err
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var (
		c         model.Contact
		contacted sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.Email, &c.Phone, &c.FirstName, &c.LastName,
		&c.Company, &c.Title, &c.Industry, &contacted, &c.LastContactMethod); err != nil {
		return nil, err
	}
	if contacted.Valid {
		c.LastContactedAt = &contacted.Time
	}
	return &c, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
