// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrTransientSend        = errors.New("transient send failure")
	ErrCampaignHasNoSteps   = errors.New("campaign has no steps")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidStep          = errors.New("invalid step")
)

// NotFoundError is returned when a campaign, contact, step, template or
// journey does not exist in the caller's workspace.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ErrCampaignNotFound is kept as its own type so callers can pull the
// campaign ID out with errors.As.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func (e *ErrCampaignNotFound) Is(target error) bool {
	return target == ErrNotFound
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

func NewContactNotFound(id any) error {
	return &NotFoundError{Entity: "contact", ID: id}
}

func NewStepNotFound(id int) error {
	return &NotFoundError{Entity: "step", ID: id}
}

func NewJourneyNotFound(id any) error {
	return &NotFoundError{Entity: "journey", ID: id}
}

func NewTemplateNotFound(id int) error {
	return &NotFoundError{Entity: "template", ID: id}
}

// InvalidConfigurationError describes a configuration value that could not
// be evaluated.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

func NewInvalidConfiguration(field, reason string) error {
	return &InvalidConfigurationError{Field: field, Reason: reason}
}

// TransientSendError wraps a transport failure for one journey. The journey
// is left untouched so the next tick retries it.
type TransientSendError struct {
	JourneyID int
	Err       error
}

func (e *TransientSendError) Error() string {
	return fmt.Sprintf("send failed for journey %d: %v", e.JourneyID, e.Err)
}

func (e *TransientSendError) Unwrap() error { return e.Err }

func (e *TransientSendError) Is(target error) bool {
	return target == ErrTransientSend
}

func NewTransientSend(journeyID int, err error) error {
	return &TransientSendError{JourneyID: journeyID, Err: err}
}
