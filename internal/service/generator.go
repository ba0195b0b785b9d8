package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/dripline/internal/model"
)

// Content is a generated message.
type Content struct {
	Subject string
	Body    string
}

// Generator turns a free-text instruction into message content for one
// contact.
type Generator interface {
	Generate(ctx context.Context, contact *model.Contact, instruction string) (Content, error)
}

// InstructionGenerator fills the instruction's placeholders from the contact
// and appends an industry context line. It stands in for a language-model
// backed generator.
type InstructionGenerator struct {
	Templates *TemplateService
}

func (g *InstructionGenerator) Generate(ctx context.Context, contact *model.Contact, instruction string) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	bindings := ContactBindings(contact)

	body, err := g.Templates.Render(instruction, bindings)
	if err != nil {
		return Content{}, err
	}
	body += fmt.Sprintf("\n\n(AI Context: I noticed %s is in %s sector.)", bindings["company"], bindings["industry"])

	return Content{
		Subject: fmt.Sprintf("Question regarding %s", bindings["company"]),
		Body:    body,
	}, nil
}

var _ Generator = (*InstructionGenerator)(nil)
