// internal/service/template_service.go
package service

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"

	"github.com/unclebandit/dripline/internal/model"
)

// Placeholder fallbacks for contacts with missing fields.
const (
	FallbackFirstName = "Friend"
	FallbackCompany   = "your company"
	FallbackTitle     = "Professional"
	FallbackIndustry  = "tech"
)

// TemplateService renders Liquid templates against a contact. Parsed
// templates are cached by source text.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func NewTemplateService() *TemplateService {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value any, defaultVal string) any {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &TemplateService{engine: engine}
}

// ContactBindings exposes contact fields to templates, substituting the
// fallbacks for empty values.
func ContactBindings(c *model.Contact) liquid.Bindings {
	return liquid.Bindings{
		"first_name": orDefault(c.FirstName, FallbackFirstName),
		"last_name":  c.LastName,
		"company":    orDefault(c.Company, FallbackCompany),
		"title":      orDefault(c.Title, FallbackTitle),
		"industry":   orDefault(c.Industry, FallbackIndustry),
		"email":      c.Email,
		"phone":      c.Phone,
	}
}

// Render renders src with the given bindings.
func (s *TemplateService) Render(src string, bindings liquid.Bindings) (string, error) {
	var tpl *liquid.Template
	if cached, ok := s.cache.Load(src); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := s.engine.ParseString(src)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		s.cache.Store(src, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// RenderForContact renders src against ContactBindings(c).
func (s *TemplateService) RenderForContact(src string, c *model.Contact) (string, error) {
	return s.Render(src, ContactBindings(c))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
