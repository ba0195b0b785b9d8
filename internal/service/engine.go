package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/dripline/internal/lock"
	"github.com/unclebandit/dripline/internal/metrics"
	"github.com/unclebandit/dripline/internal/repository"
	"github.com/unclebandit/dripline/internal/sender"
)

// Engine walks journeys through their campaign's steps and reacts to
// replies. It is safe to share between goroutines; per-journey exclusion is
// provided by Claimer.
type Engine struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	TaskRepo     repository.TaskRepositoryInterface
	JourneyRepo  repository.JourneyRepositoryInterface
	OutboundRepo repository.OutboundMessageRepositoryInterface

	Sender     sender.Sender
	Generator  Generator
	Classifier Classifier
	Templates  *TemplateService
	Claimer    lock.Claimer
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// Now defaults to time.Now in UTC.
	Now func() time.Time
	// CallTimeout bounds each send, generate and classify call. Zero means
	// no bound beyond the caller's context.
	CallTimeout time.Duration
	// BatchSize caps the journeys fetched per campaign per tick.
	BatchSize int
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Engine) claimer() lock.Claimer {
	if e.Claimer == nil {
		return lock.NopClaimer{}
	}
	return e.Claimer
}

func (e *Engine) batchSize() int {
	if e.BatchSize <= 0 {
		return 500
	}
	return e.BatchSize
}

// callContext derives the context for one external call.
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.CallTimeout)
}
