// Package app wires configuration into a running engine: database,
// optional Redis claims, sender, reply queue, repositories and services.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/dripline/internal/config"
	"github.com/unclebandit/dripline/internal/db"
	"github.com/unclebandit/dripline/internal/lock"
	"github.com/unclebandit/dripline/internal/metrics"
	"github.com/unclebandit/dripline/internal/queue"
	"github.com/unclebandit/dripline/internal/repository"
	"github.com/unclebandit/dripline/internal/sender"
	"github.com/unclebandit/dripline/internal/service"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Redis    *redis.Client
	Queue    queue.Queue
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Engine    *service.Engine
	Campaigns *service.CampaignService
}

// New opens every backing service named in cfg. The caller must Close the
// returned App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, DB: conn}

	var claimer lock.Claimer = lock.NopClaimer{}
	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		claimer = lock.NewRedisClaimer(a.Redis, cfg.Worker.ClaimTTL)
		logger.Info("journey claims backed by redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("redis not configured, overlapping ticks may repeat steps")
	}

	snd, err := sender.New(ctx, cfg.Sender, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.AMQP.URL != "" {
		q, err := queue.DialAMQP(cfg.AMQP.URL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
	} else {
		a.Queue = queue.NewInMemoryQueue(logger)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.wire(repositories(conn), snd, claimer)
	return a, nil
}

type repos struct {
	campaigns repository.CampaignRepositoryInterface
	contacts  repository.ContactRepositoryInterface
	templates repository.TemplateRepositoryInterface
	tasks     repository.TaskRepositoryInterface
	journeys  repository.JourneyRepositoryInterface
	outbound  repository.OutboundMessageRepositoryInterface
}

func repositories(conn *sql.DB) repos {
	return repos{
		campaigns: &repository.CampaignRepository{DB: conn},
		contacts:  &repository.ContactRepository{DB: conn},
		templates: &repository.TemplateRepository{DB: conn},
		tasks:     &repository.TaskRepository{DB: conn},
		journeys:  &repository.JourneyRepository{DB: conn},
		outbound:  &repository.OutboundMessageRepository{DB: conn},
	}
}

func (a *App) wire(r repos, snd sender.Sender, claimer lock.Claimer) {
	templates := service.NewTemplateService()
	a.Engine = &service.Engine{
		CampaignRepo: r.campaigns,
		ContactRepo:  r.contacts,
		TemplateRepo: r.templates,
		TaskRepo:     r.tasks,
		JourneyRepo:  r.journeys,
		OutboundRepo: r.outbound,
		Sender:       snd,
		Generator:    &service.InstructionGenerator{Templates: templates},
		Classifier:   service.NewKeywordClassifier(),
		Templates:    templates,
		Claimer:      claimer,
		Metrics:      a.Metrics,
		Logger:       a.Logger.Named("engine"),
		CallTimeout:  a.Config.Worker.CallTimeout,
		BatchSize:    a.Config.Worker.BatchSize,
	}
	a.Campaigns = &service.CampaignService{
		CampaignRepo: r.campaigns,
		ContactRepo:  r.contacts,
		TemplateRepo: r.templates,
		JourneyRepo:  r.journeys,
		OutboundRepo: r.outbound,
		Logger:       a.Logger.Named("campaigns"),
	}
}

// Close releases everything New opened. It is safe on a partially built
// App.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
