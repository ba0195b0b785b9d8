package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/dripline/internal/app"
	"github.com/unclebandit/dripline/internal/config"
	"github.com/unclebandit/dripline/internal/logging"
	"github.com/unclebandit/dripline/internal/queue"
	"github.com/unclebandit/dripline/internal/service"
)

func main() {
	configPath := flag.String("config", os.Getenv("DRIPLINE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	if err := run(ctx, a, cfg, logger); err != nil {
		logger.Error("worker exited", zap.Error(err))
		return
	}
	logger.Info("worker exited")
}

func run(ctx context.Context, a *app.App, cfg *config.Config, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	w := service.NewWorker(a.Engine, cfg.Worker.TickInterval, logger.Named("worker"))
	g.Go(func() error { return w.Run(gctx) })

	if err := queue.StartReplySubscriber(gctx, a.Queue, a.Engine, logger.Named("replies")); err != nil {
		return err
	}

	if amqpQueue, ok := a.Queue.(*queue.AMQPQueue); ok {
		g.Go(func() error {
			select {
			case err, open := <-amqpQueue.NotifyClose():
				if open && err != nil {
					return err
				}
			case <-gctx.Done():
			}
			return nil
		})
	}

	return g.Wait()
}
