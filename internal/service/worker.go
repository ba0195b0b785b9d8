package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Processor is what the worker ticks.
type Processor interface {
	ProcessAll(ctx context.Context) (ProcessResult, error)
}

// Worker calls ProcessAll once immediately and then on every interval until
// its context is cancelled. Ticks never overlap within one worker.
type Worker struct {
	Processor Processor
	Interval  time.Duration
	Logger    *zap.Logger

	// OnTick, when set, observes each finished tick.
	OnTick func(ProcessResult, error)
}

// Constructor
func NewWorker(p Processor, interval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		Processor: p,
		Interval:  interval,
		Logger:    logger,
	}
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// Run blocks until ctx is done and then returns nil.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.logger().Info("worker started", zap.Duration("interval", w.Interval))
	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			w.logger().Info("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	res, err := w.Processor.ProcessAll(ctx)
	if err != nil {
		w.logger().Error("tick failed", zap.Error(err))
	} else {
		w.logger().Info("tick finished",
			zap.Int("processed", res.Processed),
			zap.Int("messages_sent", res.MessagesSent),
			zap.Int("steps_advanced", res.StepsAdvanced),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Duration("took", time.Since(start)),
		)
	}
	if w.OnTick != nil {
		w.OnTick(res, err)
	}
}
