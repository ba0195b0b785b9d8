// Package sender delivers rendered outbound messages.
package sender

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/unclebandit/dripline/internal/config"
	"github.com/unclebandit/dripline/internal/model"
)

// Envelope is one message ready for delivery.
type Envelope struct {
	Channel    model.Channel
	To         string
	Subject    string
	Body       string
	CampaignID int
	JourneyID  int
}

type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// ErrNoRecipient is returned when the contact has no address for the
// campaign's channel.
var ErrNoRecipient = errors.New("contact has no address for channel")

// MockSender simulates delivery, failing at FailureRate.
type MockSender struct {
	FailureRate float64

	logger *zap.Logger
	mu     sync.Mutex
	rng    *rand.Rand
	sent   []Envelope
}

func NewMockSender(failureRate float64, seed int64, logger *zap.Logger) *MockSender {
	return &MockSender{
		FailureRate: failureRate,
		logger:      logger,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (m *MockSender) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if env.To == "" {
		return ErrNoRecipient
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailureRate > 0 && m.rng.Float64() < m.FailureRate {
		return fmt.Errorf("mock sending failed")
	}
	m.sent = append(m.sent, env)
	m.logger.Info("mock send",
		zap.String("channel", string(env.Channel)),
		zap.String("to", env.To),
		zap.String("subject", env.Subject),
		zap.Int("journey_id", env.JourneyID),
	)
	return nil
}

// Sent returns a copy of every envelope accepted so far.
func (m *MockSender) Sent() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.sent...)
}

// New picks the driver named in cfg.
func New(ctx context.Context, cfg config.SenderConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Driver {
	case "", "mock":
		return NewMockSender(cfg.FailureRate, rand.Int63(), logger), nil
	case "ses":
		return NewSESSender(ctx, cfg.Region, cfg.From, logger)
	}
	return nil, fmt.Errorf("unknown sender driver %q", cfg.Driver)
}
