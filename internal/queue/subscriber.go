package queue

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/model"
)

// ReplyHandler is the consumer side of TopicInboundReplies.
type ReplyHandler interface {
	HandleReply(ctx context.Context, reply model.InboundReply) (bool, error)
}

// StartReplySubscriber routes queued inbound replies to h. Malformed events
// and replies that match no contact or journey are acknowledged and logged;
// any other failure is returned so the queue retries it.
func StartReplySubscriber(ctx context.Context, q Queue, h ReplyHandler, logger *zap.Logger) error {
	return q.Subscribe(ctx, TopicInboundReplies, func(ctx context.Context, body []byte) error {
		var reply model.InboundReply
		if err := json.Unmarshal(body, &reply); err != nil {
			logger.Warn("invalid reply payload", zap.Error(err))
			return nil
		}
		log := logger.With(zap.String("workspace_id", reply.WorkspaceID.String()), zap.String("address", reply.Address))

		processed, err := h.HandleReply(ctx, reply)
		if errors.Is(err, appErrors.ErrNotFound) {
			log.Info("reply ignored", zap.Error(err))
			return nil
		}
		if err != nil {
			log.Error("reply handling failed", zap.Error(err))
			return err
		}
		log.Info("reply processed", zap.Bool("processed", processed))
		return nil
	})
}
