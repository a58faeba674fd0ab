// Package audit consumes hook events and keeps per-mint counters in Redis.
package audit

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run is the audit loop: subscribe → record → ack. It returns when ctx is
// cancelled or the subscription closes.
func Run(ctx context.Context, sub message.Subscriber, topic string, rdb *redis.Client, log *zap.Logger) error {
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	log.Info("audit consumer started", zap.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			log.Info("audit consumer stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				log.Info("audit subscription closed")
				return nil
			}
			if err := Handle(ctx, rdb, msg.UUID, msg.Payload, log); err != nil {
				// Redis unavailable: let the transport redeliver.
				log.Error("audit: record event", zap.String("id", msg.UUID), zap.Error(err))
				msg.Nack()
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
				continue
			}
			msg.Ack()
		}
	}
}
