package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/notify"
)

// Subscribe opens a change stream on the owner's channel.
//
// go-redis reconnects a PubSub transparently, which would hide missed
// messages. Any receive error therefore ends the stream with that error so
// the consumer resubscribes and reloads.
func (s *Store) Subscribe(ctx context.Context, owner string) (domain.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, ChangesChannel(owner))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ChangesChannel(owner), err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	stream := notify.NewStream(notify.DefaultBuffer, cancel)
	go s.pump(subCtx, pubsub, owner, stream)

	return stream, nil
}

func (s *Store) pump(ctx context.Context, pubsub *redis.PubSub, owner string, stream *notify.Stream) {
	// Closing the PubSub is what interrupts a blocked ReceiveMessage.
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer func() {
		stop()
		_ = pubsub.Close()
	}()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				stream.Finish(nil)
				return
			}
			s.logger.Warn("redis subscription lost",
				logger.String("owner", owner),
				logger.Error(err))
			stream.Finish(fmt.Errorf("redis subscription lost: %w", err))
			return
		}

		ev, err := domain.DecodeEvent([]byte(msg.Payload))
		if err != nil {
			s.logger.Warn("dropping malformed change event",
				logger.String("channel", msg.Channel),
				logger.Error(err))
			continue
		}
		if !stream.Send(ctx, ev) {
			stream.Finish(nil)
			return
		}
	}
}
