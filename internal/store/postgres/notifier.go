package postgres

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/notify"
)

// ChannelPrefix prefixes the per-owner notification channel.
const ChannelPrefix = "bookmarks:"

// Channel returns the LISTEN channel of an owner. It matches the trigger's
// 'bookmarks:' || md5(user_id), which keeps every channel name at 42 bytes
// whatever the owner's length.
func Channel(owner string) string {
	sum := md5.Sum([]byte(owner))
	return ChannelPrefix + hex.EncodeToString(sum[:])
}

// Subscribe takes a dedicated connection out of the pool and LISTENs on the
// owner's channel. The connection is closed when the stream ends; a broken
// connection ends the stream with an error.
func (s *Store) Subscribe(ctx context.Context, owner string) (domain.Subscription, error) {
	if s.pool == nil {
		return nil, errors.New("postgres notifier: no connection pool")
	}

	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	conn := pooled.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel(owner)}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen on %s: %w", Channel(owner), err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	stream := notify.NewStream(notify.DefaultBuffer, cancel)
	go s.listen(subCtx, conn, owner, stream)

	return stream, nil
}

func (s *Store) listen(ctx context.Context, conn *pgx.Conn, owner string, stream *notify.Stream) {
	defer func() { _ = conn.Close(context.Background()) }()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				stream.Finish(nil)
				return
			}
			s.logger.Warn("postgres listen connection lost",
				logger.String("owner", owner),
				logger.Error(err))
			stream.Finish(fmt.Errorf("postgres listen connection lost: %w", err))
			return
		}

		ev, err := domain.DecodeEvent([]byte(n.Payload))
		if err != nil {
			s.logger.Warn("dropping malformed notification",
				logger.String("channel", n.Channel),
				logger.Error(err))
			continue
		}
		if !stream.Send(ctx, ev) {
			stream.Finish(nil)
			return
		}
	}
}
