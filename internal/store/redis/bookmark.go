package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// Insert stores a new bookmark with a fresh ID and creation time, and
// publishes the insert on the owner's channel.
func (s *Store) Insert(ctx context.Context, draft domain.Draft) (domain.Bookmark, error) {
	if err := draft.Validate(); err != nil {
		return domain.Bookmark{}, domain.Persistence("insert", err)
	}

	bookmark := domain.Bookmark{
		ID:        s.newID(),
		Owner:     draft.Owner,
		Title:     draft.Title,
		Target:    draft.Target,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	data, err := json.Marshal(bookmark)
	if err != nil {
		return domain.Bookmark{}, domain.Persistence("insert", fmt.Errorf("failed to marshal bookmark: %w", err))
	}
	payload, err := domain.EncodeEvent(domain.InsertEvent{Record: bookmark})
	if err != nil {
		return domain.Bookmark{}, domain.Persistence("insert", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookmarkKey(bookmark.ID), data, 0)
		pipe.ZAdd(ctx, OwnerKey(bookmark.Owner), redis.Z{Score: score(bookmark.CreatedAt), Member: bookmark.ID})
		pipe.Publish(ctx, ChangesChannel(bookmark.Owner), payload)
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, domain.Persistence("insert", fmt.Errorf("failed to save bookmark: %w", err))
	}

	return bookmark, nil
}

// List returns the owner's bookmarks, most recent first.
func (s *Store) List(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	ids, err := s.client.ZRevRange(ctx, OwnerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, domain.Persistence("list", fmt.Errorf("failed to get bookmark IDs: %w", err))
	}
	if len(ids) == 0 {
		return []domain.Bookmark{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = BookmarkKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.Persistence("list", fmt.Errorf("failed to get bookmarks: %w", err))
	}

	bookmarks := make([]domain.Bookmark, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record: skip it
			s.logger.Debug("dangling bookmark index entry",
				logger.String("owner", owner),
				logger.String("id", ids[i]))
			continue
		}
		var bookmark domain.Bookmark
		if err := json.Unmarshal([]byte(raw), &bookmark); err != nil {
			return nil, domain.Persistence("list", fmt.Errorf("failed to unmarshal bookmark %s: %w", ids[i], err))
		}
		if bookmark.Owner != owner {
			continue
		}
		bookmarks = append(bookmarks, bookmark)
	}

	return bookmarks, nil
}

// Delete removes an owned bookmark and publishes the delete. Absent or
// foreign IDs fail with domain.ErrNotFound; a concurrent change of the same
// record fails with redis.TxFailedErr and is not retried.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	key := BookmarkKey(id)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		if _, err := s.owned(ctx, tx, owner, id); err != nil {
			return err
		}

		payload, err := domain.EncodeEvent(domain.DeleteEvent{ID: id, Owner: owner})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, OwnerKey(owner), id)
			pipe.Publish(ctx, ChangesChannel(owner), payload)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return domain.Persistence("delete", err)
	}
	return nil
}

// Update changes title and target of an owned bookmark in place and
// publishes the update. created_at and the ordering index are untouched.
func (s *Store) Update(ctx context.Context, owner, id, title, target string) (domain.Bookmark, error) {
	draft, err := domain.NewDraft(owner, title, target)
	if err != nil {
		return domain.Bookmark{}, err
	}
	key := BookmarkKey(id)

	var updated domain.Bookmark
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.owned(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		current.Title, current.Target = draft.Title, draft.Target

		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("failed to marshal bookmark: %w", err)
		}
		payload, err := domain.EncodeEvent(domain.UpdateEvent{Record: current})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Publish(ctx, ChangesChannel(owner), payload)
			return nil
		})
		if err == nil {
			updated = current
		}
		return err
	}, key)
	if err != nil {
		return domain.Bookmark{}, domain.Persistence("update", err)
	}
	return updated, nil
}

// owned loads a record inside a WATCH and checks it belongs to owner.
func (s *Store) owned(ctx context.Context, tx *redis.Tx, owner, id string) (domain.Bookmark, error) {
	data, err := tx.Get(ctx, BookmarkKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Bookmark{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to get bookmark: %w", err)
	}

	var bookmark domain.Bookmark
	if err := json.Unmarshal(data, &bookmark); err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to unmarshal bookmark: %w", err)
	}
	if bookmark.Owner != owner {
		return domain.Bookmark{}, domain.ErrNotFound
	}
	return bookmark, nil
}
