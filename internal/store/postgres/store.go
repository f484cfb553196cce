// Package postgres implements the gateway and notifier on PostgreSQL.
//
// Owner isolation is enforced by the database: the bookmarks table has
// forced row-level security keyed on the transaction-local setting
// shelf.owner, which every call sets before touching a row. Change events
// come from a trigger calling pg_notify on the channel
// "bookmarks:<md5 of owner>" (see Channel).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

const (
	setOwnerSQL = `SELECT set_config('shelf.owner', $1, true)`

	insertSQL = `INSERT INTO bookmarks (user_id, title, url) VALUES ($1, $2, $3)
RETURNING id::text, user_id, title, url, created_at`

	listSQL = `SELECT id::text, user_id, title, url, created_at FROM bookmarks
WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	deleteSQL = `DELETE FROM bookmarks WHERE id = $1 AND user_id = $2`

	updateSQL = `UPDATE bookmarks SET title = $3, url = $4 WHERE id = $1 AND user_id = $2
RETURNING id::text, user_id, title, url, created_at`
)

// Store is the Postgres gateway. Queries go through database/sql on top of
// the pgx pool; the notifier takes raw connections from the pool itself.
type Store struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewStore creates a store. pool may be nil when only the gateway is used.
func NewStore(db *sql.DB, pool *pgxpool.Pool, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, pool: pool, logger: log}
}

// withOwner runs fn in a transaction whose row-level security is scoped to owner.
func (s *Store) withOwner(ctx context.Context, owner string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	if _, err = tx.ExecContext(ctx, setOwnerSQL, owner); err != nil {
		return fmt.Errorf("failed to scope transaction: %w", err)
	}
	return fn(tx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row scanner) (domain.Bookmark, error) {
	var b domain.Bookmark
	if err := row.Scan(&b.ID, &b.Owner, &b.Title, &b.Target, &b.CreatedAt); err != nil {
		return domain.Bookmark{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// Insert stores draft; the database assigns id and created_at.
func (s *Store) Insert(ctx context.Context, draft domain.Draft) (domain.Bookmark, error) {
	if err := draft.Validate(); err != nil {
		return domain.Bookmark{}, domain.Persistence("insert", err)
	}

	var b domain.Bookmark
	err := s.withOwner(ctx, draft.Owner, func(tx *sql.Tx) error {
		var err error
		b, err = scanBookmark(tx.QueryRowContext(ctx, insertSQL, draft.Owner, draft.Title, draft.Target))
		return err
	})
	if err != nil {
		return domain.Bookmark{}, domain.Persistence("insert", err)
	}
	return b, nil
}

// List returns the owner's bookmarks, most recent first.
func (s *Store) List(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	bookmarks := []domain.Bookmark{}
	err := s.withOwner(ctx, owner, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, listSQL, owner)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			b, err := scanBookmark(rows)
			if err != nil {
				return err
			}
			bookmarks = append(bookmarks, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, domain.Persistence("list", err)
	}
	return bookmarks, nil
}

// Delete removes an owned bookmark. Zero affected rows, whether the id is
// absent or hidden by row-level security, is domain.ErrNotFound.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Persistence("delete", domain.ErrNotFound)
	}

	err := s.withOwner(ctx, owner, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, deleteSQL, id, owner)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.Persistence("delete", err)
	}
	return nil
}

// Update edits title and target of an owned bookmark in place.
func (s *Store) Update(ctx context.Context, owner, id, title, target string) (domain.Bookmark, error) {
	draft, err := domain.NewDraft(owner, title, target)
	if err != nil {
		return domain.Bookmark{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.Bookmark{}, domain.Persistence("update", domain.ErrNotFound)
	}

	var b domain.Bookmark
	err = s.withOwner(ctx, owner, func(tx *sql.Tx) error {
		var err error
		b, err = scanBookmark(tx.QueryRowContext(ctx, updateSQL, id, owner, draft.Title, draft.Target))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	})
	if err != nil {
		return domain.Bookmark{}, domain.Persistence("update", err)
	}
	return b, nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
