package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/MrSnakeDoc/shelf/internal/setup"
	"github.com/MrSnakeDoc/shelf/internal/store/postgres/migrations"
)

const (
	tableExistsSQL = `SELECT to_regclass('public.bookmarks') IS NOT NULL`
	rlsSQL         = `SELECT relrowsecurity, relforcerowsecurity FROM pg_class WHERE oid = 'public.bookmarks'::regclass`
	policiesSQL    = `SELECT cmd FROM pg_policies WHERE schemaname = 'public' AND tablename = 'bookmarks'`
	triggerSQL     = `SELECT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'bookmarks_notify' AND tgrelid = 'public.bookmarks'::regclass AND NOT tgisinternal)`
	channelSQL     = `SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = 'bookmarks_notify' AND prosrc LIKE '%md5(%')`
)

var requiredPolicies = []string{"SELECT", "INSERT", "UPDATE", "DELETE"}

const remedyMigrate = "run `shelfctl migrate` (or `shelfctl setup --init`)"

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// InitSchema applies the migrations; setup --init calls it.
func (s *Store) InitSchema(ctx context.Context) error {
	return s.Migrate(ctx)
}

// CheckSchema verifies the table, forced row-level security, its policies
// and the change trigger. Later checks are skipped when the table is missing.
func (s *Store) CheckSchema(ctx context.Context) []setup.Check {
	var checks []setup.Check

	if err := s.db.PingContext(ctx); err != nil {
		return append(checks, setup.Check{
			Name:   "postgres reachable",
			Detail: err.Error(),
			Remedy: "check SHELF_POSTGRES_DSN",
		})
	}
	checks = append(checks, setup.Check{Name: "postgres reachable", OK: true})

	var exists bool
	if err := s.db.QueryRowContext(ctx, tableExistsSQL).Scan(&exists); err != nil || !exists {
		detail := "missing"
		if err != nil {
			detail = err.Error()
		}
		return append(checks, setup.Check{Name: "table bookmarks", Detail: detail, Remedy: remedyMigrate})
	}
	checks = append(checks, setup.Check{Name: "table bookmarks", OK: true})

	checks = append(checks, s.checkRLS(ctx), s.checkPolicies(ctx), s.checkTrigger(ctx))
	return checks
}

func (s *Store) checkRLS(ctx context.Context) setup.Check {
	c := setup.Check{Name: "row level security"}
	var enabled, forced bool
	if err := s.db.QueryRowContext(ctx, rlsSQL).Scan(&enabled, &forced); err != nil {
		c.Detail = err.Error()
		return c
	}
	switch {
	case !enabled:
		c.Detail = "disabled"
		c.Remedy = "ALTER TABLE bookmarks ENABLE ROW LEVEL SECURITY; ALTER TABLE bookmarks FORCE ROW LEVEL SECURITY;"
	case !forced:
		c.Detail = "enabled but not forced for the table owner"
		c.Remedy = "ALTER TABLE bookmarks FORCE ROW LEVEL SECURITY;"
	default:
		c.OK = true
	}
	return c
}

func (s *Store) checkPolicies(ctx context.Context) setup.Check {
	c := setup.Check{Name: "owner policies"}
	rows, err := s.db.QueryContext(ctx, policiesSQL)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	defer rows.Close()

	have := map[string]bool{}
	for rows.Next() {
		var cmd string
		if err := rows.Scan(&cmd); err != nil {
			c.Detail = err.Error()
			return c
		}
		have[cmd] = true
	}
	if err := rows.Err(); err != nil {
		c.Detail = err.Error()
		return c
	}

	var missing []string
	for _, cmd := range requiredPolicies {
		if !have[cmd] && !have["ALL"] {
			missing = append(missing, cmd)
		}
	}
	if len(missing) > 0 {
		c.Detail = "missing " + strings.Join(missing, ", ")
		c.Remedy = remedyMigrate
		return c
	}
	c.OK = true
	return c
}

func (s *Store) checkTrigger(ctx context.Context) setup.Check {
	c := setup.Check{Name: "change trigger"}
	var exists bool
	if err := s.db.QueryRowContext(ctx, triggerSQL).Scan(&exists); err != nil {
		c.Detail = err.Error()
		return c
	}
	if !exists {
		c.Detail = "bookmarks_notify missing"
		c.Remedy = remedyMigrate
		return c
	}

	var hashed bool
	if err := s.db.QueryRowContext(ctx, channelSQL).Scan(&hashed); err != nil {
		c.Detail = err.Error()
		return c
	}
	if !hashed {
		c.Detail = "bookmarks_notify publishes on unhashed channels"
		c.Remedy = remedyMigrate
		return c
	}
	c.OK = true
	return c
}
