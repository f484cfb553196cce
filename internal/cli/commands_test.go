package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/backend"
	"github.com/MrSnakeDoc/shelf/internal/config"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// sharedMemory returns options whose every command sees the same in-memory backend.
func sharedMemory(t *testing.T) *RootOptions {
	t.Helper()
	h, err := backend.Open(context.Background(), config.Backend{Kind: config.BackendMemory}, logger.Nop())
	require.NoError(t, err)
	return &RootOptions{OpenBackend: func(context.Context, logger.Logger) (*backend.Handle, error) {
		return h, nil
	}}
}

func redisOptions(t *testing.T) *RootOptions {
	t.Helper()
	mr := miniredis.RunT(t)
	b := config.Backend{
		Kind:                config.BackendRedis,
		RedisAddr:           mr.Addr(),
		RedisDT:             time.Second,
		RedisRT:             time.Second,
		RedisWT:             time.Second,
		RedisConnectTimeout: time.Second,
		RedisRetryInterval:  10 * time.Millisecond,
		RedisMaxWait:        50 * time.Millisecond,
		RedisPingTimeout:    100 * time.Millisecond,
	}
	return &RootOptions{OpenBackend: func(ctx context.Context, log logger.Logger) (*backend.Handle, error) {
		return backend.Open(ctx, b, log)
	}}
}

func TestSetupMemoryFromEnv(t *testing.T) {
	t.Setenv("SHELF_BACKEND", "memory")

	out, err := run(t, nil, "setup")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: memory")
	assert.Contains(t, out, "[ok  ] in-memory store")
}

func TestSetupFailsWithRemediation(t *testing.T) {
	opts := redisOptions(t)

	out, err := run(t, opts, "setup")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "remediation:")

	out, err = run(t, opts, "setup", "--init")
	require.NoError(t, err)
	assert.NotContains(t, out, "FAIL")
}

func TestSetupJSON(t *testing.T) {
	out, err := run(t, sharedMemory(t), "--format", "json", "setup")
	require.NoError(t, err)

	var res setupResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.OK)
	assert.Equal(t, "memory", res.Backend)
}

func TestMigrateWithoutMigrations(t *testing.T) {
	out, err := run(t, sharedMemory(t), "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "has no migrations")
}

func TestAudit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.txt"), []byte("hello\n"), 0o644))

	out, err := run(t, nil, "audit", "--staged=false", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "no credentials found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SHELF_JWT_SECRET=Kx9vQ2mT7pLw4ZrY8nB3\n"), 0o644))
	out, err = run(t, nil, "audit", "--staged=false", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, out, "secret-assignment")
	assert.NotContains(t, out, "Kx9vQ2mT7pLw4ZrY8nB3")
}

func TestAuditMissingPath(t *testing.T) {
	_, err := run(t, nil, "audit", "--staged=false", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

const bookmarksYAML = `---
- Developer:
    - Github:
        - href: https://github.com/
    - Go:
        - href: https://go.dev/
`

func TestImportThenWatch(t *testing.T) {
	opts := sharedMemory(t)
	file := filepath.Join(t.TempDir(), "bookmarks.yaml")
	require.NoError(t, os.WriteFile(file, []byte(bookmarksYAML), 0o644))

	out, err := run(t, opts, "import", "--owner", "u1", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2, already present 0, skipped 0")

	out, err = run(t, opts, "import", "--owner", "u1", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0, already present 2")

	out, err = run(t, opts, "watch", "--owner", "u1", "--for", "200ms")
	require.NoError(t, err)
	assert.Contains(t, out, "2 bookmark(s)")
	assert.Contains(t, out, "https://go.dev/")
}

func TestImportRequiresOwner(t *testing.T) {
	_, err := run(t, sharedMemory(t), "import", "--file", "x.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestImportMissingFile(t *testing.T) {
	_, err := run(t, sharedMemory(t), "import", "--owner", "u1", "--file", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestToken(t *testing.T) {
	t.Setenv("SHELF_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("SHELF_JWT_ISSUER", "")

	out, err := run(t, nil, "--format", "json", "token", "--owner", "u1", "--ttl", "5m")
	require.NoError(t, err)

	var res tokenResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	v, err := auth.NewVerifier([]byte("0123456789abcdef0123456789abcdef"), "", 0)
	require.NoError(t, err)
	id, err := v.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.Owner)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), id.ExpiresAt, 5*time.Second)
}

func TestTokenWithoutSecret(t *testing.T) {
	t.Setenv("SHELF_JWT_SECRET", "")

	_, err := run(t, nil, "token", "--owner", "u1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.True(t, strings.Contains(err.Error(), "SHELF_JWT_SECRET"))
}

func TestEdit(t *testing.T) {
	opts := sharedMemory(t)
	file := filepath.Join(t.TempDir(), "bookmarks.yaml")
	require.NoError(t, os.WriteFile(file, []byte(bookmarksYAML), 0o644))
	_, err := run(t, opts, "import", "--owner", "u1", "--file", file)
	require.NoError(t, err)

	h, err := opts.OpenBackend(context.Background(), logger.Nop())
	require.NoError(t, err)
	list, err := h.Store.List(context.Background(), "u1")
	require.NoError(t, err)
	require.NotEmpty(t, list)
	id := list[0].ID

	out, err := run(t, opts, "edit", id, "--owner", "u1", "--title", "Renamed")
	require.NoError(t, err)
	assert.Contains(t, out, "updated "+id+": Renamed")

	list, err = h.Store.List(context.Background(), "u1")
	require.NoError(t, err)
	titles := map[string]string{}
	for _, b := range list {
		titles[b.ID] = b.Title
	}
	assert.Equal(t, "Renamed", titles[id])

	_, err = run(t, opts, "edit", id, "--owner", "u2", "--title", "Stolen")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	_, err = run(t, opts, "edit", id, "--owner", "u1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}
