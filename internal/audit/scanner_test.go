package audit

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Built by concatenation so this file does not trip the scanner itself.
var (
	fakeJWT    = "eyJhbGciOiJIUzI1NiJ9" + "." + "eyJzdWIiOiJ1c2VyLTEifQ" + "." + "c2lnbmF0dXJlLXNpZ25hdHVyZQ"
	fakePEM    = "-----BEGIN " + "RSA PRIVATE KEY-----"
	fakeAWSKey = "AKIA" + "Z7Q2MVXW4KTY3PLB"
)

func TestScanReader(t *testing.T) {
	tests := []struct {
		name string
		line string
		rule string
	}{
		{"jwt", "anon_key: " + fakeJWT, "jwt"},
		{"pem", fakePEM, "private-key"},
		{"aws", "aws_access_key_id = " + fakeAWSKey, "aws-access-key"},
		{"dsn password", "SHELF_POSTGRES_DSN=postgres://shelf:s3cr3tPassw0rd@db:5432/shelf", "postgres-password"},
		{"env assignment", "SHELF_JWT_SECRET=Kx9vQ2mT7pLw4ZrY8nB3", "secret-assignment"},
		{"yaml assignment", `service_role_key: "Qm8Ty2Lp9Vx4Wz7Rk3Nb"`, "secret-assignment"},
	}

	s := NewScanner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := s.ScanReader("f.env", strings.NewReader("first\n"+tt.line+"\n"))
			require.NoError(t, err)
			require.NotEmpty(t, findings)

			var rules []string
			for _, f := range findings {
				rules = append(rules, f.Rule)
				assert.Equal(t, 2, f.Line)
			}
			assert.Contains(t, rules, tt.rule)
		})
	}
}

func TestScanReaderIgnoresCleanLines(t *testing.T) {
	lines := []string{
		`secret := os.Getenv("SHELF_JWT_SECRET")`,
		`token = strings.TrimSpace(req.AccessToken)`,
		`SHELF_JWT_SECRET=changeme-in-production`,
		`SHELF_JWT_SECRET=${JWT_SECRET}`,
		`SHELF_POSTGRES_DSN=postgres://shelf@localhost:5432/shelf`,
		`SHELF_JWT_SECRET=Kx9vQ2mT7pLw4ZrY8nB3 # ` + AllowMarker,
	}

	findings, err := NewScanner().ScanReader("main.go", strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "****", redact("abcd"))
	assert.Equal(t, "Kx9v****nB", redact("Kx9vQ2mT7pLw4ZrY8nB"))
}

func TestScanPaths(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	write("config/.env", "SHELF_JWT_SECRET=Kx9vQ2mT7pLw4ZrY8nB3\n")
	write("README.md", "nothing to see\n")
	write("node_modules/pkg/index.js", "const t = '"+fakeJWT+"'\n")
	write("bin/blob", "\x00\x01"+fakePEM)

	findings, err := NewScanner().ScanPaths(dir)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, filepath.Join(dir, "config/.env"), findings[0].Path)
	assert.Equal(t, "secret-assignment", findings[0].Rule)
}

func TestScanPathsMissing(t *testing.T) {
	_, err := NewScanner().ScanPaths(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestScanStaged(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_SYSTEM=/dev/null")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "clean.txt"), []byte("hello\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leak.env"), []byte("token: "+fakeJWT+"\n"), 0o644))
	// Unstaged files are not part of the staging area scan.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "later.env"), []byte(fakePEM+"\n"), 0o644))
	run("add", "clean.txt", "leak.env")

	findings, err := NewScanner().ScanStaged(context.Background(), dir)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	for _, f := range findings {
		assert.Equal(t, "leak.env", f.Path)
		assert.True(t, f.Staged)
	}
	assert.Contains(t, findings[0].String(), "staged:leak.env:1:")
}

func TestScanStagedOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", os.TempDir())
	_, err := NewScanner().ScanStaged(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}
