// Package audit scans files and the git staging area for committed
// credentials.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// AllowMarker on a line suppresses findings on it.
const AllowMarker = "shelf:allow-secret"

// DefaultMaxFileSize skips files larger than this.
const DefaultMaxFileSize = 1 << 20

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"testdata":     true,
}

// Finding is one suspected credential.
type Finding struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Rule   string `json:"rule"`
	Match  string `json:"match"`
	Staged bool   `json:"staged,omitempty"`
}

func (f Finding) String() string {
	where := f.Path
	if f.Staged {
		where = "staged:" + f.Path
	}
	return fmt.Sprintf("%s:%d: %s (%s)", where, f.Line, f.Rule, f.Match)
}

// Scanner matches content against a rule set.
type Scanner struct {
	Rules       []Rule
	MaxFileSize int64
	// Git is the git binary used for the staging area scan.
	Git string
}

// NewScanner returns a scanner with the default rules.
func NewScanner() *Scanner {
	return &Scanner{Rules: DefaultRules, MaxFileSize: DefaultMaxFileSize, Git: "git"}
}

// ScanReader scans r line by line. path is only used for reporting.
func (s *Scanner) ScanReader(path string, r io.Reader) ([]Finding, error) {
	var findings []Finding
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), int(s.maxSize())+1)

	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.Contains(text, AllowMarker) {
			continue
		}
		for _, rule := range s.Rules {
			for _, m := range rule.Pattern.FindAllStringSubmatch(text, -1) {
				secret := m[0]
				if rule.Group > 0 && rule.Group < len(m) {
					secret = m[rule.Group]
				}
				if placeholders.MatchString(secret) {
					continue
				}
				findings = append(findings, Finding{Path: path, Line: line, Rule: rule.ID, Match: redact(secret)})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return findings, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return findings, nil
}

// ScanPaths walks every path. Binary and oversized files are skipped.
func (s *Scanner) ScanPaths(paths ...string) ([]Finding, error) {
	var findings []Finding
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.Size() > s.maxSize() {
				return nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if isBinary(data) {
				return nil
			}
			f, err := s.ScanReader(path, bytes.NewReader(data))
			findings = append(findings, f...)
			return err
		})
		if err != nil {
			return findings, err
		}
	}
	sortFindings(findings)
	return findings, nil
}

// ErrNotRepository is returned by ScanStaged outside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// ScanStaged scans the staged version of every added, copied or modified
// file in the repository at dir.
func (s *Scanner) ScanStaged(ctx context.Context, dir string) ([]Finding, error) {
	if _, err := s.git(ctx, dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, ErrNotRepository
	}

	out, err := s.git(ctx, dir, "diff", "--cached", "--name-only", "-z", "--diff-filter=ACM")
	if err != nil {
		return nil, fmt.Errorf("failed to list staged files: %w", err)
	}

	var findings []Finding
	for _, name := range strings.Split(string(out), "\x00") {
		if name == "" {
			continue
		}
		data, err := s.git(ctx, dir, "show", ":"+name)
		if err != nil {
			return findings, fmt.Errorf("failed to read staged %s: %w", name, err)
		}
		if int64(len(data)) > s.maxSize() || isBinary(data) {
			continue
		}
		f, err := s.ScanReader(name, bytes.NewReader(data))
		if err != nil {
			return findings, err
		}
		for i := range f {
			f[i].Staged = true
		}
		findings = append(findings, f...)
	}
	sortFindings(findings)
	return findings, nil
}

func (s *Scanner) git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	bin := s.Git
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (s *Scanner) maxSize() int64 {
	if s.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return s.MaxFileSize
}

// isBinary uses the same heuristic as git: a NUL in the first 8000 bytes.
func isBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// redact keeps only enough of a secret to find it again.
func redact(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 4) + s[len(s)-2:]
}

func sortFindings(f []Finding) {
	sort.SliceStable(f, func(i, j int) bool {
		if f[i].Path != f[j].Path {
			return f[i].Path < f[j].Path
		}
		return f[i].Line < f[j].Line
	})
}
