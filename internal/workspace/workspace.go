// Package workspace inspects the project the agent works on: content fingerprints
// for change detection, git summaries for the critic and the final commit.
package workspace

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/slok/ralph/internal/conventions"
	"github.com/slok/ralph/internal/log"
)

const maxSummaryBytes = 8 * 1024

var excludeDataDir = ":(exclude)" + conventions.DataDir

// WorkspaceConfig is the configuration for the workspace.
type WorkspaceConfig struct {
	Root string
	// ExcludedDirs are directory names ignored by the fingerprint.
	ExcludedDirs []string
	GitBinary    string
	Logger       log.Logger
}

func (c *WorkspaceConfig) defaults() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.ExcludedDirs == nil {
		c.ExcludedDirs = conventions.ExcludedDirs
	}
	if c.GitBinary == "" {
		c.GitBinary = "git"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "workspace.Workspace"})
	return nil
}

// Workspace is the project directory.
type Workspace struct {
	root     string
	excluded []string
	git      string
	logger   log.Logger
}

// New returns a new workspace.
func New(cfg WorkspaceConfig) (*Workspace, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Workspace{
		root:     cfg.Root,
		excluded: cfg.ExcludedDirs,
		git:      cfg.GitBinary,
		logger:   cfg.Logger,
	}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// Fingerprint returns a content hash of the workspace. Two equal fingerprints
// mean no file was created, removed or modified in between.
func (w *Workspace) Fingerprint(ctx context.Context) (string, error) {
	h := blake3.New()

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files can disappear while the agent works.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != w.root && slices.Contains(w.excluded, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		_, _ = io.WriteString(h, filepath.ToSlash(rel))
		_, _ = h.Write([]byte{0})

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return nil
			}
			_, _ = io.WriteString(h, "link:"+target)
			_, _ = h.Write([]byte{0})
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return fmt.Errorf("could not hash %s: %w", rel, err)
		}
		_, _ = h.Write([]byte{0})

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("could not fingerprint workspace: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsGitRepo returns true when the workspace is inside a git work tree.
func (w *Workspace) IsGitRepo(ctx context.Context) bool {
	out, err := w.runGit(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Summary returns the git status and diff stat of the workspace, empty when the
// workspace is not a git repository.
func (w *Workspace) Summary(ctx context.Context) (string, error) {
	if !w.IsGitRepo(ctx) {
		return "", nil
	}

	status, err := w.runGit(ctx, "status", "--porcelain", "--", ".", excludeDataDir)
	if err != nil {
		return "", fmt.Errorf("git status: %w", err)
	}
	stat, err := w.runGit(ctx, "diff", "--stat", "HEAD", "--", ".", excludeDataDir)
	if err != nil {
		// Repositories without commits have no HEAD.
		stat = ""
	}

	var b strings.Builder
	if s := strings.TrimSpace(status); s != "" {
		b.WriteString("Changed files:\n")
		b.WriteString(s)
		b.WriteString("\n")
	} else {
		b.WriteString("No uncommitted changes.\n")
	}
	if s := strings.TrimSpace(stat); s != "" {
		b.WriteString("\nDiff stat:\n")
		b.WriteString(s)
		b.WriteString("\n")
	}

	summary := b.String()
	if len(summary) > maxSummaryBytes {
		summary = summary[:maxSummaryBytes] + "\n... (truncated)\n"
	}

	return summary, nil
}

// Commit stages every change and commits it. It returns false when the
// workspace is not a git repository or there was nothing to commit.
func (w *Workspace) Commit(ctx context.Context, message string) (bool, error) {
	if !w.IsGitRepo(ctx) {
		w.logger.Debugf("Not a git repository, skipping commit")
		return false, nil
	}

	if _, err := w.runGit(ctx, "add", "-A", "--", ".", excludeDataDir); err != nil {
		return false, fmt.Errorf("git add: %w", err)
	}

	out, err := w.runGit(ctx, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") || strings.Contains(out, "nothing added to commit") {
			return false, nil
		}
		return false, fmt.Errorf("git commit: %w", err)
	}

	w.logger.Infof("Committed workspace changes")
	return true, nil
}

func (w *Workspace) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, w.git, append([]string{"-C", w.root}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}
