package workspace_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/workspace"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestWorkspaceFingerprint(t *testing.T) {
	tests := map[string]struct {
		change    func(t *testing.T, root string)
		expChange bool
	}{
		"No changes should keep the fingerprint.": {
			change:    func(t *testing.T, root string) {},
			expChange: false,
		},
		"Modifying a file should change the fingerprint.": {
			change:    func(t *testing.T, root string) { writeFile(t, root, "main.go", "package main // v2") },
			expChange: true,
		},
		"Adding a file should change the fingerprint.": {
			change:    func(t *testing.T, root string) { writeFile(t, root, "pkg/new.go", "package pkg") },
			expChange: true,
		},
		"Removing a file should change the fingerprint.": {
			change: func(t *testing.T, root string) {
				require.NoError(t, os.Remove(filepath.Join(root, "README.md")))
			},
			expChange: true,
		},
		"Renaming a file should change the fingerprint.": {
			change: func(t *testing.T, root string) {
				require.NoError(t, os.Rename(filepath.Join(root, "README.md"), filepath.Join(root, "README.txt")))
			},
			expChange: true,
		},
		"Changes in the engine data dir should be ignored.": {
			change:    func(t *testing.T, root string) { writeFile(t, root, ".ralph/state.json", "{}") },
			expChange: false,
		},
		"Changes in excluded dirs should be ignored.": {
			change: func(t *testing.T, root string) {
				writeFile(t, root, "node_modules/x/index.js", "x")
				writeFile(t, root, ".git/HEAD", "ref")
			},
			expChange: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			root := t.TempDir()
			writeFile(t, root, "main.go", "package main")
			writeFile(t, root, "README.md", "# hi")

			ws, err := workspace.New(workspace.WorkspaceConfig{Root: root})
			require.NoError(err)

			before, err := ws.Fingerprint(context.Background())
			require.NoError(err)

			test.change(t, root)

			after, err := ws.Fingerprint(context.Background())
			require.NoError(err)

			if test.expChange {
				assert.NotEqual(before, after)
			} else {
				assert.Equal(before, after)
			}
		})
	}
}

func TestWorkspaceNotGit(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	ws, err := workspace.New(workspace.WorkspaceConfig{Root: t.TempDir()})
	require.NoError(err)

	assert.False(ws.IsGitRepo(ctx))

	summary, err := ws.Summary(ctx)
	require.NoError(err)
	assert.Empty(summary)

	committed, err := ws.Commit(ctx, "msg")
	require.NoError(err)
	assert.False(committed)
}

func TestWorkspaceGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	t.Setenv("GIT_AUTHOR_NAME", "test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")

	root := t.TempDir()
	out, err := exec.Command("git", "-C", root, "init", "-q").CombinedOutput()
	require.NoError(err, string(out))

	ws, err := workspace.New(workspace.WorkspaceConfig{Root: root})
	require.NoError(err)
	assert.True(ws.IsGitRepo(ctx))

	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, ".ralph/state.json", "{}")

	summary, err := ws.Summary(ctx)
	require.NoError(err)
	assert.Contains(summary, "main.go")

	committed, err := ws.Commit(ctx, "ralph: task completed")
	require.NoError(err)
	assert.True(committed)

	// Engine files are never committed.
	out, err = exec.Command("git", "-C", root, "ls-files").CombinedOutput()
	require.NoError(err)
	assert.Equal("main.go\n", string(out))

	// Nothing else to commit.
	committed, err = ws.Commit(ctx, "again")
	require.NoError(err)
	assert.False(committed)

	summary, err = ws.Summary(ctx)
	require.NoError(err)
	assert.Contains(summary, "No uncommitted changes.")
}
