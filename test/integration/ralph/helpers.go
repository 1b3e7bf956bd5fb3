package ralph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slok/ralph/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "ralph"
	}

	// go test changes the CWD to the test package directory, relative paths would break.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("RALPH_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("ralph binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "RALPH_INTEGRATION"
		envBinary     = "RALPH_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Project is a temporary project directory with ralph settings.
type Project struct {
	Dir    string
	config Config
}

// ProjectOptions customize the project settings.
type ProjectOptions struct {
	// AgentScript is the shell script used as agent, it gets the prompt on stdin.
	AgentScript string
	// ProbeHost is the only connectivity probe host.
	ProbeHost string
}

// NewProject creates a project directory with a settings file that runs a shell
// script as the agent, without critic and compile gates.
func NewProject(t *testing.T, config Config, opts ProjectOptions) Project {
	t.Helper()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".ralph"), 0o755); err != nil {
		t.Fatalf("could not create run dir: %s", err)
	}

	probeHost := opts.ProbeHost
	if probeHost == "" {
		probeHost = "127.0.0.1:1"
	}

	settings := fmt.Sprintf(`agent:
  command: sh
  args: ["-c", %q]
  timeout: 30s
network:
  hosts: [%q]
  probe_timeout: 200ms
  initial_wait: 50ms
  max_wait: 100ms
  settle_delay: 10ms
acceptance:
  auto_detect_compile: false
  critic: false
loop:
  interval: 10ms
`, opts.AgentScript, probeHost)
	if err := os.WriteFile(filepath.Join(dir, ".ralph", "config.yaml"), []byte(settings), 0o644); err != nil {
		t.Fatalf("could not write settings: %s", err)
	}

	return Project{Dir: dir, config: config}
}

// Run runs a ralph command in the project. It suppresses logging output for cleaner test output.
func (p Project) Run(ctx context.Context, cmdArgs string) (stdout, stderr []byte, err error) {
	args := fmt.Sprintf("--no-log --global-config %s --dir %s %s", filepath.Join(p.Dir, "missing.yaml"), p.Dir, cmdArgs)
	return testutils.RunRalph(ctx, nil, p.config.Binary, args, true)
}

// Enable enables a single goal run.
func (p Project) Enable(ctx context.Context, prompt string, extraArgs ...string) (stdout, stderr []byte, err error) {
	args := []string{"--no-log", "--global-config", filepath.Join(p.Dir, "missing.yaml"), "--dir", p.Dir, "enable", prompt}
	args = append(args, extraArgs...)
	return testutils.RunRalphArgs(ctx, nil, p.config.Binary, args, true)
}

// ReadFile returns a project file contents.
func (p Project) ReadFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.Dir, name))
	if err != nil {
		t.Fatalf("could not read %s: %s", name, err)
	}
	return strings.TrimSpace(string(data))
}

// Exists returns true when the project file exists.
func (p Project) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(p.Dir, name))
	return err == nil
}
