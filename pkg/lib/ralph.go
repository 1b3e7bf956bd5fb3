package lib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/slok/ralph/internal/conventions"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/file"
	storageio "github.com/slok/ralph/internal/storage/io"
	"github.com/slok/ralph/internal/storage/sqlite"
)

// RuntimeType identifies how the agent command is executed.
type RuntimeType string

const (
	// RuntimeProcess runs the agent as a local subprocess.
	RuntimeProcess RuntimeType = "process"
	// RuntimeDocker runs the agent inside a container with the project mounted.
	RuntimeDocker RuntimeType = "docker"
	// RuntimeFake uses a scripted agent that never changes the project.
	RuntimeFake RuntimeType = "fake"
)

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} works on the current directory
// with the project settings file, if any.
type Config struct {
	// Dir is the project root, the run files live in its `.ralph` directory.
	// Default: current directory.
	Dir string

	// SettingsFile is the YAML settings file applied over the defaults.
	// Default: <Dir>/.ralph/config.yaml (ignored when missing).
	SettingsFile string

	// Runtime overrides the agent runtime of the settings.
	Runtime RuntimeType

	// Agent replaces the configured agent command with an in-process function.
	Agent AgentFunc

	// Stream receives the agent output while it runs. Default: discarded.
	Stream io.Writer

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Dir == "" {
		c.Dir = "."
	}
	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return fmt.Errorf("could not resolve project dir: %w", err)
	}
	c.Dir = dir

	if c.SettingsFile == "" {
		c.SettingsFile = conventions.RunFilePath(c.Dir, conventions.ConfigFile)
	}

	switch c.Runtime {
	case "", RuntimeProcess, RuntimeDocker, RuntimeFake:
	default:
		return fmt.Errorf("unsupported runtime %q: %w", c.Runtime, ErrNotValid)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point to manage the run of a project.
//
// Create a Client with [New] and release its resources with [Client.Close].
// Loop operations must not run concurrently on the same project.
type Client struct {
	dir      string
	settings model.Settings
	repo     *file.Repository
	memories *sqlite.Repository
	agent    AgentFunc
	stream   io.Writer
	logger   log.Logger
}

// New creates a new SDK client for a project.
//
// The caller must call [Client.Close] when done to release the memory bank
// database connection.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	settings, err := loadSettings(ctx, cfg.SettingsFile)
	if err != nil {
		return nil, mapError(err)
	}
	if cfg.Runtime != "" {
		settings.Agent.Runtime = string(cfg.Runtime)
	}
	if err := settings.Validate(); err != nil {
		return nil, mapError(fmt.Errorf("invalid settings: %w", err))
	}

	repo, err := file.NewRepository(file.RepositoryConfig{
		Root:   cfg.Dir,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	if err := os.MkdirAll(conventions.RunDir(cfg.Dir), 0o755); err != nil {
		return nil, fmt.Errorf("could not create run dir: %w", err)
	}
	memories, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: conventions.RunFilePath(cfg.Dir, conventions.MemoryDBFile),
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create memory bank: %w", err)
	}

	return &Client{
		dir:      cfg.Dir,
		settings: settings,
		repo:     repo,
		memories: memories,
		agent:    cfg.Agent,
		stream:   cfg.Stream,
		logger:   cfg.Logger,
	}, nil
}

// Close releases resources held by the client.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	return c.memories.Close()
}

func loadSettings(ctx context.Context, path string) (model.Settings, error) {
	defaults := model.DefaultSettings()

	settings, err := storageio.NewSettingsYAMLRepository(os.DirFS(filepath.Dir(path))).GetSettings(ctx, filepath.Base(path), defaults)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return defaults, nil
		}
		return model.Settings{}, fmt.Errorf("could not load settings: %w", err)
	}

	return settings, nil
}
