package io

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/ralph/internal/model"
)

// SettingsYAMLRepository loads engine settings from YAML files.
type SettingsYAMLRepository struct {
	fs fs.FS
}

// NewSettingsYAMLRepository creates a new YAML settings repository.
func NewSettingsYAMLRepository(filesystem fs.FS) *SettingsYAMLRepository {
	return &SettingsYAMLRepository{fs: filesystem}
}

// GetSettings loads the settings from a YAML file on top of base and returns the
// validated result. Fields missing in the file keep the base value.
func (r *SettingsYAMLRepository) GetSettings(ctx context.Context, path string, base model.Settings) (model.Settings, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		if errorsIsNotExist(err) {
			return model.Settings{}, fmt.Errorf("settings file %s: %w", path, model.ErrNotFound)
		}
		return model.Settings{}, fmt.Errorf("reading settings file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Settings{}, ctx.Err()
	}

	var cfg SettingsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Settings{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return model.Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}

	s := cfg.toModel(base)
	if err := s.Validate(); err != nil {
		return model.Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return s, nil
}

// SettingsConfig represents the YAML structure for the engine settings.
type SettingsConfig struct {
	Agent      AgentConfig      `yaml:"agent"`
	Network    NetworkConfig    `yaml:"network"`
	Acceptance AcceptanceConfig `yaml:"acceptance"`
	Loop       LoopConfig       `yaml:"loop"`
	Hooks      HooksConfig      `yaml:"hooks"`
}

// AgentConfig represents the YAML structure for the agent settings.
type AgentConfig struct {
	Runtime     string            `yaml:"runtime"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Timeout     *time.Duration    `yaml:"timeout"`
	PingTimeout *time.Duration    `yaml:"ping_timeout"`
	PingPrompt  string            `yaml:"ping_prompt"`
	DockerImage string            `yaml:"docker_image"`
}

// NetworkConfig represents the YAML structure for the network settings.
type NetworkConfig struct {
	Enabled      *bool          `yaml:"enabled"`
	Hosts        []string       `yaml:"hosts"`
	ProbeTimeout *time.Duration `yaml:"probe_timeout"`
	InitialWait  *time.Duration `yaml:"initial_wait"`
	MaxWait      *time.Duration `yaml:"max_wait"`
	Budget       *time.Duration `yaml:"budget"`
	SettleDelay  *time.Duration `yaml:"settle_delay"`
	MaxRetries   *int           `yaml:"max_retries"`
}

// AcceptanceConfig represents the YAML structure for the acceptance settings.
type AcceptanceConfig struct {
	MinIteration      *int           `yaml:"min_iteration"`
	CompileCommand    string         `yaml:"compile_command"`
	AutoDetectCompile *bool          `yaml:"auto_detect_compile"`
	CompileTimeout    *time.Duration `yaml:"compile_timeout"`
	Critic            *bool          `yaml:"critic"`
	FeedbackMaxLines  *int           `yaml:"feedback_max_lines"`
	VerifyTimeout     *time.Duration `yaml:"verify_timeout"`
}

// LoopConfig represents the YAML structure for the loop settings.
type LoopConfig struct {
	Interval               *time.Duration `yaml:"interval"`
	MaxConsecutiveFailures *int           `yaml:"max_consecutive_failures"`
	DetectChanges          *bool          `yaml:"detect_changes"`
	AutoCommit             *bool          `yaml:"auto_commit"`
	OutputTailLines        *int           `yaml:"output_tail_lines"`
}

// HooksConfig represents the YAML structure for the lifecycle hooks.
type HooksConfig struct {
	Dir      string            `yaml:"dir"`
	Commands map[string]string `yaml:"commands"`
	Timeout  *time.Duration    `yaml:"timeout"`
}

func (c SettingsConfig) validate() error {
	for _, d := range []*time.Duration{
		c.Agent.Timeout, c.Agent.PingTimeout,
		c.Network.ProbeTimeout, c.Network.InitialWait, c.Network.MaxWait, c.Network.Budget, c.Network.SettleDelay,
		c.Acceptance.CompileTimeout, c.Acceptance.VerifyTimeout,
		c.Loop.Interval, c.Hooks.Timeout,
	} {
		if d != nil && *d < 0 {
			return fmt.Errorf("durations can't be negative, got: %s", *d)
		}
	}

	for name, cmd := range c.Hooks.Commands {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("hook %q command can't be empty", name)
		}
	}

	return nil
}

func (c SettingsConfig) toModel(base model.Settings) model.Settings {
	s := base

	// Agent.
	setString(&s.Agent.Runtime, c.Agent.Runtime)
	setString(&s.Agent.Command, c.Agent.Command)
	if c.Agent.Args != nil {
		s.Agent.Args = c.Agent.Args
	}
	if c.Agent.Env != nil {
		s.Agent.Env = c.Agent.Env
	}
	setDuration(&s.Agent.Timeout, c.Agent.Timeout)
	setDuration(&s.Agent.PingTimeout, c.Agent.PingTimeout)
	setString(&s.Agent.PingPrompt, c.Agent.PingPrompt)
	setString(&s.Agent.DockerImage, c.Agent.DockerImage)

	// Network.
	setBool(&s.Network.Enabled, c.Network.Enabled)
	if c.Network.Hosts != nil {
		s.Network.Hosts = c.Network.Hosts
	}
	setDuration(&s.Network.ProbeTimeout, c.Network.ProbeTimeout)
	setDuration(&s.Network.InitialWait, c.Network.InitialWait)
	setDuration(&s.Network.MaxWait, c.Network.MaxWait)
	setDuration(&s.Network.Budget, c.Network.Budget)
	setDuration(&s.Network.SettleDelay, c.Network.SettleDelay)
	setInt(&s.Network.MaxRetries, c.Network.MaxRetries)

	// Acceptance.
	setInt(&s.Acceptance.MinIteration, c.Acceptance.MinIteration)
	setString(&s.Acceptance.CompileCommand, c.Acceptance.CompileCommand)
	setBool(&s.Acceptance.AutoDetectCompile, c.Acceptance.AutoDetectCompile)
	setDuration(&s.Acceptance.CompileTimeout, c.Acceptance.CompileTimeout)
	setBool(&s.Acceptance.Critic, c.Acceptance.Critic)
	setInt(&s.Acceptance.FeedbackMaxLines, c.Acceptance.FeedbackMaxLines)
	setDuration(&s.Acceptance.VerifyTimeout, c.Acceptance.VerifyTimeout)

	// Loop.
	setDuration(&s.Loop.Interval, c.Loop.Interval)
	setInt(&s.Loop.MaxConsecutiveFailures, c.Loop.MaxConsecutiveFailures)
	setBool(&s.Loop.DetectChanges, c.Loop.DetectChanges)
	setBool(&s.Loop.AutoCommit, c.Loop.AutoCommit)
	setInt(&s.Loop.OutputTailLines, c.Loop.OutputTailLines)

	// Hooks.
	setString(&s.Hooks.Dir, c.Hooks.Dir)
	if c.Hooks.Commands != nil {
		s.Hooks.Commands = c.Hooks.Commands
	}
	setDuration(&s.Hooks.Timeout, c.Hooks.Timeout)

	return s
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
