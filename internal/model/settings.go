package model

import (
	"fmt"
	"time"

	"github.com/slok/ralph/internal/utils/env"
)

// Agent runtimes.
const (
	AgentRuntimeProcess = "process"
	AgentRuntimeDocker  = "docker"
	AgentRuntimeFake    = "fake"
)

// Hook names.
const (
	HookPreIteration  = "pre-iteration"
	HookPostIteration = "post-iteration"
	HookOnCompletion  = "on-completion"
	HookOnNetworkWait = "on-network-wait"
)

// Settings are the tunables of the iteration engine.
type Settings struct {
	Agent      AgentSettings
	Network    NetworkSettings
	Acceptance AcceptanceSettings
	Loop       LoopSettings
	Hooks      HookSettings
}

// AgentSettings configure how the coding agent is invoked.
type AgentSettings struct {
	Runtime string
	// Command and Args invoke the agent, `{prompt}` and `{model}` placeholders are
	// replaced on each invocation. Without a `{prompt}` placeholder the prompt is
	// written to the agent stdin.
	Command     string
	Args        []string
	Env         map[string]string
	Timeout     time.Duration
	PingTimeout time.Duration
	PingPrompt  string
	DockerImage string
}

// NetworkSettings configure connectivity probing and waiting.
type NetworkSettings struct {
	Enabled      bool
	Hosts        []string
	ProbeTimeout time.Duration
	InitialWait  time.Duration
	MaxWait      time.Duration
	// Budget is the total time to wait for connectivity, 0 means unbounded.
	Budget      time.Duration
	SettleDelay time.Duration
	MaxRetries  int
}

// AcceptanceSettings configure the completion claim gates.
type AcceptanceSettings struct {
	MinIteration      int
	CompileCommand    string
	AutoDetectCompile bool
	CompileTimeout    time.Duration
	Critic            bool
	FeedbackMaxLines  int
	VerifyTimeout     time.Duration
}

// LoopSettings configure the loop controller.
type LoopSettings struct {
	Interval               time.Duration
	MaxConsecutiveFailures int
	DetectChanges          bool
	AutoCommit             bool
	OutputTailLines        int
}

// HookSettings configure the lifecycle hooks. Commands override the hook
// scripts found in the hooks directory.
type HookSettings struct {
	Dir      string
	Commands map[string]string
	Timeout  time.Duration
}

// DefaultSettings returns the default engine settings.
func DefaultSettings() Settings {
	return Settings{
		Agent: AgentSettings{
			Runtime:     AgentRuntimeProcess,
			Command:     "copilot",
			Args:        []string{"--model", "{model}", "--allow-all-tools", "-p", "{prompt}"},
			Timeout:     600 * time.Second,
			PingTimeout: 30 * time.Second,
			PingPrompt:  "Reply with the single word: pong",
			DockerImage: "node:22-bookworm",
		},
		Network: NetworkSettings{
			Enabled:      true,
			Hosts:        []string{"1.1.1.1:53", "8.8.8.8:53", "api.github.com:443"},
			ProbeTimeout: 5 * time.Second,
			InitialWait:  5 * time.Second,
			MaxWait:      300 * time.Second,
			SettleDelay:  2 * time.Second,
			MaxRetries:   3,
		},
		Acceptance: AcceptanceSettings{
			MinIteration:      2,
			AutoDetectCompile: true,
			CompileTimeout:    120 * time.Second,
			Critic:            true,
			FeedbackMaxLines:  40,
			VerifyTimeout:     120 * time.Second,
		},
		Loop: LoopSettings{
			Interval:               2 * time.Second,
			MaxConsecutiveFailures: 3,
			DetectChanges:          true,
			AutoCommit:             true,
			OutputTailLines:        20,
		},
		Hooks: HookSettings{
			Timeout: 60 * time.Second,
		},
	}
}

// Validate validates the settings.
func (s Settings) Validate() error {
	switch s.Agent.Runtime {
	case AgentRuntimeProcess, AgentRuntimeDocker, AgentRuntimeFake:
	default:
		return fmt.Errorf("unknown agent runtime %q: %w", s.Agent.Runtime, ErrNotValid)
	}
	if s.Agent.Runtime != AgentRuntimeFake && s.Agent.Command == "" {
		return fmt.Errorf("agent command is required: %w", ErrNotValid)
	}
	if s.Agent.Runtime == AgentRuntimeDocker && s.Agent.DockerImage == "" {
		return fmt.Errorf("docker image is required for the docker runtime: %w", ErrNotValid)
	}
	if s.Agent.Timeout <= 0 {
		return fmt.Errorf("agent timeout must be positive: %w", ErrNotValid)
	}
	if err := env.Validate(s.Agent.Env); err != nil {
		return fmt.Errorf("agent env: %s: %w", err, ErrNotValid)
	}

	if s.Network.Enabled && len(s.Network.Hosts) == 0 {
		return fmt.Errorf("at least one probe host is required: %w", ErrNotValid)
	}
	if s.Network.InitialWait <= 0 {
		return fmt.Errorf("network initial wait must be positive: %w", ErrNotValid)
	}
	if s.Network.MaxWait < s.Network.InitialWait {
		return fmt.Errorf("network max wait must be >= initial wait: %w", ErrNotValid)
	}
	if s.Network.Budget < 0 {
		return fmt.Errorf("network budget can't be negative: %w", ErrNotValid)
	}
	if s.Network.MaxRetries < 0 {
		return fmt.Errorf("network retries can't be negative: %w", ErrNotValid)
	}

	if s.Acceptance.MinIteration < 1 {
		return fmt.Errorf("minimum iteration must be >= 1: %w", ErrNotValid)
	}
	if s.Acceptance.FeedbackMaxLines <= 0 {
		return fmt.Errorf("feedback max lines must be positive: %w", ErrNotValid)
	}

	if s.Loop.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max consecutive failures must be >= 1: %w", ErrNotValid)
	}
	if s.Loop.Interval < 0 {
		return fmt.Errorf("loop interval can't be negative: %w", ErrNotValid)
	}

	for name := range s.Hooks.Commands {
		if !IsHookName(name) {
			return fmt.Errorf("unknown hook %q: %w", name, ErrNotValid)
		}
	}

	return nil
}

// IsHookName returns true for a known lifecycle hook name.
func IsHookName(name string) bool {
	switch name {
	case HookPreIteration, HookPostIteration, HookOnCompletion, HookOnNetworkWait:
		return true
	}
	return false
}
