package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/agent/fake"
	"github.com/slok/ralph/internal/conventions"
	"github.com/slok/ralph/internal/engine"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/memory"
)

func testSettings() model.Settings {
	s := model.DefaultSettings()
	s.Agent.Runtime = model.AgentRuntimeFake
	s.Network.Enabled = false
	s.Loop.Interval = time.Millisecond
	s.Loop.AutoCommit = false
	return s
}

func TestNewInvalidConfig(t *testing.T) {
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	invalidSettings := testSettings()
	invalidSettings.Loop.MaxConsecutiveFailures = 0

	tests := map[string]struct {
		cfg engine.EngineConfig
	}{
		"Missing dir should fail.": {
			cfg: engine.EngineConfig{Settings: testSettings(), Repository: repo, Memories: repo},
		},
		"Missing repository should fail.": {
			cfg: engine.EngineConfig{Dir: t.TempDir(), Settings: testSettings(), Memories: repo},
		},
		"Invalid settings should fail.": {
			cfg: engine.EngineConfig{Dir: t.TempDir(), Settings: invalidSettings, Repository: repo, Memories: repo},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := engine.New(context.Background(), test.cfg)
			assert.Error(t, err)
		})
	}
}

func TestEngineRunsGoalToCompletion(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	require.NoError(repo.SaveState(ctx, model.RunState{
		RunID:             "01JQ0000000000000000000000",
		Iteration:         1,
		MaxIterations:     5,
		CompletionPromise: "DONE",
		Mode:              model.RunModeSingle,
		Prompt:            "Write the notes",
		Model:             model.DefaultModel,
	}))

	write := func(inv agent.Invocation) {
		path := filepath.Join(dir, "notes.txt")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		fmt.Fprintln(f, "note")
	}
	runner, err := fake.NewRunner(fake.RunnerConfig{
		Steps: map[string][]fake.Step{
			agent.PersonaWorker: {
				{Output: "wrote notes\n<promise>DONE</promise>\n", Do: write},
				{Output: "wrote more notes\n<promise>DONE</promise>\n", Do: write},
			},
		},
	})
	require.NoError(err)

	svc, err := engine.New(ctx, engine.EngineConfig{
		Dir:        dir,
		Settings:   testSettings(),
		Repository: repo,
		Memories:   repo,
		Runner:     runner,
	})
	require.NoError(err)

	report, err := svc.Run(ctx)
	require.NoError(err)
	assert.Equal(model.LoopPhaseCompleted, report.Phase)
	assert.Equal(2, report.Iteration)

	// Ping, two workers and a single critic review for the accepted claim.
	personas := []string{}
	for _, inv := range runner.Invocations() {
		personas = append(personas, inv.Persona)
	}
	assert.Equal([]string{agent.PersonaPing, agent.PersonaWorker, agent.PersonaWorker, agent.PersonaCritic}, personas)

	_, err = repo.GetState(ctx)
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestNewAgentRunner(t *testing.T) {
	tests := map[string]struct {
		settings func() model.AgentSettings
		agentEnv string
		expErr   bool
	}{
		"The project agent env file should be loaded.": {
			settings: func() model.AgentSettings { return model.DefaultSettings().Agent },
			agentEnv: "GITHUB_TOKEN=ghp_123\n",
		},
		"An invalid project agent env file should fail.": {
			settings: func() model.AgentSettings { return model.DefaultSettings().Agent },
			agentEnv: "1TOKEN=x\n",
			expErr:   true,
		},
		"The process runtime should be created.": {
			settings: func() model.AgentSettings { return model.DefaultSettings().Agent },
		},
		"The fake runtime should be created.": {
			settings: func() model.AgentSettings {
				s := model.DefaultSettings().Agent
				s.Runtime = model.AgentRuntimeFake
				return s
			},
		},
		"The process runtime without command should fail.": {
			settings: func() model.AgentSettings {
				s := model.DefaultSettings().Agent
				s.Command = ""
				return s
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if test.agentEnv != "" {
				require.NoError(t, os.MkdirAll(conventions.RunDir(dir), 0o755))
				require.NoError(t, os.WriteFile(conventions.RunFilePath(dir, conventions.AgentEnvFile), []byte(test.agentEnv), 0o600))
			}

			_, err := engine.NewAgentRunner(test.settings(), dir, nil, nil)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
