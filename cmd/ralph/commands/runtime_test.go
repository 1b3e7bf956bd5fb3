package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/model"
)

func TestEngineFlagsApply(t *testing.T) {
	tests := map[string]struct {
		flags       engineFlags
		expSettings func() model.Settings
		expErr      bool
	}{
		"No flags should keep the settings.": {
			expSettings: model.DefaultSettings,
		},
		"Toggles should disable the features.": {
			flags: engineFlags{noNetworkCheck: true, noAutoCommit: true, noChangeDetection: true, runtime: model.AgentRuntimeFake},
			expSettings: func() model.Settings {
				s := model.DefaultSettings()
				s.Network.Enabled = false
				s.Loop.AutoCommit = false
				s.Loop.DetectChanges = false
				s.Agent.Runtime = model.AgentRuntimeFake
				return s
			},
		},
		"Network durations should set the backoff and budget.": {
			flags: engineFlags{networkRetry: "10s", networkMax: "30m"},
			expSettings: func() model.Settings {
				s := model.DefaultSettings()
				s.Network.InitialWait = 10 * time.Second
				s.Network.Budget = 30 * time.Minute
				return s
			},
		},
		"A retry bigger than the max wait should raise the max wait.": {
			flags: engineFlags{networkRetry: "10m"},
			expSettings: func() model.Settings {
				s := model.DefaultSettings()
				s.Network.InitialWait = 10 * time.Minute
				s.Network.MaxWait = 10 * time.Minute
				return s
			},
		},
		"Bare numbers should be seconds.": {
			flags: engineFlags{networkRetry: "5", networkMax: "30"},
			expSettings: func() model.Settings {
				s := model.DefaultSettings()
				s.Network.InitialWait = 5 * time.Second
				s.Network.Budget = 30 * time.Second
				return s
			},
		},
		"A zero budget in seconds should wait forever.": {
			flags: engineFlags{networkMax: "0"},
			expSettings: func() model.Settings {
				s := model.DefaultSettings()
				s.Network.Budget = 0
				return s
			},
		},
		"A zero retry in seconds should fail.": {
			flags:  engineFlags{networkRetry: "0"},
			expErr: true,
		},
		"A negative budget in seconds should fail.": {
			flags:  engineFlags{networkMax: "-30"},
			expErr: true,
		},
		"An invalid retry should fail.": {
			flags:  engineFlags{networkRetry: "soon"},
			expErr: true,
		},
		"A negative budget should fail.": {
			flags:  engineFlags{networkMax: "-1m"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			s := model.DefaultSettings()
			err := test.flags.apply(&s)
			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
				return
			}

			require.NoError(err)
			assert.Equal(test.expSettings(), s)
		})
	}
}

func TestReadPrompt(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(file, []byte("\n  Build the API\n"), 0o644))

	tests := map[string]struct {
		prompt    string
		file      string
		expPrompt string
		expErr    bool
	}{
		"An argument prompt should be trimmed.": {
			prompt:    "  Fix the tests ",
			expPrompt: "Fix the tests",
		},
		"A prompt file should be read.": {
			file:      file,
			expPrompt: "Build the API",
		},
		"An empty prompt should fail.": {
			prompt: "   ",
			expErr: true,
		},
		"Both sources should fail.": {
			prompt: "x",
			file:   file,
			expErr: true,
		},
		"A missing file should fail.": {
			file:   filepath.Join(dir, "missing.md"),
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, err := readPrompt(test.prompt, test.file)
			if test.expErr {
				assert.Error(err)
				return
			}

			assert.NoError(err)
			assert.Equal(test.expPrompt, got)
		})
	}
}
