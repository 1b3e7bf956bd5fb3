package io

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/model"
)

func TestAgentEnvFileRepository_GetAgentEnv(t *testing.T) {
	tests := map[string]struct {
		fs     fstest.MapFS
		expEnv map[string]string
		expErr error
	}{
		"A dotenv file should be loaded": {
			fs: fstest.MapFS{
				"agent.env": &fstest.MapFile{Data: []byte(`# Agent credentials.
GITHUB_TOKEN=ghp_123
export COPILOT_MODEL="gpt-5.2-codex"
EMPTY=
`)},
			},
			expEnv: map[string]string{
				"GITHUB_TOKEN":  "ghp_123",
				"COPILOT_MODEL": "gpt-5.2-codex",
				"EMPTY":         "",
			},
		},
		"A missing file should return not found": {
			fs:     fstest.MapFS{},
			expErr: model.ErrNotFound,
		},
		"An invalid variable name should fail": {
			fs: fstest.MapFS{
				"agent.env": &fstest.MapFile{Data: []byte("1TOKEN=x\n")},
			},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := NewAgentEnvFileRepository(test.fs)
			got, err := repo.GetAgentEnv(context.Background(), "agent.env")

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				return
			}

			require.NoError(err)
			assert.Equal(test.expEnv, got)
		})
	}
}
