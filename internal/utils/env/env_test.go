package env_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/ralph/internal/utils/env"
)

func TestMerge(t *testing.T) {
	tests := map[string]struct {
		layers []map[string]string
		exp    map[string]string
	}{
		"No layers should return an empty env": {
			exp: map[string]string{},
		},
		"Later layers should take precedence": {
			layers: []map[string]string{
				{"RALPH_ITERATION": "1", "AGENT_TOKEN": "x"},
				nil,
				{"RALPH_ITERATION": "2"},
			},
			exp: map[string]string{"RALPH_ITERATION": "2", "AGENT_TOKEN": "x"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, env.Merge(test.layers...))
		})
	}
}

func TestMergeDoesNotMutateLayers(t *testing.T) {
	assert := assert.New(t)

	base := map[string]string{"A": "1"}
	_ = env.Merge(base, map[string]string{"A": "2"})
	assert.Equal("1", base["A"])
}

func TestList(t *testing.T) {
	got := env.List(map[string]string{"RALPH_MODE": "batch", "A": "1", "EMPTY": ""})
	assert.Equal(t, []string{"A=1", "EMPTY=", "RALPH_MODE=batch"}, got)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		env    map[string]string
		expErr bool
	}{
		"Valid names should not fail": {
			env: map[string]string{"RALPH_TASK_ID": "x", "_private": "y", "a1": "z"},
		},
		"Names starting with a digit should fail": {
			env:    map[string]string{"1INVALID": "x"},
			expErr: true,
		},
		"Names with dashes should fail": {
			env:    map[string]string{"MY-VAR": "x"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := env.Validate(test.env)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
