package conventions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/ralph/internal/conventions"
)

func TestPaths(t *testing.T) {
	tests := map[string]struct {
		got string
		exp string
	}{
		"run dir": {
			got: conventions.RunDir("/tmp/project"),
			exp: "/tmp/project/.ralph",
		},
		"state file": {
			got: conventions.RunFilePath("/tmp/project", conventions.StateFile),
			exp: "/tmp/project/.ralph/state.json",
		},
		"hook": {
			got: conventions.HookPath("/tmp/project", "pre-iteration"),
			exp: "/tmp/project/.ralph/hooks/pre-iteration",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.got)
		})
	}
}
