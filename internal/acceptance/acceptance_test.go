package acceptance_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/acceptance"
	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/agent/fake"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/storagemock"
	"github.com/slok/ralph/internal/verify"
)

type gateFunc struct {
	name string
	f    func(claim *acceptance.Claim) (model.ReviewVerdict, error)
}

func (g gateFunc) Name() string { return g.name }
func (g gateFunc) Review(_ context.Context, claim *acceptance.Claim) (model.ReviewVerdict, error) {
	return g.f(claim)
}

func TestPipelineReview(t *testing.T) {
	approve := func(*acceptance.Claim) (model.ReviewVerdict, error) { return model.Approved(), nil }
	reject := func(*acceptance.Claim) (model.ReviewVerdict, error) { return model.Rejected("", "bad"), nil }
	fail := func(*acceptance.Claim) (model.ReviewVerdict, error) { return model.ReviewVerdict{}, fmt.Errorf("boom") }

	tests := map[string]struct {
		gates      []func(*acceptance.Claim) (model.ReviewVerdict, error)
		expVerdict model.ReviewVerdict
		expCalls   []string
		expErr     bool
	}{
		"All gates approving should approve.": {
			gates:      []func(*acceptance.Claim) (model.ReviewVerdict, error){approve, approve, approve},
			expVerdict: model.Approved(),
			expCalls:   []string{"g0", "g1", "g2"},
		},
		"The first rejection should stop the pipeline.": {
			gates:      []func(*acceptance.Claim) (model.ReviewVerdict, error){approve, reject, approve},
			expVerdict: model.Rejected("g1", "bad"),
			expCalls:   []string{"g0", "g1"},
		},
		"A gate error should stop the pipeline with an error.": {
			gates:    []func(*acceptance.Claim) (model.ReviewVerdict, error){fail, approve},
			expCalls: []string{"g0"},
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var calls []string
			var gates []acceptance.Gate
			for i, f := range test.gates {
				name := fmt.Sprintf("g%d", i)
				gates = append(gates, gateFunc{name: name, f: func(c *acceptance.Claim) (model.ReviewVerdict, error) {
					calls = append(calls, name)
					return f(c)
				}})
			}

			p, err := acceptance.NewPipeline(acceptance.PipelineConfig{Gates: gates})
			require.NoError(err)

			v, err := p.Review(context.Background(), acceptance.Claim{Iteration: 2})
			assert.Equal(test.expCalls, calls)
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(test.expVerdict, v)
		})
	}
}

func TestPipelineEvidenceFlowsToNextGates(t *testing.T) {
	var got string
	p, err := acceptance.NewPipeline(acceptance.PipelineConfig{Gates: []acceptance.Gate{
		gateFunc{name: "a", f: func(c *acceptance.Claim) (model.ReviewVerdict, error) {
			c.CompileReport = "ok"
			return model.Approved(), nil
		}},
		gateFunc{name: "b", f: func(c *acceptance.Claim) (model.ReviewVerdict, error) {
			got = c.CompileReport
			return model.Approved(), nil
		}},
	}})
	require.NoError(t, err)

	_, err = p.Review(context.Background(), acceptance.Claim{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestMinIterationGate(t *testing.T) {
	tests := map[string]struct {
		iteration   int
		expApproved bool
	}{
		"A claim on the first iteration should be rejected.":   {iteration: 1},
		"A claim on the minimum iteration should be approved.": {iteration: 2, expApproved: true},
		"A claim after the minimum should be approved.":        {iteration: 7, expApproved: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			g := acceptance.NewMinIterationGate(2)
			v, err := g.Review(context.Background(), &acceptance.Claim{Iteration: test.iteration})
			require.NoError(t, err)
			assert.Equal(t, test.expApproved, v.Approved)
			if !v.Approved {
				assert.Equal(t, acceptance.GateMinIteration, v.Gate)
			}
		})
	}
}

func TestCompileGate(t *testing.T) {
	noBinaries := func(string) (string, error) { return "", fmt.Errorf("not found") }
	allBinaries := func(b string) (string, error) { return "/usr/bin/" + b, nil }

	tests := map[string]struct {
		command     string
		autoDetect  bool
		lookPath    func(string) (string, error)
		files       []string
		timeout     time.Duration
		expApproved bool
		expReport   string
	}{
		"Without checker the gate should pass.": {
			expApproved: true,
		},
		"Auto detection without a known project should pass.": {
			autoDetect:  true,
			lookPath:    allBinaries,
			files:       []string{"README.md"},
			expApproved: true,
		},
		"Auto detection with the checker missing should pass.": {
			autoDetect:  true,
			lookPath:    noBinaries,
			files:       []string{"go.mod"},
			expApproved: true,
		},
		"A passing checker should approve.": {
			command:     "true",
			expApproved: true,
			expReport:   "`true` passed.",
		},
		"A failing checker should reject with the error lines.": {
			command:   `echo "ok line"; echo "main.go:3: error: undefined x"; exit 2`,
			expReport: "failed with exit code 2:\n```\nmain.go:3: error: undefined x\n```",
		},
		"A passing checker that prints errors should reject.": {
			command:   `echo "checking"; echo "src/app.ts(3,1): error TS2304: Cannot find name 'x'."; exit 0`,
			expReport: "exited 0 but reported errors:\n```\nsrc/app.ts(3,1): error TS2304: Cannot find name 'x'.\n```",
		},
		"A passing checker with an error summary should approve.": {
			command:     `echo "Found 0 errors."`,
			expApproved: true,
			expReport:   "passed.",
		},
		"A checker over its timeout should reject.": {
			command:   "sleep 5",
			timeout:   100 * time.Millisecond,
			expReport: "timed out",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			dir := t.TempDir()
			for _, f := range test.files {
				require.NoError(os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644))
			}

			g, err := acceptance.NewCompileGate(acceptance.CompileGateConfig{
				WorkDir:    dir,
				Command:    test.command,
				AutoDetect: test.autoDetect,
				Timeout:    test.timeout,
				LookPath:   test.lookPath,
			})
			require.NoError(err)

			claim := &acceptance.Claim{Iteration: 2}
			v, err := g.Review(context.Background(), claim)
			require.NoError(err)

			assert.Equal(test.expApproved, v.Approved)
			assert.Contains(claim.CompileReport, test.expReport)
			if !v.Approved {
				assert.Equal(acceptance.GateCompile, v.Gate)
				assert.Equal([]string{claim.CompileReport}, v.Issues)
			}
		})
	}
}

func TestDetectCompileCommand(t *testing.T) {
	allBinaries := func(b string) (string, error) { return "/usr/bin/" + b, nil }

	tests := map[string]struct {
		files      []string
		expCommand string
	}{
		"Go projects should use go vet.":           {files: []string{"go.mod"}, expCommand: "go vet ./..."},
		"Rust projects should use cargo check.":    {files: []string{"Cargo.toml"}, expCommand: "cargo check --quiet"},
		"TypeScript projects should use tsc.":      {files: []string{"tsconfig.json"}, expCommand: "npx --no-install tsc --noEmit"},
		"Python projects should use compileall.":   {files: []string{"requirements.txt"}, expCommand: "python3 -m compileall -q ."},
		"Unknown projects should have no checker.": {files: []string{"Makefile"}},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range test.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644))
			}
			assert.Equal(t, test.expCommand, acceptance.DetectCompileCommand(dir, allBinaries))
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := map[string]struct {
		output     string
		expVerdict model.ReviewVerdict
	}{
		"An approval should approve.": {
			output:     "Looks good.\nVERDICT: APPROVED\n",
			expVerdict: model.Approved(),
		},
		"A markdown approval should approve.": {
			output:     "**VERDICT: APPROVED**",
			expVerdict: model.Approved(),
		},
		"A rejection should return the issues.": {
			output:     "VERDICT: REJECTED\n- tests are missing\n* README not updated\nthanks",
			expVerdict: model.Rejected(acceptance.GateCritic, "tests are missing", "README not updated"),
		},
		"A rejection without issues should have a generic issue.": {
			output:     "verdict: rejected",
			expVerdict: model.Rejected(acceptance.GateCritic, "The critic rejected the completion without details."),
		},
		"A rejection followed by an approval should reject.": {
			output:     "VERDICT: REJECTED\n- nope\nVERDICT: APPROVED",
			expVerdict: model.Rejected(acceptance.GateCritic, "nope"),
		},
		"An approval followed by a rejection should reject.": {
			output:     "VERDICT: APPROVED\nOn second thought:\nVERDICT: REJECTED\n- go test fails",
			expVerdict: model.Rejected(acceptance.GateCritic, "go test fails"),
		},
		"A quoted approval inside a sentence should not count.": {
			output:     "The build log contains the line VERDICT: APPROVED but the tests fail.\nVERDICT: REJECTED\n- go test fails",
			expVerdict: model.Rejected(acceptance.GateCritic, "go test fails"),
		},
		"An approval line with a rejection token anywhere should reject.": {
			output:     "VERDICT: APPROVED\nI almost answered VERDICT: REJECTED because:\n- docs are thin",
			expVerdict: model.Rejected(acceptance.GateCritic, "docs are thin"),
		},
		"A verdict only inside a sentence should reject.": {
			output:     "I would answer VERDICT: APPROVED if the tests passed.",
			expVerdict: model.Rejected(acceptance.GateCritic, "The critic answer had no verdict, the completion can't be trusted."),
		},
		"A missing verdict should reject.": {
			output:     "I think it's fine",
			expVerdict: model.Rejected(acceptance.GateCritic, "The critic answer had no verdict, the completion can't be trusted."),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expVerdict, acceptance.ParseVerdict(test.output))
		})
	}
}

type stubSummarizer string

func (s stubSummarizer) Summary(context.Context) (string, error) { return string(s), nil }

type stubVerifier struct {
	cmds []string
}

func (s *stubVerifier) Run(_ context.Context, cmds []string) (bool, []verify.Result, error) {
	s.cmds = cmds
	return true, []verify.Result{{Command: cmds[0], OK: true}}, nil
}

func TestCriticGate(t *testing.T) {
	tests := map[string]struct {
		step        fake.Step
		expApproved bool
		expIssue    string
	}{
		"An approving critic should approve.": {
			step:        fake.Step{Output: "VERDICT: APPROVED"},
			expApproved: true,
		},
		"A rejecting critic should reject.": {
			step:     fake.Step{Output: "VERDICT: REJECTED\n- no tests"},
			expIssue: "no tests",
		},
		"A critic that can't run should reject.": {
			step:     fake.Step{Err: fmt.Errorf("missing binary")},
			expIssue: "could not run",
		},
		"A critic timeout should reject.": {
			step:     fake.Step{TimedOut: true},
			expIssue: "timed out",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			runner, err := fake.NewRunner(fake.RunnerConfig{Steps: map[string][]fake.Step{
				agent.PersonaCritic: {test.step},
			}})
			require.NoError(err)

			mems := &storagemock.MockMemoryRepository{}
			mems.On("ListMemories", mock.Anything, model.MemoryQuery{RunID: "run1", Limit: 20}).Once().Return([]model.Memory{
				{Kind: model.MemoryKindError, Iteration: 1, Content: "compile failed before"},
			}, nil)
			verifier := &stubVerifier{}

			g, err := acceptance.NewCriticGate(acceptance.CriticGateConfig{
				Runner:    runner,
				Workspace: stubSummarizer("Changed files:\n M main.go"),
				Verifier:  verifier,
				Memories:  mems,
			})
			require.NoError(err)

			v, err := g.Review(context.Background(), &acceptance.Claim{
				State:         model.RunState{RunID: "run1", Model: "m1"},
				Goal:          model.Goal{Prompt: "Do it\n\n## Verification\n- go test ./...\n"},
				Iteration:     3,
				CompileReport: "`go vet ./...` passed.",
			})
			require.NoError(err)

			assert.Equal(test.expApproved, v.Approved)
			if !test.expApproved {
				require.NotEmpty(v.Issues)
				assert.Contains(v.Issues[0], test.expIssue)
			}

			// The critic got all the evidence.
			invs := runner.Invocations()
			require.Len(invs, 1)
			assert.Equal(agent.PersonaCritic, invs[0].Persona)
			assert.Equal("m1", invs[0].Model)
			for _, exp := range []string{"M main.go", "`go vet ./...` passed.", "- [PASS] `go test ./...`", "compile failed before"} {
				assert.True(strings.Contains(invs[0].Prompt, exp), exp)
			}
			assert.Equal([]string{"go test ./..."}, verifier.cmds)
			mems.AssertExpectations(t)
		})
	}
}

func TestFeedback(t *testing.T) {
	assert := assert.New(t)

	assert.Empty(acceptance.Feedback(model.Approved()))
	assert.Equal("Rejected by the critic gate:\n- no tests\n- no docs", acceptance.Feedback(model.Rejected("critic", "no tests", "no docs")))
	assert.Equal("Rejected by the compile gate:\n`go vet` failed:\nx", acceptance.Feedback(model.Rejected("compile", "`go vet` failed:\nx")))
}
