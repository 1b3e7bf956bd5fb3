package nextcontext_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/app/nextcontext"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/storagemock"
)

type fakeBuilder struct {
	state model.RunState
	goal  model.Goal
	err   error
}

func (f *fakeBuilder) BuildContext(_ context.Context, state model.RunState, goal model.Goal) (string, error) {
	f.state, f.goal = state, goal
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("# Iteration %d\n%s", state.Iteration, goal.Prompt), nil
}

func TestService_Run(t *testing.T) {
	promise := "API DONE"
	tasks := []model.Task{
		{ID: "TASK-001", Title: "API", Prompt: "Build the API", CompletionPromise: &promise},
		{ID: "TASK-002", Title: "CLI", Prompt: "Build the CLI"},
	}

	tests := map[string]struct {
		mock       func(m *storagemock.MockRunRepository)
		builderErr error
		expResult  *nextcontext.Result
		expErr     bool
		expErrIs   error
	}{
		"A single run should render its prompt.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(&model.RunState{RunID: "run1", Mode: model.RunModeSingle, Prompt: "Fix the tests", Iteration: 3, MaxIterations: 10}, nil)
			},
			expResult: &nextcontext.Result{
				Goal:   model.Goal{Prompt: "Fix the tests", MaxIterations: 10},
				Prompt: "# Iteration 3\nFix the tests",
			},
		},

		"A batch run should render the current task.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(&model.RunState{RunID: "run1", Mode: model.RunModeBatch, TasksTotal: 2, Iteration: 1, CompletionPromise: "DONE"}, nil)
				m.On("ListTasks", mock.Anything).Once().Return(tasks, nil)
			},
			expResult: &nextcontext.Result{
				Goal:   model.Goal{TaskID: "TASK-001", TaskTitle: "API", Prompt: "Build the API", CompletionPromise: "API DONE"},
				Prompt: "# Iteration 1\nBuild the API",
			},
		},

		"No active run should fail.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(nil, model.ErrNotFound)
			},
			expErr:   true,
			expErrIs: model.ErrNoActiveRun,
		},

		"A builder error should fail.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(&model.RunState{RunID: "run1", Mode: model.RunModeSingle, Prompt: "x"}, nil)
			},
			builderErr: fmt.Errorf("history corrupted"),
			expErr:     true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := &storagemock.MockRunRepository{}
			test.mock(m)
			b := &fakeBuilder{err: test.builderErr}

			svc, err := nextcontext.NewService(nextcontext.ServiceConfig{Repository: m, Builder: b})
			require.NoError(err)

			res, err := svc.Run(context.Background())
			if test.expErr {
				require.Error(err)
				if test.expErrIs != nil {
					assert.ErrorIs(err, test.expErrIs)
				}
				return
			}

			require.NoError(err)
			assert.Equal(test.expResult, res)
			assert.Equal(test.expResult.Goal, b.goal)
			m.AssertExpectations(t)
		})
	}
}
