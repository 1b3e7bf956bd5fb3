package complete_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/app/complete"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/storagemock"
)

func TestService_Run(t *testing.T) {
	single := &model.RunState{RunID: "run1", Mode: model.RunModeSingle, Prompt: "Fix it", CompletionPromise: "DONE"}
	taskPromise := "API DONE"
	tasks := []model.Task{{ID: "TASK-001", Prompt: "Build the API", CompletionPromise: &taskPromise}}
	batch := &model.RunState{RunID: "run1", Mode: model.RunModeBatch, TasksTotal: 1, CompletionPromise: "DONE"}

	tests := map[string]struct {
		mock      func(m *storagemock.MockRunRepository)
		req       complete.Request
		expResult *complete.Result
		expErr    bool
		expErrIs  error
	}{
		"An output with the promise should be detected.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(single, nil)
			},
			req:       complete.Request{Output: "all green\n<promise> DONE </promise>"},
			expResult: &complete.Result{Goal: model.Goal{Prompt: "Fix it", CompletionPromise: "DONE"}, Detected: true},
		},

		"An output with another promise should not be detected.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(single, nil)
			},
			req:       complete.Request{Output: "<promise>ALMOST DONE</promise>"},
			expResult: &complete.Result{Goal: model.Goal{Prompt: "Fix it", CompletionPromise: "DONE"}},
		},

		"Without output the last saved output should be checked.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(single, nil)
				m.On("GetOutput", mock.Anything).Once().Return("<promise>DONE</promise>", nil)
			},
			expResult: &complete.Result{Goal: model.Goal{Prompt: "Fix it", CompletionPromise: "DONE"}, Detected: true},
		},

		"A batch run should use the task promise.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(batch, nil)
				m.On("ListTasks", mock.Anything).Once().Return(tasks, nil)
			},
			req:       complete.Request{Output: "<promise>DONE</promise>"},
			expResult: &complete.Result{Goal: model.Goal{TaskID: "TASK-001", Prompt: "Build the API", CompletionPromise: "API DONE"}},
		},

		"A goal without promise should fail.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(&model.RunState{RunID: "run1", Mode: model.RunModeSingle, Prompt: "Fix it"}, nil)
			},
			req:      complete.Request{Output: "<promise>DONE</promise>"},
			expErr:   true,
			expErrIs: model.ErrNotValid,
		},

		"No active run should fail.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(nil, model.ErrNotFound)
			},
			expErr:   true,
			expErrIs: model.ErrNoActiveRun,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := &storagemock.MockRunRepository{}
			test.mock(m)

			svc, err := complete.NewService(complete.ServiceConfig{Repository: m})
			require.NoError(err)

			res, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				require.Error(err)
				if test.expErrIs != nil {
					assert.ErrorIs(err, test.expErrIs)
				}
				return
			}

			require.NoError(err)
			assert.Equal(test.expResult, res)
			m.AssertExpectations(t)
		})
	}
}
