package batchinit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/app/batchinit"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/storagemock"
)

type staticLoader struct {
	tasks []model.Task
	err   error
	path  string
}

func (l *staticLoader) GetTasks(_ context.Context, path string) ([]model.Task, error) {
	l.path = path
	return l.tasks, l.err
}

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config batchinit.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: batchinit.ServiceConfig{Repository: &storagemock.MockRunRepository{}, Loader: &staticLoader{}},
		},
		"missing repository should fail": {
			config: batchinit.ServiceConfig{Loader: &staticLoader{}},
			expErr: true,
		},
		"missing loader should fail": {
			config: batchinit.ServiceConfig{Repository: &storagemock.MockRunRepository{}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := batchinit.NewService(test.config)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_Run(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: "TASK-001", Title: "First", Prompt: "Do the first"},
		{ID: "TASK-002", Title: "Second", Prompt: "Do the second"},
	}

	tests := map[string]struct {
		loader   *staticLoader
		mock     func(m *storagemock.MockRunRepository)
		req      batchinit.Request
		expState model.RunState
		expErr   bool
		expErrIs error
	}{
		"A batch run should start at the first task with the batch defaults.": {
			loader: &staticLoader{tasks: tasks},
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(nil, model.ErrNotFound)
				m.On("ClearCheckpoint", mock.Anything).Once().Return(nil)
				m.On("SaveTasks", mock.Anything, tasks).Once().Return(nil)
				m.On("SaveState", mock.Anything, mock.Anything).Once().Return(nil)
				m.On("AppendHistory", mock.Anything, mock.MatchedBy(func(e model.HistoryEntry) bool {
					return e.Outcome == model.HistoryOutcomeEnabled && e.Notes == "batch of 2 tasks"
				})).Once().Return(nil)
			},
			req: batchinit.Request{TasksFile: "tasks.yaml", CompletionPromise: "DONE"},
			expState: model.RunState{
				RunID:             "01TEST",
				Iteration:         1,
				MaxIterations:     model.DefaultBatchMaxIterations,
				CompletionPromise: "DONE",
				Mode:              model.RunModeBatch,
				TasksTotal:        2,
				CurrentTaskID:     "TASK-001",
				Model:             model.DefaultModel,
				FallbackModel:     model.DefaultFallbackModel,
				StartedAt:         now,
				UpdatedAt:         now,
			},
		},

		"An active run should fail.": {
			loader: &staticLoader{tasks: tasks},
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(&model.RunState{}, nil)
			},
			req:      batchinit.Request{TasksFile: "tasks.yaml"},
			expErr:   true,
			expErrIs: model.ErrRunActive,
		},

		"A task file that can't be loaded should fail.": {
			loader: &staticLoader{err: fmt.Errorf("no tasks: %w", model.ErrNotValid)},
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(nil, model.ErrNotFound)
			},
			req:      batchinit.Request{TasksFile: "tasks.yaml"},
			expErr:   true,
			expErrIs: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := &storagemock.MockRunRepository{}
			test.mock(m)

			svc, err := batchinit.NewService(batchinit.ServiceConfig{
				Repository: m,
				Loader:     test.loader,
				Now:        func() time.Time { return now },
				NewID:      func() string { return "01TEST" },
			})
			require.NoError(err)

			res, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				require.Error(err)
				if test.expErrIs != nil {
					assert.ErrorIs(err, test.expErrIs)
				}
			} else {
				require.NoError(err)
				assert.Equal(test.expState, res.State)
				assert.Equal(tasks, res.Tasks)
				assert.Equal(test.req.TasksFile, test.loader.path)
			}

			m.AssertExpectations(t)
		})
	}
}
