package nexttask_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/app/nexttask"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/storagemock"
)

func TestService_Run(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: "TASK-001", Prompt: "one"},
		{ID: "TASK-002", Prompt: "two"},
	}
	batch := func(idx int) *model.RunState {
		return &model.RunState{
			RunID:               "run1",
			Iteration:           4,
			Mode:                model.RunModeBatch,
			TasksTotal:          2,
			CurrentTaskIndex:    idx,
			CurrentTaskID:       tasks[idx].ID,
			ConsecutiveFailures: 2,
			RejectionFeedback:   "fix it",
		}
	}

	tests := map[string]struct {
		mock      func(m *storagemock.MockRunRepository)
		expResult *nexttask.Result
		expErr    bool
		expErrIs  error
	}{
		"Skipping a task should move to the next one with a fresh iteration.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(batch(0), nil)
				m.On("ListTasks", mock.Anything).Once().Return(tasks, nil)
				m.On("ClearCheckpoint", mock.Anything).Once().Return(nil)
				m.On("AppendHistory", mock.Anything, model.HistoryEntry{
					ID: "01TEST", RunID: "run1", Iteration: 4, TaskID: "TASK-001",
					Outcome: model.HistoryOutcomeTaskSkipped, Notes: "manual", Timestamp: now,
				}).Once().Return(nil)
				m.On("SaveState", mock.Anything, model.RunState{
					RunID:            "run1",
					Iteration:        1,
					Mode:             model.RunModeBatch,
					TasksTotal:       2,
					CurrentTaskIndex: 1,
					CurrentTaskID:    "TASK-002",
					TasksSkipped:     1,
					UpdatedAt:        now,
				}).Once().Return(nil)
			},
			expResult: &nexttask.Result{
				Skipped: tasks[0],
				Next:    &tasks[1],
				State: model.RunState{
					RunID:            "run1",
					Iteration:        1,
					Mode:             model.RunModeBatch,
					TasksTotal:       2,
					CurrentTaskIndex: 1,
					CurrentTaskID:    "TASK-002",
					TasksSkipped:     1,
					UpdatedAt:        now,
				},
			},
		},

		"Skipping the last task should end the batch.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(batch(1), nil)
				m.On("ListTasks", mock.Anything).Once().Return(tasks, nil)
				m.On("ClearCheckpoint", mock.Anything).Once().Return(nil)
				m.On("AppendHistory", mock.Anything, mock.MatchedBy(func(e model.HistoryEntry) bool {
					return e.Outcome == model.HistoryOutcomeTaskSkipped && e.TaskID == "TASK-002"
				})).Once().Return(nil)
				m.On("AppendHistory", mock.Anything, mock.MatchedBy(func(e model.HistoryEntry) bool {
					return e.Outcome == model.HistoryOutcomeHalted && e.Notes == "tasks_skipped: 1"
				})).Once().Return(nil)
				m.On("DeleteTasks", mock.Anything).Once().Return(nil)
				m.On("DeleteState", mock.Anything).Once().Return(nil)
			},
			expResult: &nexttask.Result{
				Skipped: tasks[1],
				State: model.RunState{
					RunID:            "run1",
					Iteration:        1,
					Mode:             model.RunModeBatch,
					TasksTotal:       2,
					CurrentTaskIndex: 2,
					CurrentTaskID:    "TASK-002",
					TasksSkipped:     1,
					UpdatedAt:        now,
				},
			},
		},

		"Without an active run should fail.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(nil, model.ErrNotFound)
			},
			expErr:   true,
			expErrIs: model.ErrNoActiveRun,
		},

		"A single run should fail.": {
			mock: func(m *storagemock.MockRunRepository) {
				m.On("GetState", mock.Anything).Once().Return(&model.RunState{Mode: model.RunModeSingle}, nil)
			},
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

			svc, err := nexttask.NewService(nexttask.ServiceConfig{
				Repository: m,
				Now:        func() time.Time { return now },
				NewID:      func() string { return "01TEST" },
			})
			require.NoError(err)

			res, err := svc.Run(context.Background())
			if test.expErr {
				require.Error(err)
				if test.expErrIs != nil {
					assert.ErrorIs(err, test.expErrIs)
				}
			} else {
				require.NoError(err)
				assert.Equal(test.expResult, res)
			}

			m.AssertExpectations(t)
		})
	}
}
