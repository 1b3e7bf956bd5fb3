package lib

import (
	"context"
	"errors"
	"time"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/model"
)

var (
	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned on invalid input or operation.
	ErrNotValid = errors.New("not valid")
	// ErrNoActiveRun is returned when an operation needs an enabled run.
	ErrNoActiveRun = errors.New("no active run")
	// ErrRunActive is returned when enabling a run while another one is active.
	ErrRunActive = errors.New("run already active")
	// ErrHalted is returned when the loop stops without completing the run.
	ErrHalted = errors.New("run halted")
)

// RunMode is the way a run iterates over its work.
type RunMode string

const (
	// RunModeSingle iterates a single goal until completion.
	RunModeSingle RunMode = "single"
	// RunModeBatch iterates an ordered list of tasks.
	RunModeBatch RunMode = "batch"
)

// Run is a snapshot of an enabled run state.
type Run struct {
	ID                string
	Mode              RunMode
	Prompt            string
	Iteration         int
	MaxIterations     int
	CompletionPromise string
	Model             string
	FallbackModel     string
	// Batch only.
	CurrentTaskIndex    int
	CurrentTaskID       string
	TasksTotal          int
	TasksSkipped        int
	ConsecutiveFailures int
	StartedAt           time.Time
	UpdatedAt           time.Time
}

// Task is a unit of work of a batch run.
type Task struct {
	ID     string
	Title  string
	Prompt string
	// MaxIterations and CompletionPromise override the run settings when set.
	MaxIterations     *int
	CompletionPromise *string
}

// Checkpoint is the last recorded point of the iteration in flight.
type Checkpoint struct {
	Status    string
	Iteration int
	TaskID    string
	Detail    string
	Timestamp time.Time
}

// Status is the progress of the project run.
type Status struct {
	// Run is nil when there is no active run.
	Run *Run
	// GoalPrompt is the prompt of the current goal (the task prompt on batch runs).
	GoalPrompt      string
	Checkpoint      *Checkpoint
	HistoryCount    int
	LastOutputBytes int64
}

// HistoryEntry is an audit log record.
type HistoryEntry struct {
	RunID     string
	Iteration int
	TaskID    string
	Outcome   string
	Notes     string
	Timestamp time.Time
}

// LoopPhase is the state of the loop when it returned.
type LoopPhase string

const (
	LoopPhaseIdle      LoopPhase = "idle"
	LoopPhaseRunning   LoopPhase = "running"
	LoopPhaseHalted    LoopPhase = "halted"
	LoopPhaseCompleted LoopPhase = "completed"
)

// Report is the outcome of a loop execution.
type Report struct {
	Phase LoopPhase
	// HaltReason is set when the phase is halted.
	HaltReason string
	// Iteration is the run iteration when the loop returned.
	Iteration int
	// Iterations is the number of iterations executed by this call.
	Iterations int
}

// CheckStatus represents the status of a connectivity check.
type CheckStatus string

const (
	CheckStatusOK      CheckStatus = "ok"
	CheckStatusWarning CheckStatus = "warning"
	CheckStatusError   CheckStatus = "error"
)

// CheckResult is the result of probing a single host.
type CheckResult struct {
	ID      string
	Message string
	Status  CheckStatus
}

// AgentRequest is an invocation of the agent.
type AgentRequest struct {
	Prompt string
	Model  string
	// Persona is `worker` for iterations, `critic` for reviews and `ping` for
	// the preflight check.
	Persona string
}

// AgentResponse is the answer of the agent.
type AgentResponse struct {
	Output   string
	ExitCode int
}

// AgentFunc is an in-process agent.
type AgentFunc func(ctx context.Context, req AgentRequest) (*AgentResponse, error)

func (f AgentFunc) runner() agent.Runner {
	return agent.RunnerFunc(func(ctx context.Context, inv agent.Invocation) (*agent.Result, error) {
		if inv.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := f(ctx, AgentRequest{Prompt: inv.Prompt, Model: inv.Model, Persona: inv.Persona})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				return &agent.Result{TimedOut: true, ExitCode: -1, Duration: time.Since(start)}, nil
			}
			return nil, err
		}

		return &agent.Result{Output: resp.Output, ExitCode: resp.ExitCode, Duration: time.Since(start)}, nil
	})
}

func fromInternalRun(s model.RunState) Run {
	return Run{
		ID:                  s.RunID,
		Mode:                RunMode(s.Mode),
		Prompt:              s.Prompt,
		Iteration:           s.Iteration,
		MaxIterations:       s.MaxIterations,
		CompletionPromise:   s.CompletionPromise,
		Model:               s.Model,
		FallbackModel:       s.FallbackModel,
		CurrentTaskIndex:    s.CurrentTaskIndex,
		CurrentTaskID:       s.CurrentTaskID,
		TasksTotal:          s.TasksTotal,
		TasksSkipped:        s.TasksSkipped,
		ConsecutiveFailures: s.ConsecutiveFailures,
		StartedAt:           s.StartedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func fromInternalTask(t model.Task) Task {
	return Task{
		ID:                t.ID,
		Title:             t.Title,
		Prompt:            t.Prompt,
		MaxIterations:     t.MaxIterations,
		CompletionPromise: t.CompletionPromise,
	}
}

func fromInternalTasks(ts []model.Task) []Task {
	result := make([]Task, len(ts))
	for i, t := range ts {
		result[i] = fromInternalTask(t)
	}
	return result
}

func toInternalTasks(ts []Task) []model.Task {
	result := make([]model.Task, len(ts))
	for i, t := range ts {
		result[i] = model.Task{
			ID:                t.ID,
			Title:             t.Title,
			Prompt:            t.Prompt,
			MaxIterations:     t.MaxIterations,
			CompletionPromise: t.CompletionPromise,
		}
	}
	return result
}

func fromInternalStatus(s model.RunStatus) Status {
	st := Status{
		GoalPrompt:      s.Goal.Prompt,
		HistoryCount:    s.HistoryCount,
		LastOutputBytes: s.LastOutputBytes,
	}
	if s.State != nil {
		r := fromInternalRun(*s.State)
		st.Run = &r
	}
	if s.Checkpoint != nil {
		st.Checkpoint = &Checkpoint{
			Status:    string(s.Checkpoint.Status),
			Iteration: s.Checkpoint.Iteration,
			TaskID:    s.Checkpoint.TaskID,
			Detail:    s.Checkpoint.Detail,
			Timestamp: s.Checkpoint.Timestamp,
		}
	}
	return st
}

func fromInternalHistory(es []model.HistoryEntry) []HistoryEntry {
	result := make([]HistoryEntry, len(es))
	for i, e := range es {
		result[i] = HistoryEntry{
			RunID:     e.RunID,
			Iteration: e.Iteration,
			TaskID:    e.TaskID,
			Outcome:   string(e.Outcome),
			Notes:     e.Notes,
			Timestamp: e.Timestamp,
		}
	}
	return result
}

func fromInternalReport(r *model.LoopReport) *Report {
	if r == nil {
		return nil
	}
	return &Report{
		Phase:      LoopPhase(r.Phase),
		HaltReason: string(r.HaltReason),
		Iteration:  r.Iteration,
		Iterations: r.Iterations,
	}
}

func fromInternalCheckResults(results []model.CheckResult) []CheckResult {
	out := make([]CheckResult, len(results))
	for i, r := range results {
		out[i] = CheckResult{
			ID:      r.ID,
			Message: r.Message,
			Status:  CheckStatus(r.Status),
		}
	}
	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrHalted):
		return joinErrors(err, ErrHalted)
	case errors.Is(err, model.ErrNoActiveRun):
		return joinErrors(err, ErrNoActiveRun)
	case errors.Is(err, model.ErrRunActive):
		return joinErrors(err, ErrRunActive)
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
