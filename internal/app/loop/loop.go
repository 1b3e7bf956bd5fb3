// Package loop is the loop controller of a run: it drives the iterations, the
// acceptance of completion claims, the circuit breaker and the batch task list.
package loop

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/ralph/internal/acceptance"
	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/breaker"
	"github.com/slok/ralph/internal/hook"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// Executor runs iterations.
type Executor interface {
	Preflight(ctx context.Context, state model.RunState) error
	RunIteration(ctx context.Context, state model.RunState, goal model.Goal) (model.IterationResult, error)
	WaitNetwork(ctx context.Context, state model.RunState, goal model.Goal) (bool, error)
}

// Reviewer decides on completion claims.
type Reviewer interface {
	Review(ctx context.Context, claim acceptance.Claim) (model.ReviewVerdict, error)
}

// Committer saves the workspace changes of a completed goal.
type Committer interface {
	Commit(ctx context.Context, message string) (bool, error)
}

// HookRunner runs lifecycle hooks.
type HookRunner interface {
	Run(ctx context.Context, name string, env map[string]string)
}

// ServiceConfig is the configuration for the loop service.
type ServiceConfig struct {
	Repository storage.RunRepository
	Executor   Executor
	Reviewer   Reviewer
	// Optional collaborators.
	Memories  storage.MemoryRepository
	Committer Committer
	Hooks     HookRunner

	MaxConsecutiveFailures int
	Interval               time.Duration
	SkipPreflight          bool
	OutputTailLines        int
	Sleep                  func(ctx context.Context, d time.Duration) error
	Now                    func() time.Time
	NewID                  func() string
	Logger                 log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Executor == nil {
		return fmt.Errorf("executor is required")
	}
	if c.Reviewer == nil {
		return fmt.Errorf("reviewer is required")
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 3
	}
	if c.Interval < 0 {
		c.Interval = 0
	}
	if c.OutputTailLines <= 0 {
		c.OutputTailLines = 20
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = func() string { return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String() }
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Loop"})
	return nil
}

// Service is the loop controller. It drives iterations of the enabled run until
// the goal is accepted or the run halts.
type Service struct {
	repo        storage.RunRepository
	executor    Executor
	reviewer    Reviewer
	memories    storage.MemoryRepository
	committer   Committer
	hooks       HookRunner
	maxFailures int
	interval    time.Duration
	preflight   bool
	tailLines   int
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
	newID       func() string
	logger      log.Logger
}

// NewService returns a new loop service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:        cfg.Repository,
		executor:    cfg.Executor,
		reviewer:    cfg.Reviewer,
		memories:    cfg.Memories,
		committer:   cfg.Committer,
		hooks:       cfg.Hooks,
		maxFailures: cfg.MaxConsecutiveFailures,
		interval:    cfg.Interval,
		preflight:   !cfg.SkipPreflight,
		tailLines:   cfg.OutputTailLines,
		sleep:       cfg.Sleep,
		now:         cfg.Now,
		newID:       cfg.NewID,
		logger:      cfg.Logger,
	}, nil
}

// Run iterates until the run completes or halts.
func (s *Service) Run(ctx context.Context) (*model.LoopReport, error) {
	r, err := s.start(ctx, false)
	if err != nil {
		return r.report, err
	}
	if err := s.checkAgent(ctx, r); err != nil {
		return r.report, err
	}
	return s.loop(ctx, r, false)
}

// Single runs exactly one iteration.
func (s *Service) Single(ctx context.Context) (*model.LoopReport, error) {
	r, err := s.start(ctx, false)
	if err != nil {
		return r.report, err
	}
	if err := s.checkAgent(ctx, r); err != nil {
		return r.report, err
	}
	return s.loop(ctx, r, true)
}

// Resume continues a run from its checkpoint. Runs interrupted by the network
// wait for connectivity before the agent preflight, runs halted by the circuit
// breaker get their failure count reset.
func (s *Service) Resume(ctx context.Context) (*model.LoopReport, error) {
	r, err := s.start(ctx, true)
	if err != nil {
		return r.report, err
	}

	cp := r.checkpoint
	if cp == nil {
		s.logger.Infof("No checkpoint found, continuing at iteration %d", r.state.Iteration)
		if err := s.checkAgent(ctx, r); err != nil {
			return r.report, err
		}
		return s.loop(ctx, r, false)
	}

	if cp.Status == model.CheckpointStatusMaxFailuresReached {
		s.logger.Infof("Resetting consecutive failures after circuit breaker halt")
		r.state.ConsecutiveFailures = 0
		r.breaker.Reset()
		if err := s.saveState(ctx, r); err != nil {
			return r.report, err
		}
	}

	if cp.Status.NeedsNetwork() {
		r.report.Phase = model.LoopPhaseWaitingForNetwork
		s.logger.Infof("Interrupted by the network (%s), waiting for connectivity", cp.Status)

		goal, err := s.goal(ctx, r)
		if err != nil {
			return r.report, err
		}
		ok, err := s.executor.WaitNetwork(ctx, *r.state, goal)
		if err != nil {
			return s.interrupted(r, err)
		}
		if !ok {
			done, err := s.networkTimeout(ctx, r, goal, "")
			if err != nil {
				return s.interrupted(r, err)
			}
			if done {
				return r.report, r.haltErr()
			}
		}
	}

	if err := s.checkAgent(ctx, r); err != nil {
		return r.report, err
	}
	return s.loop(ctx, r, false)
}

// runCtx is the state of a loop execution.
type runCtx struct {
	state      *model.RunState
	tasks      []model.Task
	checkpoint *model.Checkpoint
	breaker    *breaker.Breaker
	report     *model.LoopReport
	haltNext   string
	logger     log.Logger
}

func (s *Service) start(ctx context.Context, resume bool) (*runCtx, error) {
	r := &runCtx{report: &model.LoopReport{Phase: model.LoopPhaseIdle}}

	state, err := s.repo.GetState(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return r, fmt.Errorf("enable a run first: %w", model.ErrNoActiveRun)
		}
		return r, fmt.Errorf("could not get run state: %w", err)
	}
	r.state = state
	r.report.Iteration = state.Iteration
	r.logger = s.logger.WithValues(log.Kv{"run": state.RunID})

	if state.IsBatch() {
		tasks, err := s.repo.ListTasks(ctx)
		if err != nil {
			return r, fmt.Errorf("could not list tasks: %w", err)
		}
		r.tasks = tasks
	}

	cp, err := s.repo.GetCheckpoint(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return r, fmt.Errorf("could not get checkpoint: %w", err)
	}
	if err == nil {
		r.checkpoint = cp
		r.logger.Infof("Resuming from checkpoint: %s at iteration %d (%s)", cp.Status, cp.Iteration, cp.Timestamp.Format(time.RFC3339))
		if cp.Status == model.CheckpointStatusMaxFailuresReached && !resume {
			r.report.Phase = model.LoopPhaseHalted
			r.report.HaltReason = model.HaltReasonMaxFailuresReached
			return r, &model.HaltError{Reason: model.HaltReasonMaxFailuresReached, NextStep: "inspect the last output and run `ralph resume` to continue"}
		}
	}

	b, err := breaker.New(s.maxFailures, state.ConsecutiveFailures)
	if err != nil {
		return r, err
	}
	r.breaker = b

	return r, nil
}

// checkAgent runs the agent preflight. A failed preflight halts the run and
// leaves a checkpoint so the next start announces it.
func (s *Service) checkAgent(ctx context.Context, r *runCtx) error {
	if !s.preflight {
		return nil
	}

	err := s.executor.Preflight(ctx, *r.state)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		_, err := s.interrupted(r, err)
		return err
	}

	r.report.Phase = model.LoopPhaseHalted
	r.report.HaltReason = model.HaltReasonPreflightFailed
	r.logger.Warningf("Run halted: %s, check the agent command and credentials then run `ralph resume`", model.HaltReasonPreflightFailed)

	goal, gerr := s.goal(ctx, r)
	if gerr != nil {
		return gerr
	}
	if cerr := s.saveCheckpoint(ctx, r, goal, model.CheckpointStatusIterationFailed, "", err.Error()); cerr != nil {
		return cerr
	}
	if herr := s.appendHistory(ctx, r, goal, model.HistoryOutcomeHalted, string(model.HaltReasonPreflightFailed)); herr != nil {
		return herr
	}

	return err
}

func (s *Service) loop(ctx context.Context, r *runCtx, once bool) (*model.LoopReport, error) {
	for {
		r.report.Phase = model.LoopPhaseRunning

		done, err := s.step(ctx, r)
		if err != nil {
			return s.interrupted(r, err)
		}
		if done || once {
			return r.report, r.haltErr()
		}

		if err := s.sleep(ctx, s.interval); err != nil {
			return s.interrupted(r, err)
		}
	}
}

// step runs one iteration and processes its result, it returns true when the
// run reached a terminal state.
func (s *Service) step(ctx context.Context, r *runCtx) (bool, error) {
	goal, err := s.goal(ctx, r)
	if err != nil {
		return false, err
	}

	if goal.LimitReached(r.state.Iteration) {
		return s.limitReached(ctx, r, goal)
	}

	logger := r.logger.WithValues(log.Kv{"iteration": r.state.Iteration, "task": goal.TaskID})
	logger.Infof("Starting iteration %d", r.state.Iteration)
	s.runHook(ctx, model.HookPreIteration, *r.state, 0)

	res, err := s.executor.RunIteration(ctx, *r.state, goal)
	if err != nil {
		return false, err
	}
	r.report.Iterations++
	s.runHook(ctx, model.HookPostIteration, *r.state, res.ExitCode)

	switch res.Outcome {
	case model.IterationOutcomeSuccess:
		return false, s.success(ctx, r, goal, res)
	case model.IterationOutcomeCompletionClaimed:
		return s.claim(ctx, r, goal, res)
	default:
		if res.FailureKind == model.FailureKindNetworkTimeout {
			return s.networkTimeout(ctx, r, goal, res.Output)
		}
		return s.failure(ctx, r, goal, res)
	}
}

func (s *Service) success(ctx context.Context, r *runCtx, goal model.Goal, res model.IterationResult) error {
	r.breaker.RecordSuccess()

	if err := s.clearCheckpoint(ctx); err != nil {
		return err
	}
	if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeSuccess, fmt.Sprintf("exit %d, model %s", res.ExitCode, res.Model)); err != nil {
		return err
	}
	s.remember(ctx, r, goal, model.MemoryKindEpisodic, fmt.Sprintf("Iteration %d finished successfully. Output tail: %s", r.state.Iteration, agent.Tail(res.Output, 3)))

	r.state.RejectionFeedback = ""
	r.state.ConsecutiveFailures = 0
	r.state.Iteration++
	return s.saveState(ctx, r)
}

func (s *Service) failure(ctx context.Context, r *runCtx, goal model.Goal, res model.IterationResult) (bool, error) {
	tripped := r.breaker.RecordFailure()
	r.logger.Warningf("Iteration %d failed: %s (%d/%d consecutive failures)", r.state.Iteration, res.FailureKind, r.breaker.Count(), s.maxFailures)

	status := model.CheckpointStatusIterationFailed
	if tripped {
		status = model.CheckpointStatusMaxFailuresReached
	}
	if err := s.saveCheckpoint(ctx, r, goal, status, agent.Tail(res.Output, s.tailLines), string(res.FailureKind)); err != nil {
		return false, err
	}
	if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeFailure, string(res.FailureKind)); err != nil {
		return false, err
	}
	s.remember(ctx, r, goal, model.MemoryKindError, fmt.Sprintf("Iteration %d failed (%s).", r.state.Iteration, res.FailureKind))

	if tripped {
		if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeHalted, string(model.HaltReasonMaxFailuresReached)); err != nil {
			return false, err
		}
	}

	r.state.ConsecutiveFailures = r.breaker.Count()
	r.state.Iteration++
	if err := s.saveState(ctx, r); err != nil {
		return false, err
	}

	if tripped {
		r.halt(model.HaltReasonMaxFailuresReached, "inspect the last output and run `ralph resume` to continue")
		return true, nil
	}
	return false, nil
}

func (s *Service) claim(ctx context.Context, r *runCtx, goal model.Goal, res model.IterationResult) (bool, error) {
	r.report.Phase = model.LoopPhaseVerifying
	r.logger.Infof("Verifying completion claim of iteration %d", r.state.Iteration)

	verdict, err := s.reviewer.Review(ctx, acceptance.Claim{
		State:     *r.state,
		Goal:      goal,
		Iteration: r.state.Iteration,
		Output:    res.Output,
	})
	if err != nil {
		return false, fmt.Errorf("could not review completion claim: %w", err)
	}
	r.breaker.RecordSuccess()

	if !verdict.Approved {
		feedback := acceptance.Feedback(verdict)
		r.logger.Warningf("Completion claim rejected by the %s gate", verdict.Gate)

		if err := s.clearCheckpoint(ctx); err != nil {
			return false, err
		}
		if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeRejected, verdict.Gate); err != nil {
			return false, err
		}
		s.remember(ctx, r, goal, model.MemoryKindError, fmt.Sprintf("Completion claim of iteration %d rejected. %s", r.state.Iteration, feedback))

		r.state.RejectionFeedback = feedback
		r.state.ConsecutiveFailures = r.breaker.Count()
		r.state.Iteration++
		return false, s.saveState(ctx, r)
	}

	r.logger.Infof("Completion accepted on iteration %d", r.state.Iteration)
	s.commit(ctx, r, goal)

	if !r.state.IsBatch() {
		if err := s.clearCheckpoint(ctx); err != nil {
			return false, err
		}
		if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeCompleted, ""); err != nil {
			return false, err
		}
		s.runHook(ctx, model.HookOnCompletion, *r.state, res.ExitCode)
		return true, s.finish(ctx, r, model.LoopPhaseCompleted)
	}

	if err := s.clearCheckpoint(ctx); err != nil {
		return false, err
	}
	if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeTaskCompleted, goal.TaskTitle); err != nil {
		return false, err
	}
	s.remember(ctx, r, goal, model.MemoryKindSemantic, fmt.Sprintf("Task %s was completed and accepted.", goal.TaskID))
	return s.advanceTask(ctx, r)
}

// networkTimeout handles an exhausted network wait: batch runs skip the task,
// single runs halt.
func (s *Service) networkTimeout(ctx context.Context, r *runCtx, goal model.Goal, output string) (bool, error) {
	r.logger.Warningf("Network not restored for iteration %d", r.state.Iteration)

	if r.state.IsBatch() {
		return s.skipTask(ctx, r, goal, "network timeout")
	}

	if err := s.saveCheckpoint(ctx, r, goal, model.CheckpointStatusNetworkTimeout, agent.Tail(output, s.tailLines), "network wait budget exhausted"); err != nil {
		return false, err
	}
	if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeHalted, string(model.HaltReasonNetworkTimeout)); err != nil {
		return false, err
	}
	r.halt(model.HaltReasonNetworkTimeout, "run `ralph resume` once the network is back")
	return true, nil
}

func (s *Service) limitReached(ctx context.Context, r *runCtx, goal model.Goal) (bool, error) {
	r.logger.Warningf("Iteration limit of %d reached", goal.MaxIterations)

	if r.state.IsBatch() {
		if err := s.clearCheckpoint(ctx); err != nil {
			return false, err
		}
		if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeTaskMaxReached, fmt.Sprintf("limit %d", goal.MaxIterations)); err != nil {
			return false, err
		}
		r.state.TasksSkipped++
		return s.advanceTask(ctx, r)
	}

	if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeHalted, string(model.HaltReasonLimitReached)); err != nil {
		return false, err
	}
	r.halt(model.HaltReasonLimitReached, "review the work and run `ralph disable`, or enable a new run with a higher limit")
	return true, nil
}

func (s *Service) skipTask(ctx context.Context, r *runCtx, goal model.Goal, reason string) (bool, error) {
	if err := s.clearCheckpoint(ctx); err != nil {
		return false, err
	}
	if err := s.appendHistory(ctx, r, goal, model.HistoryOutcomeTaskSkipped, reason); err != nil {
		return false, err
	}
	r.state.TasksSkipped++
	return s.advanceTask(ctx, r)
}

// advanceTask moves a batch run to its next task. When there are no tasks left
// the run ends.
func (s *Service) advanceTask(ctx context.Context, r *runCtx) (bool, error) {
	r.state.CurrentTaskIndex++
	r.state.Iteration = 1
	r.state.RejectionFeedback = ""
	r.state.ConsecutiveFailures = 0
	r.breaker.Reset()

	if r.state.CurrentTaskIndex < len(r.tasks) {
		next := r.tasks[r.state.CurrentTaskIndex]
		r.state.CurrentTaskID = next.ID
		r.logger.Infof("Moving to task %s (%d/%d)", next.ID, r.state.CurrentTaskIndex+1, len(r.tasks))
		return false, s.saveState(ctx, r)
	}

	if r.state.TasksSkipped > 0 {
		if err := s.appendHistory(ctx, r, model.Goal{}, model.HistoryOutcomeHalted, fmt.Sprintf("%s: %d", model.HaltReasonTasksSkipped, r.state.TasksSkipped)); err != nil {
			return false, err
		}
		r.halt(model.HaltReasonTasksSkipped, "review the skipped tasks with `ralph history`")
		return true, s.finish(ctx, r, model.LoopPhaseHalted)
	}

	if err := s.appendHistory(ctx, r, model.Goal{}, model.HistoryOutcomeCompleted, fmt.Sprintf("%d tasks", len(r.tasks))); err != nil {
		return false, err
	}
	s.runHook(ctx, model.HookOnCompletion, *r.state, 0)
	return true, s.finish(ctx, r, model.LoopPhaseCompleted)
}

// finish removes the run, the history stays as the audit log.
func (s *Service) finish(ctx context.Context, r *runCtx, phase model.LoopPhase) error {
	r.report.Phase = phase
	r.report.Iteration = r.state.Iteration

	if err := s.repo.ClearCheckpoint(ctx); err != nil {
		return fmt.Errorf("could not clear checkpoint: %w", err)
	}
	if r.state.IsBatch() {
		if err := s.repo.DeleteTasks(ctx); err != nil {
			return fmt.Errorf("could not delete tasks: %w", err)
		}
	}
	if err := s.repo.DeleteState(ctx); err != nil {
		return fmt.Errorf("could not delete run state: %w", err)
	}
	return nil
}

func (s *Service) goal(ctx context.Context, r *runCtx) (model.Goal, error) {
	if !r.state.IsBatch() {
		return r.state.Goal(nil), nil
	}

	idx := r.state.CurrentTaskIndex
	if idx < 0 || idx >= len(r.tasks) {
		return model.Goal{}, fmt.Errorf("task index %d out of range, %d tasks: %w", idx, len(r.tasks), model.ErrNotValid)
	}
	return r.state.Goal(&r.tasks[idx]), nil
}

func (s *Service) commit(ctx context.Context, r *runCtx, goal model.Goal) {
	if s.committer == nil {
		return
	}

	msg := fmt.Sprintf("ralph: complete iteration %d", r.state.Iteration)
	if goal.TaskID != "" {
		msg = fmt.Sprintf("ralph: complete %s %s", goal.TaskID, goal.TaskTitle)
	}
	if _, err := s.committer.Commit(ctx, msg); err != nil {
		r.logger.Warningf("Could not commit completed work: %s", err)
	}
}

func (s *Service) remember(ctx context.Context, r *runCtx, goal model.Goal, kind model.MemoryKind, content string) {
	if s.memories == nil {
		return
	}

	err := s.memories.AddMemory(ctx, model.Memory{
		ID:        s.newID(),
		RunID:     r.state.RunID,
		TaskID:    goal.TaskID,
		Iteration: r.state.Iteration,
		Kind:      kind,
		Content:   content,
		CreatedAt: s.now(),
	})
	if err != nil {
		r.logger.Warningf("Could not record memory: %s", err)
	}
}

func (s *Service) runHook(ctx context.Context, name string, state model.RunState, exitCode int) {
	if s.hooks == nil {
		return
	}
	s.hooks.Run(ctx, name, hook.Env(state, exitCode))
}

func (s *Service) appendHistory(ctx context.Context, r *runCtx, goal model.Goal, outcome model.HistoryOutcome, notes string) error {
	err := s.repo.AppendHistory(ctx, model.HistoryEntry{
		ID:        s.newID(),
		RunID:     r.state.RunID,
		Iteration: r.state.Iteration,
		TaskID:    goal.TaskID,
		Outcome:   outcome,
		Notes:     notes,
		Timestamp: s.now(),
	})
	if err != nil {
		return fmt.Errorf("could not append history: %w", err)
	}
	return nil
}

func (s *Service) saveCheckpoint(ctx context.Context, r *runCtx, goal model.Goal, status model.CheckpointStatus, tail, detail string) error {
	err := s.repo.SaveCheckpoint(ctx, model.Checkpoint{
		Status:     status,
		Iteration:  r.state.Iteration,
		TaskID:     goal.TaskID,
		Timestamp:  s.now(),
		PID:        os.Getpid(),
		OutputTail: tail,
		Detail:     detail,
	})
	if err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}
	return nil
}

func (s *Service) clearCheckpoint(ctx context.Context) error {
	if err := s.repo.ClearCheckpoint(ctx); err != nil {
		return fmt.Errorf("could not clear checkpoint: %w", err)
	}
	return nil
}

func (s *Service) saveState(ctx context.Context, r *runCtx) error {
	r.state.UpdatedAt = s.now()
	r.report.Iteration = r.state.Iteration
	if err := s.repo.SaveState(ctx, *r.state); err != nil {
		return fmt.Errorf("could not save run state: %w", err)
	}
	return nil
}

// interrupted reports a loop stopped by an error. Cancellations leave the
// checkpoint in place so the run can be resumed.
func (s *Service) interrupted(r *runCtx, err error) (*model.LoopReport, error) {
	r.report.Phase = model.LoopPhaseHalted
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.report.HaltReason = model.HaltReasonInterrupted
		r.logger.Warningf("Interrupted at iteration %d, run `ralph resume` to continue", r.state.Iteration)
	}
	return r.report, err
}

func (r *runCtx) halt(reason model.HaltReason, next string) {
	r.report.Phase = model.LoopPhaseHalted
	r.report.HaltReason = reason
	r.report.Iteration = r.state.Iteration
	r.logger.Warningf("Run halted: %s, %s", reason, next)
	r.haltNext = next
}

func (r *runCtx) haltErr() error {
	if r.report.Phase != model.LoopPhaseHalted {
		return nil
	}
	return &model.HaltError{Reason: r.report.HaltReason, NextStep: r.haltNext}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
