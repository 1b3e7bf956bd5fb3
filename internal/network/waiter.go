package network

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// Checker reports internet connectivity.
type Checker interface {
	IsReachable(ctx context.Context) bool
}

// HookRunner runs a lifecycle hook with extra environment.
type HookRunner interface {
	Run(ctx context.Context, name string, env map[string]string)
}

// Sleeper blocks for a duration or until the context is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default context aware sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
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

// WaitResult is the outcome of waiting for connectivity.
type WaitResult string

const (
	WaitResultReachable WaitResult = "reachable"
	WaitResultTimedOut  WaitResult = "timed_out"
)

// WaiterConfig is the configuration for the connectivity waiter.
type WaiterConfig struct {
	Checker     Checker
	Checkpoints storage.CheckpointRepository
	Hooks       HookRunner
	InitialWait time.Duration
	MaxWait     time.Duration
	SettleDelay time.Duration
	Sleep       Sleeper
	Now         func() time.Time
	Logger      log.Logger
}

func (c *WaiterConfig) defaults() error {
	if c.Checker == nil {
		return fmt.Errorf("checker is required")
	}
	if c.Checkpoints == nil {
		return fmt.Errorf("checkpoint repository is required")
	}
	if c.InitialWait <= 0 {
		c.InitialWait = 5 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 300 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.Sleep == nil {
		c.Sleep = Sleep
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "network.Waiter"})
	return nil
}

// Waiter blocks until connectivity is back using capped exponential backoff.
type Waiter struct {
	checker     Checker
	checkpoints storage.CheckpointRepository
	hooks       HookRunner
	initialWait time.Duration
	maxWait     time.Duration
	settleDelay time.Duration
	sleep       Sleeper
	now         func() time.Time
	logger      log.Logger
}

// NewWaiter returns a new connectivity waiter.
func NewWaiter(cfg WaiterConfig) (*Waiter, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Waiter{
		checker:     cfg.Checker,
		checkpoints: cfg.Checkpoints,
		hooks:       cfg.Hooks,
		initialWait: cfg.InitialWait,
		maxWait:     cfg.MaxWait,
		settleDelay: cfg.SettleDelay,
		sleep:       cfg.Sleep,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}, nil
}

// WaitRequest is the request of a connectivity wait.
type WaitRequest struct {
	// Budget is the maximum accumulated wait, 0 means unbounded.
	Budget    time.Duration
	Iteration int
	TaskID    string
}

// WaitUntilReachable probes connectivity and, while unreachable, sleeps with
// exponential backoff. Every unreachable tick records a disconnected checkpoint
// and runs the network wait hook.
func (w *Waiter) WaitUntilReachable(ctx context.Context, req WaitRequest) (WaitResult, error) {
	backoff := NewBackoff(w.initialWait, w.maxWait)
	var waited time.Duration
	disconnected := false

	for {
		if w.checker.IsReachable(ctx) {
			if disconnected {
				w.logger.Infof("Connectivity restored after %s", waited)
				if err := w.saveCheckpoint(ctx, req, model.CheckpointStatusNetworkRestored, fmt.Sprintf("restored after %s", waited)); err != nil {
					return "", err
				}
				if err := w.sleep(ctx, w.settleDelay); err != nil {
					return "", err
				}
			}
			return WaitResultReachable, nil
		}

		if req.Budget > 0 && waited >= req.Budget {
			w.logger.Warningf("Connectivity not restored after %s, giving up", waited)
			if err := w.saveCheckpoint(ctx, req, model.CheckpointStatusNetworkTimeout, fmt.Sprintf("gave up after %s", waited)); err != nil {
				return "", err
			}
			return WaitResultTimedOut, nil
		}

		disconnected = true
		wait := backoff.Next()
		if req.Budget > 0 && waited+wait > req.Budget {
			wait = req.Budget - waited
		}

		if err := w.saveCheckpoint(ctx, req, model.CheckpointStatusNetworkDisconnected, fmt.Sprintf("waited %s, next probe in %s", waited, wait)); err != nil {
			return "", err
		}
		if w.hooks != nil {
			w.hooks.Run(ctx, model.HookOnNetworkWait, map[string]string{
				"RALPH_ITERATION":      strconv.Itoa(req.Iteration),
				"RALPH_TASK_ID":        req.TaskID,
				"RALPH_NETWORK_WAITED": strconv.Itoa(int(waited.Seconds())),
				"RALPH_NETWORK_NEXT":   strconv.Itoa(int(wait.Seconds())),
			})
		}

		w.logger.Warningf("Connectivity lost, retrying in %s", wait)
		if err := w.sleep(ctx, wait); err != nil {
			return "", err
		}
		waited += wait
	}
}

func (w *Waiter) saveCheckpoint(ctx context.Context, req WaitRequest, status model.CheckpointStatus, detail string) error {
	err := w.checkpoints.SaveCheckpoint(ctx, model.Checkpoint{
		Status:    status,
		Iteration: req.Iteration,
		TaskID:    req.TaskID,
		Timestamp: w.now(),
		PID:       os.Getpid(),
		Detail:    detail,
	})
	if err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}
	return nil
}
