package checknetwork

import (
	"context"
	"fmt"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
)

// Prober probes connectivity.
type Prober interface {
	Check(ctx context.Context) []model.CheckResult
	ForcedOffline() bool
}

// ServiceConfig is the configuration for the check network service.
type ServiceConfig struct {
	Prober Prober
	// SetForcedOffline toggles the offline override.
	SetForcedOffline func(offline bool) error
	Logger           log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Prober == nil {
		return fmt.Errorf("prober is required")
	}
	if c.SetForcedOffline == nil {
		return fmt.Errorf("offline override setter is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.CheckNetwork"})
	return nil
}

// Service checks connectivity the same way the loop does.
type Service struct {
	prober     Prober
	setOffline func(offline bool) error
	logger     log.Logger
}

// NewService creates a new check network service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		prober:     cfg.Prober,
		setOffline: cfg.SetForcedOffline,
		logger:     cfg.Logger,
	}, nil
}

// Request represents the check network request parameters.
type Request struct {
	// ForceOffline sets (true) or clears (false) the offline override before
	// probing, nil leaves it untouched.
	ForceOffline *bool
}

// Result is the connectivity report.
type Result struct {
	Reachable     bool
	ForcedOffline bool
	Checks        []model.CheckResult
}

// Run probes connectivity.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ForceOffline != nil {
		if err := s.setOffline(*req.ForceOffline); err != nil {
			return nil, err
		}
		s.logger.Infof("Offline override set to %t", *req.ForceOffline)
	}

	checks := s.prober.Check(ctx)

	return &Result{
		// Any reachable host is enough.
		Reachable:     !model.AllErrors(checks),
		ForcedOffline: s.prober.ForcedOffline(),
		Checks:        checks,
	}, nil
}
