package lib

import (
	"context"
	"fmt"

	"github.com/slok/ralph/internal/app/checknetwork"
	"github.com/slok/ralph/internal/app/history"
	"github.com/slok/ralph/internal/app/status"
	"github.com/slok/ralph/internal/engine"
	"github.com/slok/ralph/internal/network"
)

// Status returns the progress of the project run. Without an active run the
// returned status has a nil Run.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	svc, err := status.NewService(status.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	st, err := svc.Run(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalStatus(*st)
	return &result, nil
}

// HistoryOpts filters the history entries.
type HistoryOpts struct {
	// CurrentRun only returns the entries of the active run.
	CurrentRun bool
	// Last only returns the last N entries, 0 returns all.
	Last int
}

// History returns the audit log of the project, oldest first.
// Pass nil opts to get every entry.
func (c *Client) History(ctx context.Context, opts *HistoryOpts) ([]HistoryEntry, error) {
	if opts == nil {
		opts = &HistoryOpts{}
	}

	svc, err := history.NewService(history.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	entries, err := svc.Run(ctx, history.Request{
		CurrentRun: opts.CurrentRun,
		Last:       opts.Last,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalHistory(entries), nil
}

// NetworkStatus is the connectivity seen by the engine.
type NetworkStatus struct {
	// Reachable is true when any probe host answered.
	Reachable     bool
	ForcedOffline bool
	Checks        []CheckResult
}

// CheckNetwork probes connectivity with the project probe hosts.
func (c *Client) CheckNetwork(ctx context.Context) (*NetworkStatus, error) {
	return c.checkNetwork(ctx, nil)
}

// SetForcedOffline sets or clears the offline override. While it's set the
// engine sees the network as down, which is handy to pause a run on purpose.
func (c *Client) SetForcedOffline(ctx context.Context, offline bool) (*NetworkStatus, error) {
	return c.checkNetwork(ctx, &offline)
}

func (c *Client) checkNetwork(ctx context.Context, forceOffline *bool) (*NetworkStatus, error) {
	prober, err := engine.NewProber(c.settings.Network, c.dir, c.logger)
	if err != nil {
		return nil, mapError(err)
	}

	offlineFile := engine.OfflineFile(c.dir)
	svc, err := checknetwork.NewService(checknetwork.ServiceConfig{
		Prober:           prober,
		SetForcedOffline: func(offline bool) error { return network.SetForcedOffline(offlineFile, offline) },
		Logger:           c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, checknetwork.Request{ForceOffline: forceOffline})
	if err != nil {
		return nil, mapError(err)
	}

	return &NetworkStatus{
		Reachable:     res.Reachable,
		ForcedOffline: res.ForcedOffline,
		Checks:        fromInternalCheckResults(res.Checks),
	}, nil
}
