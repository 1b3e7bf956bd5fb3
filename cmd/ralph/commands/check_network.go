package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/checknetwork"
	"github.com/slok/ralph/internal/engine"
	"github.com/slok/ralph/internal/network"
)

type CheckNetworkCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	forceOffline bool
	clearOffline bool
	format       string
}

// NewCheckNetworkCommand returns the check network command.
func NewCheckNetworkCommand(rootCmd *RootCommand, app *kingpin.Application) *CheckNetworkCommand {
	c := &CheckNetworkCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("check-network", "Probe internet connectivity.")
	c.Cmd.Flag("force-offline", "Make the engine see the network as down until cleared.").BoolVar(&c.forceOffline)
	c.Cmd.Flag("clear-offline", "Remove the forced offline override.").BoolVar(&c.clearOffline)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c CheckNetworkCommand) Name() string { return c.Cmd.FullCommand() }

func (c CheckNetworkCommand) Run(ctx context.Context) error {
	if c.forceOffline && c.clearOffline {
		return fmt.Errorf("--force-offline and --clear-offline are exclusive")
	}

	settings, err := c.rootCmd.LoadSettings(ctx)
	if err != nil {
		return err
	}
	dir, err := c.rootCmd.ProjectDir()
	if err != nil {
		return err
	}
	offlineFile := engine.OfflineFile(dir)

	prober, err := engine.NewProber(settings.Network, dir, c.rootCmd.Logger)
	if err != nil {
		return err
	}

	svc, err := checknetwork.NewService(checknetwork.ServiceConfig{
		Prober:           prober,
		SetForcedOffline: func(offline bool) error { return network.SetForcedOffline(offlineFile, offline) },
		Logger:           c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	req := checknetwork.Request{}
	switch {
	case c.forceOffline:
		req.ForceOffline = &c.forceOffline
	case c.clearOffline:
		off := false
		req.ForceOffline = &off
	}

	res, err := svc.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("could not check network: %w", err)
	}

	p := c.rootCmd.Printer(c.format)
	if err := p.PrintChecks(res.Checks); err != nil {
		return fmt.Errorf("could not print checks: %w", err)
	}
	if c.format == formatTable {
		msg := "Network is reachable"
		switch {
		case res.ForcedOffline:
			msg = "Network is forced offline"
		case !res.Reachable:
			msg = "Network is unreachable"
		}
		if err := p.PrintMessage(msg); err != nil {
			return fmt.Errorf("could not print message: %w", err)
		}
	}

	return nil
}
