package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/disable"
)

type DisableCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewDisableCommand returns the disable command.
func NewDisableCommand(rootCmd *RootCommand, app *kingpin.Application) *DisableCommand {
	c := &DisableCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("disable", "Stop the active run and remove its files, the history is kept.")
	return c
}

func (c DisableCommand) Name() string { return c.Cmd.FullCommand() }

func (c DisableCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.RunRepository()
	if err != nil {
		return err
	}

	memories, err := c.rootCmd.MemoryRepository(ctx)
	if err != nil {
		return err
	}
	defer memories.Close()

	svc, err := disable.NewService(disable.ServiceConfig{
		Repository: repo,
		Memories:   memories,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	state, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("could not disable run: %w", err)
	}

	msg := "No active run"
	if state != nil {
		msg = fmt.Sprintf("Run %s disabled at iteration %d", state.RunID, state.Iteration)
	}
	if err := c.rootCmd.Printer(formatTable).PrintMessage(msg); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
