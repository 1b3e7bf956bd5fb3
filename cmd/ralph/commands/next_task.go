package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/nexttask"
)

type NextTaskCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewNextTaskCommand returns the next task command.
func NewNextTaskCommand(rootCmd *RootCommand, app *kingpin.Application) *NextTaskCommand {
	c := &NextTaskCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("next-task", "Skip the current batch task and move to the next one.")
	return c
}

func (c NextTaskCommand) Name() string { return c.Cmd.FullCommand() }

func (c NextTaskCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.RunRepository()
	if err != nil {
		return err
	}

	svc, err := nexttask.NewService(nexttask.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("could not skip task: %w", err)
	}

	msg := fmt.Sprintf("Skipped %s, no tasks left, batch finished", res.Skipped.ID)
	if res.Next != nil {
		msg = fmt.Sprintf("Skipped %s, next task is %s: %s", res.Skipped.ID, res.Next.ID, res.Next.Title)
	}
	if err := c.rootCmd.Printer(formatTable).PrintMessage(msg); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
