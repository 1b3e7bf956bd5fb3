package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/tasks"
)

type TasksCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	remaining bool
	format    string
}

// NewTasksCommand returns the tasks command.
func NewTasksCommand(rootCmd *RootCommand, app *kingpin.Application) *TasksCommand {
	c := &TasksCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("tasks", "List the task list of the active batch run.")
	c.Cmd.Flag("remaining", "Only the current task and the ones after it.").BoolVar(&c.remaining)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c TasksCommand) Name() string { return c.Cmd.FullCommand() }

func (c TasksCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.RunRepository()
	if err != nil {
		return err
	}

	svc, err := tasks.NewService(tasks.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, tasks.Request{Remaining: c.remaining})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	p := c.rootCmd.Printer(c.format)
	if err := p.PrintTasks(res.Tasks); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}
	if c.format == formatTable {
		total := len(res.Tasks)
		if c.remaining {
			total += res.Done
		}
		msg := fmt.Sprintf("\nCurrent task: %s (%d of %d done)", res.Current.ID, res.Done, total)
		if err := p.PrintMessage(msg); err != nil {
			return fmt.Errorf("could not print message: %w", err)
		}
	}

	return nil
}
