package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/batchinit"
	"github.com/slok/ralph/internal/model"
	storageio "github.com/slok/ralph/internal/storage/io"
)

type BatchInitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	tasksFile         string
	maxIterations     int
	completionPromise string
	model             string
	fallbackModel     string
	autoSubagents     bool
	format            string
}

// NewBatchInitCommand returns the batch init command.
func NewBatchInitCommand(rootCmd *RootCommand, app *kingpin.Application) *BatchInitCommand {
	c := &BatchInitCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("batch-init", "Start a new run that works through a list of tasks.")
	c.Cmd.Arg("tasks-file", "YAML or JSON tasks file.").Required().StringVar(&c.tasksFile)
	c.Cmd.Flag("max-iterations", "Iteration limit per task, tasks can override it. Defaults to 20.").Default("0").IntVar(&c.maxIterations)
	c.Cmd.Flag("completion-promise", "Phrase the agent must output to claim a task completion.").StringVar(&c.completionPromise)
	c.Cmd.Flag("model", "Agent model.").Default(model.DefaultModel).StringVar(&c.model)
	c.Cmd.Flag("fallback-model", "Agent model used when the main one is unavailable.").Default(model.DefaultFallbackModel).StringVar(&c.fallbackModel)
	c.Cmd.Flag("auto-subagents", "Let the agent delegate to subagents.").BoolVar(&c.autoSubagents)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c BatchInitCommand) Name() string { return c.Cmd.FullCommand() }

func (c BatchInitCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.RunRepository()
	if err != nil {
		return err
	}

	fsys, name, err := fileFS(c.tasksFile)
	if err != nil {
		return err
	}

	svc, err := batchinit.NewService(batchinit.ServiceConfig{
		Repository: repo,
		Loader:     storageio.NewTasksFileRepository(fsys),
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, batchinit.Request{
		TasksFile:         name,
		MaxIterations:     c.maxIterations,
		CompletionPromise: c.completionPromise,
		Model:             c.model,
		FallbackModel:     c.fallbackModel,
		AutoSubagents:     c.autoSubagents,
	})
	if err != nil {
		return fmt.Errorf("could not initialize batch: %w", err)
	}

	if err := c.rootCmd.Printer(c.format).PrintTasks(res.Tasks); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	return nil
}
