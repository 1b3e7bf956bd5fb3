package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/nextcontext"
	"github.com/slok/ralph/internal/iteration"
	"github.com/slok/ralph/internal/workspace"
)

type ContextCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewContextCommand returns the context command.
func NewContextCommand(rootCmd *RootCommand, app *kingpin.Application) *ContextCommand {
	c := &ContextCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("context", "Show the prompt the next iteration will send to the agent.").Alias("prompt")
	return c
}

func (c ContextCommand) Name() string { return c.Cmd.FullCommand() }

func (c ContextCommand) Run(ctx context.Context) error {
	settings, err := c.rootCmd.LoadSettings(ctx)
	if err != nil {
		return err
	}

	dir, err := c.rootCmd.ProjectDir()
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.RunRepository()
	if err != nil {
		return err
	}

	memories, err := c.rootCmd.MemoryRepository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := memories.Close(); err != nil {
			c.rootCmd.Logger.Warningf("Could not close memory bank: %s", err)
		}
	}()

	assemblerCfg := iteration.ContextAssemblerConfig{
		History:         repo,
		Outputs:         repo,
		Memories:        memories,
		OutputTailLines: settings.Loop.OutputTailLines,
		Logger:          c.rootCmd.Logger,
	}
	ws, err := workspace.New(workspace.WorkspaceConfig{Root: dir, Logger: c.rootCmd.Logger})
	if err != nil {
		return fmt.Errorf("could not create workspace: %w", err)
	}
	if ws.IsGitRepo(ctx) {
		assemblerCfg.Workspace = ws
	}
	assembler, err := iteration.NewContextAssembler(assemblerCfg)
	if err != nil {
		return fmt.Errorf("could not create context assembler: %w", err)
	}

	svc, err := nextcontext.NewService(nextcontext.ServiceConfig{
		Repository: repo,
		Builder:    assembler,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("could not build context: %w", err)
	}

	if err := c.rootCmd.Printer(formatTable).PrintMessage(res.Prompt); err != nil {
		return fmt.Errorf("could not print context: %w", err)
	}

	return nil
}
