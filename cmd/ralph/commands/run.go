package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/loop"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	engine engineFlags
	format string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Iterate the active run until the goal is accepted or the run halts.")
	registerEngineFlags(c.Cmd, &c.engine)
	c.Cmd.Flag("format", "Report output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	return c.rootCmd.runLoop(ctx, c.engine, c.format, (*loop.Service).Run)
}
