package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/loop"
)

type SingleCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	engine engineFlags
	format string
}

// NewSingleCommand returns the single command.
func NewSingleCommand(rootCmd *RootCommand, app *kingpin.Application) *SingleCommand {
	c := &SingleCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("single", "Run exactly one iteration of the active run.")
	registerEngineFlags(c.Cmd, &c.engine)
	c.Cmd.Flag("format", "Report output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c SingleCommand) Name() string { return c.Cmd.FullCommand() }

func (c SingleCommand) Run(ctx context.Context) error {
	return c.rootCmd.runLoop(ctx, c.engine, c.format, (*loop.Service).Single)
}
