package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/loop"
)

type ResumeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	engine engineFlags
	format string
}

// NewResumeCommand returns the resume command.
func NewResumeCommand(rootCmd *RootCommand, app *kingpin.Application) *ResumeCommand {
	c := &ResumeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("resume", "Continue an interrupted or halted run from its checkpoint.")
	registerEngineFlags(c.Cmd, &c.engine)
	c.Cmd.Flag("format", "Report output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ResumeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ResumeCommand) Run(ctx context.Context) error {
	return c.rootCmd.runLoop(ctx, c.engine, c.format, (*loop.Service).Resume)
}
