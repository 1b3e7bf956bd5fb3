package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/history"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	current bool
	last    int
	format  string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "Show the iteration history.")
	c.Cmd.Flag("current", "Only the active run entries.").BoolVar(&c.current)
	c.Cmd.Flag("last", "Only the last N entries, 0 shows all.").Short('n').Default("0").IntVar(&c.last)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.RunRepository()
	if err != nil {
		return err
	}

	svc, err := history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	entries, err := svc.Run(ctx, history.Request{
		CurrentRun: c.current,
		Last:       c.last,
	})
	if err != nil {
		return fmt.Errorf("could not list history: %w", err)
	}

	if err := c.rootCmd.Printer(c.format).PrintHistory(entries); err != nil {
		return fmt.Errorf("could not print history: %w", err)
	}

	return nil
}
