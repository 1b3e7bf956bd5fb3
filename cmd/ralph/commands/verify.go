package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/status"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/verify"
)

// NewVerifyCommand returns the verify parent command.
func NewVerifyCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("verify", "Work with the goal verification commands.")
}

type VerifyShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewVerifyShowCommand returns the verify show command.
func NewVerifyShowCommand(rootCmd *RootCommand, verifyCmd *kingpin.CmdClause) *VerifyShowCommand {
	c := &VerifyShowCommand{rootCmd: rootCmd}
	c.Cmd = verifyCmd.Command("show", "List the verification commands found in the current goal.")
	return c
}

func (c VerifyShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c VerifyShowCommand) Run(ctx context.Context) error {
	cmds, err := goalVerificationCommands(ctx, *c.rootCmd)
	if err != nil {
		return err
	}

	p := c.rootCmd.Printer(formatTable)
	if len(cmds) == 0 {
		return p.PrintMessage("No verification commands in the current goal")
	}
	for _, cmd := range cmds {
		if err := p.PrintMessage(cmd); err != nil {
			return fmt.Errorf("could not print command: %w", err)
		}
	}

	return nil
}

type VerifyRunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewVerifyRunCommand returns the verify run command.
func NewVerifyRunCommand(rootCmd *RootCommand, verifyCmd *kingpin.CmdClause) *VerifyRunCommand {
	c := &VerifyRunCommand{rootCmd: rootCmd}

	c.Cmd = verifyCmd.Command("run", "Run the verification commands found in the current goal.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c VerifyRunCommand) Name() string { return c.Cmd.FullCommand() }

func (c VerifyRunCommand) Run(ctx context.Context) error {
	cmds, err := goalVerificationCommands(ctx, *c.rootCmd)
	if err != nil {
		return err
	}

	settings, err := c.rootCmd.LoadSettings(ctx)
	if err != nil {
		return err
	}
	dir, err := c.rootCmd.ProjectDir()
	if err != nil {
		return err
	}

	runner, err := verify.NewRunner(verify.RunnerConfig{
		WorkDir:  dir,
		Timeout:  settings.Acceptance.VerifyTimeout,
		MaxLines: settings.Acceptance.FeedbackMaxLines,
		Logger:   c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create verification runner: %w", err)
	}

	ok, results, err := runner.Run(ctx, cmds)
	if err != nil {
		return fmt.Errorf("could not run verification: %w", err)
	}

	if err := c.rootCmd.Printer(c.format).PrintVerification(results); err != nil {
		return fmt.Errorf("could not print verification: %w", err)
	}
	if !ok {
		return fmt.Errorf("verification failed")
	}

	return nil
}

func goalVerificationCommands(ctx context.Context, rootCmd RootCommand) ([]string, error) {
	repo, err := rootCmd.RunRepository()
	if err != nil {
		return nil, err
	}

	svc, err := status.NewService(status.ServiceConfig{
		Repository: repo,
		Logger:     rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	st, err := svc.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get run status: %w", err)
	}
	if !st.Active() {
		return nil, fmt.Errorf("verification needs an active run: %w", model.ErrNoActiveRun)
	}

	return verify.ExtractCommands(st.Goal.Prompt), nil
}
