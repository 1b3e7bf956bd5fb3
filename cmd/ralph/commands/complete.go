package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/app/complete"
)

type CompleteCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	stdin  bool
	output []string
}

// NewCompleteCommand returns the complete command.
func NewCompleteCommand(rootCmd *RootCommand, app *kingpin.Application) *CompleteCommand {
	c := &CompleteCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("complete", "Check if an agent output claims the completion of the current goal, exits non zero when it doesn't.")
	c.Cmd.Flag("stdin", "Read the output to check from the standard input.").BoolVar(&c.stdin)
	c.Cmd.Arg("output", "Output to check, the last agent output is used when missing.").StringsVar(&c.output)

	return c
}

func (c CompleteCommand) Name() string { return c.Cmd.FullCommand() }

func (c CompleteCommand) Run(ctx context.Context) error {
	output := strings.Join(c.output, " ")
	if c.stdin {
		data, err := io.ReadAll(c.rootCmd.Stdin)
		if err != nil {
			return fmt.Errorf("could not read stdin: %w", err)
		}
		output = string(data)
	}

	repo, err := c.rootCmd.RunRepository()
	if err != nil {
		return err
	}

	svc, err := complete.NewService(complete.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, complete.Request{Output: output})
	if err != nil {
		return fmt.Errorf("could not check completion: %w", err)
	}

	tag := agent.PromiseTag(res.Goal.CompletionPromise)
	if !res.Detected {
		return fmt.Errorf("the output doesn't claim completion, %s not found", tag)
	}

	msg := fmt.Sprintf("Completion promise %s detected", tag)
	if err := c.rootCmd.Printer(formatTable).PrintMessage(msg); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
