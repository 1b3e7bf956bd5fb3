package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/enable"
	"github.com/slok/ralph/internal/model"
)

type EnableCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	prompt            string
	promptFile        string
	maxIterations     int
	completionPromise string
	model             string
	fallbackModel     string
	autoSubagents     bool
}

// NewEnableCommand returns the enable command.
func NewEnableCommand(rootCmd *RootCommand, app *kingpin.Application) *EnableCommand {
	c := &EnableCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("enable", "Start a new run for a single goal.")
	c.Cmd.Arg("prompt", "The goal prompt.").StringVar(&c.prompt)
	c.Cmd.Flag("prompt-file", "Read the goal prompt from a file.").StringVar(&c.promptFile)
	c.Cmd.Flag("max-iterations", "Iteration limit, 0 is unbounded.").Default("0").IntVar(&c.maxIterations)
	c.Cmd.Flag("completion-promise", "Phrase the agent must output to claim completion.").StringVar(&c.completionPromise)
	c.Cmd.Flag("model", "Agent model.").Default(model.DefaultModel).StringVar(&c.model)
	c.Cmd.Flag("fallback-model", "Agent model used when the main one is unavailable.").Default(model.DefaultFallbackModel).StringVar(&c.fallbackModel)
	c.Cmd.Flag("auto-subagents", "Let the agent delegate to subagents.").BoolVar(&c.autoSubagents)

	return c
}

func (c EnableCommand) Name() string { return c.Cmd.FullCommand() }

func (c EnableCommand) Run(ctx context.Context) error {
	prompt, err := readPrompt(c.prompt, c.promptFile)
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.RunRepository()
	if err != nil {
		return err
	}

	svc, err := enable.NewService(enable.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	state, err := svc.Run(ctx, enable.Request{
		Prompt:            prompt,
		MaxIterations:     c.maxIterations,
		CompletionPromise: c.completionPromise,
		Model:             c.model,
		FallbackModel:     c.fallbackModel,
		AutoSubagents:     c.autoSubagents,
	})
	if err != nil {
		return fmt.Errorf("could not enable run: %w", err)
	}

	msg := fmt.Sprintf("Run %s enabled, start it with `ralph run`", state.RunID)
	if err := c.rootCmd.Printer(formatTable).PrintMessage(msg); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}

func readPrompt(prompt, file string) (string, error) {
	if file != "" {
		if prompt != "" {
			return "", fmt.Errorf("prompt and prompt file are exclusive: %w", model.ErrNotValid)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("could not read prompt file: %w", err)
		}
		prompt = string(data)
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is required: %w", model.ErrNotValid)
	}

	return prompt, nil
}
