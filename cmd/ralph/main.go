package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/mattn/go-isatty"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/ralph/cmd/ralph/commands"
	"github.com/slok/ralph/internal/log"
	loglogrus "github.com/slok/ralph/internal/log/logrus"
	"github.com/slok/ralph/internal/model"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("ralph", "Supervisor loop that drives a coding agent until a goal is verifiably done.")
	app.Version(Version)
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	enableCmd := commands.NewEnableCommand(rootCmd, app)
	batchInitCmd := commands.NewBatchInitCommand(rootCmd, app)
	disableCmd := commands.NewDisableCommand(rootCmd, app)
	statusCmd := commands.NewStatusCommand(rootCmd, app)
	runCmd := commands.NewRunCommand(rootCmd, app)
	singleCmd := commands.NewSingleCommand(rootCmd, app)
	resumeCmd := commands.NewResumeCommand(rootCmd, app)
	nextTaskCmd := commands.NewNextTaskCommand(rootCmd, app)
	historyCmd := commands.NewHistoryCommand(rootCmd, app)
	checkNetworkCmd := commands.NewCheckNetworkCommand(rootCmd, app)
	tasksCmd := commands.NewTasksCommand(rootCmd, app)
	contextCmd := commands.NewContextCommand(rootCmd, app)
	completeCmd := commands.NewCompleteCommand(rootCmd, app)

	// Verify subcommands share a parent command.
	verifyCmd := commands.NewVerifyCommand(app)
	verifyShowCmd := commands.NewVerifyShowCommand(rootCmd, verifyCmd)
	verifyRunCmd := commands.NewVerifyRunCommand(rootCmd, verifyCmd)

	// Memory subcommands share a parent command.
	memoryCmd := commands.NewMemoryCommand(app)
	memoryListCmd := commands.NewMemoryListCommand(rootCmd, memoryCmd)
	memoryAddCmd := commands.NewMemoryAddCommand(rootCmd, memoryCmd)

	cmds := map[string]commands.Command{
		enableCmd.Name():       enableCmd,
		batchInitCmd.Name():    batchInitCmd,
		disableCmd.Name():      disableCmd,
		statusCmd.Name():       statusCmd,
		runCmd.Name():          runCmd,
		singleCmd.Name():       singleCmd,
		resumeCmd.Name():       resumeCmd,
		nextTaskCmd.Name():     nextTaskCmd,
		historyCmd.Name():      historyCmd,
		checkNetworkCmd.Name(): checkNetworkCmd,
		verifyShowCmd.Name():   verifyShowCmd,
		verifyRunCmd.Name():    verifyRunCmd,
		tasksCmd.Name():        tasksCmd,
		contextCmd.Name():      contextCmd,
		completeCmd.Name():     completeCmd,
		memoryListCmd.Name():   memoryListCmd,
		memoryAddCmd.Name():    memoryAddCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Auto-suppress logging for commands that produce structured output (table/JSON)
	// to prevent log noise from mixing with printer output in the terminal.
	// Users can still enable logging with --debug.
	printerCommands := map[string]bool{
		"status":        true,
		"history":       true,
		"check-network": true,
		"verify show":   true,
		"tasks":         true,
		"context":       true,
		"memory list":   true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(ctx, *rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(ctx context.Context, config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	// If logger not disabled use logrus logger.
	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // By default logger goes to stderr (so it can split stdout prints).
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	// Log format.
	noColor := config.NoColor || !isTerminal(config.Stderr)
	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			DisableColors: noColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled") // Will log only when debug enabled.

	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitCode maps command errors to the process exit code, halted runs exit
// with 2 so scripts can tell them from crashes.
func exitCode(err error) int {
	if errors.Is(err, model.ErrHalted) {
		return 2
	}
	return 1
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
