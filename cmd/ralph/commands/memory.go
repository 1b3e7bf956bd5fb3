package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/memory"
	"github.com/slok/ralph/internal/model"
)

var memoryKinds = []string{string(model.MemoryKindEpisodic), string(model.MemoryKindError), string(model.MemoryKindSemantic)}

// NewMemoryCommand returns the memory parent command.
func NewMemoryCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("memory", "Work with the memory bank shared across iterations.")
}

type MemoryListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	allRuns bool
	kind    string
	search  string
	limit   int
	format  string
}

// NewMemoryListCommand returns the memory list command.
func NewMemoryListCommand(rootCmd *RootCommand, memoryCmd *kingpin.CmdClause) *MemoryListCommand {
	c := &MemoryListCommand{rootCmd: rootCmd}

	c.Cmd = memoryCmd.Command("list", "List the memories of the active run, newest first.").Default()
	c.Cmd.Flag("all-runs", "List the memories of every run.").BoolVar(&c.allRuns)
	c.Cmd.Flag("kind", "Only memories of this kind.").EnumVar(&c.kind, memoryKinds...)
	c.Cmd.Flag("search", "Only memories with every word of the query.").Short('s').StringVar(&c.search)
	c.Cmd.Flag("limit", "Maximum number of memories, 0 shows all.").Short('n').Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c MemoryListCommand) Name() string { return c.Cmd.FullCommand() }

func (c MemoryListCommand) Run(ctx context.Context) error {
	svc, closeFn, err := c.rootCmd.newMemoryService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	mems, err := svc.List(ctx, memory.ListRequest{
		AllRuns: c.allRuns,
		Kind:    model.MemoryKind(c.kind),
		Search:  c.search,
		Limit:   c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list memories: %w", err)
	}

	if err := c.rootCmd.Printer(c.format).PrintMemories(mems); err != nil {
		return fmt.Errorf("could not print memories: %w", err)
	}

	return nil
}

type MemoryAddCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	kind    string
	content []string
}

// NewMemoryAddCommand returns the memory add command.
func NewMemoryAddCommand(rootCmd *RootCommand, memoryCmd *kingpin.CmdClause) *MemoryAddCommand {
	c := &MemoryAddCommand{rootCmd: rootCmd}

	c.Cmd = memoryCmd.Command("add", "Add a memory to the active run, the next iterations will see it.")
	c.Cmd.Flag("kind", "Memory kind.").Default(string(model.MemoryKindSemantic)).EnumVar(&c.kind, memoryKinds...)
	c.Cmd.Arg("content", "Memory text.").Required().StringsVar(&c.content)

	return c
}

func (c MemoryAddCommand) Name() string { return c.Cmd.FullCommand() }

func (c MemoryAddCommand) Run(ctx context.Context) error {
	svc, closeFn, err := c.rootCmd.newMemoryService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	m, err := svc.Add(ctx, memory.AddRequest{
		Kind:    model.MemoryKind(c.kind),
		Content: strings.Join(c.content, " "),
	})
	if err != nil {
		return fmt.Errorf("could not add memory: %w", err)
	}

	msg := fmt.Sprintf("Added %s memory %s on iteration %d", m.Kind, m.ID, m.Iteration)
	if err := c.rootCmd.Printer(formatTable).PrintMessage(msg); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}

func (c RootCommand) newMemoryService(ctx context.Context) (*memory.Service, func(), error) {
	noop := func() {}

	repo, err := c.RunRepository()
	if err != nil {
		return nil, noop, err
	}

	mems, err := c.MemoryRepository(ctx)
	if err != nil {
		return nil, noop, err
	}
	closeFn := func() {
		if err := mems.Close(); err != nil {
			c.Logger.Warningf("Could not close memory bank: %s", err)
		}
	}

	svc, err := memory.NewService(memory.ServiceConfig{
		Repository: repo,
		Memories:   mems,
		Logger:     c.Logger,
	})
	if err != nil {
		closeFn()
		return nil, noop, fmt.Errorf("could not create service: %w", err)
	}

	return svc, closeFn, nil
}
