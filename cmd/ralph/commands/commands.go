package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/ralph/internal/conventions"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/printer"
	"github.com/slok/ralph/internal/storage/file"
	storageio "github.com/slok/ralph/internal/storage/io"
	"github.com/slok/ralph/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug            bool
	NoLog            bool
	NoColor          bool
	LoggerType       string
	Dir              string
	ConfigPath       string
	GlobalConfigPath string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("dir", "Project root directory, the run files live in its .ralph directory.").Short('C').Default(".").StringVar(&c.Dir)
	app.Flag("config", "Project settings file (defaults to <dir>/.ralph/config.yaml).").StringVar(&c.ConfigPath)

	defaultGlobalConfig := filepath.Join(homedir.HomeDir(), conventions.GlobalDataDir, conventions.ConfigFile)
	app.Flag("global-config", "User level settings file, applied before the project settings.").Default(defaultGlobalConfig).StringVar(&c.GlobalConfigPath)

	return c
}

// ProjectDir returns the absolute project root.
func (c RootCommand) ProjectDir() (string, error) {
	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return "", fmt.Errorf("could not resolve project dir: %w", err)
	}
	return dir, nil
}

// LoadSettings returns the default settings with the user level and project
// settings files applied on top, missing files are ignored.
func (c RootCommand) LoadSettings(ctx context.Context) (model.Settings, error) {
	dir, err := c.ProjectDir()
	if err != nil {
		return model.Settings{}, err
	}

	projectConfig := c.ConfigPath
	if projectConfig == "" {
		projectConfig = conventions.RunFilePath(dir, conventions.ConfigFile)
	}

	settings := model.DefaultSettings()
	for _, path := range []string{c.GlobalConfigPath, projectConfig} {
		if path == "" {
			continue
		}

		fsys, name, err := fileFS(path)
		if err != nil {
			return model.Settings{}, err
		}

		s, err := storageio.NewSettingsYAMLRepository(fsys).GetSettings(ctx, name, settings)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return model.Settings{}, fmt.Errorf("could not load settings from %s: %w", path, err)
		}
		c.Logger.Debugf("Loaded settings from %s", path)
		settings = s
	}

	return settings, nil
}

// RunRepository returns the project run files repository.
func (c RootCommand) RunRepository() (*file.Repository, error) {
	dir, err := c.ProjectDir()
	if err != nil {
		return nil, err
	}

	repo, err := file.NewRepository(file.RepositoryConfig{
		Root:   dir,
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	return repo, nil
}

// MemoryRepository returns the project memory bank, it must be closed after use.
func (c RootCommand) MemoryRepository(ctx context.Context) (*sqlite.Repository, error) {
	dir, err := c.ProjectDir()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(conventions.RunDir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("could not create run dir: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: conventions.RunFilePath(dir, conventions.MemoryDBFile),
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create memory bank: %w", err)
	}
	return repo, nil
}

// Printer returns the output printer for a format.
func (c RootCommand) Printer(format string) printer.Printer {
	switch format {
	case formatJSON:
		return printer.NewJSONPrinter(c.Stdout)
	default:
		return printer.NewTablePrinter(c.Stdout)
	}
}

// fileFS returns a filesystem rooted at the file directory and the file name in it.
func fileFS(path string) (fs.FS, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("could not resolve %s: %w", path, err)
	}
	return os.DirFS(filepath.Dir(abs)), filepath.Base(abs), nil
}
