package conventions

import "path/filepath"

const (
	// DataDir is the ralph data directory name (relative to the project root).
	DataDir = ".ralph"
	// GlobalDataDir is the ralph user level directory name (relative to home).
	GlobalDataDir = ".ralph"

	// Run files.

	// StateFile is the run state filename.
	StateFile = "state.json"
	// CheckpointFile is the live checkpoint filename.
	CheckpointFile = "checkpoint.json"
	// HistoryFile is the append only audit log filename.
	HistoryFile = "history.jsonl"
	// TasksFile is the batch task list filename.
	TasksFile = "tasks.json"
	// OutputFile is the last agent output filename.
	OutputFile = "output.txt"
	// MemoryDBFile is the memory bank SQLite database filename.
	MemoryDBFile = "memory.db"
	// ConfigFile is the settings filename.
	ConfigFile = "config.yaml"
	// AgentEnvFile is the optional dotenv file with the agent environment.
	AgentEnvFile = "agent.env"
	// HooksDir is the subdirectory for lifecycle hook scripts.
	HooksDir = "hooks"
	// ForceOfflineFile makes the connectivity prober report unreachable while it exists.
	ForceOfflineFile = "force-offline"

	// ForceOfflineEnv makes the connectivity prober report unreachable when set to a true value.
	ForceOfflineEnv = "RALPH_FORCE_OFFLINE"
)

// RunDir returns the ralph data directory of a project.
func RunDir(root string) string {
	return filepath.Join(root, DataDir)
}

// RunFilePath returns the full path to a file inside the project ralph directory.
func RunFilePath(root, filename string) string {
	return filepath.Join(RunDir(root), filename)
}

// HookPath returns the path of a hook script.
func HookPath(root, hook string) string {
	return filepath.Join(RunDir(root), HooksDir, hook)
}

// ExcludedDirs are the project directories ignored when looking for workspace changes.
var ExcludedDirs = []string{DataDir, ".git", "node_modules", "__pycache__", ".venv", "vendor", "target", "dist"}
