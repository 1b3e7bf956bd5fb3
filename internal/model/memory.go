package model

import "time"

// MemoryKind is the category of a memory bank entry.
type MemoryKind string

const (
	// MemoryKindEpisodic records what happened on an iteration.
	MemoryKindEpisodic MemoryKind = "episodic"
	// MemoryKindError records a rejection or failure the agent should not repeat.
	MemoryKindError MemoryKind = "error"
	// MemoryKindSemantic records a durable fact about the project.
	MemoryKindSemantic MemoryKind = "semantic"
)

// Memory is a memory bank entry shared across iterations of a run.
type Memory struct {
	ID        string
	RunID     string
	TaskID    string
	Iteration int
	Kind      MemoryKind
	Content   string
	CreatedAt time.Time
}

// MemoryQuery filters memory bank entries.
type MemoryQuery struct {
	RunID string
	Kind  MemoryKind // Empty means any kind.
	Limit int        // 0 means no limit.
}
