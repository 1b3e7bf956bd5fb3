package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.MemoryRepository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(migrations.MigratorConfig{DB: db, Logger: cfg.Logger})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// AddMemory stores a new memory bank entry.
func (r *Repository) AddMemory(ctx context.Context, m model.Memory) error {
	if m.ID == "" {
		return fmt.Errorf("memory id is required: %w", model.ErrNotValid)
	}
	if m.Content == "" {
		return fmt.Errorf("memory content is required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO memories (id, run_id, task_id, iteration, kind, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.RunID,
		m.TaskID,
		m.Iteration,
		string(m.Kind),
		m.Content,
		m.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: memories.") {
			return fmt.Errorf("memory already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert memory: %w", err)
	}

	r.logger.Debugf("Stored %s memory for iteration %d", m.Kind, m.Iteration)
	return nil
}

// ListMemories returns the memories matching the query, newest first.
func (r *Repository) ListMemories(ctx context.Context, q model.MemoryQuery) ([]model.Memory, error) {
	var (
		conds []string
		args  []any
	)
	if q.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(q.Kind))
	}

	query := `SELECT id, run_id, task_id, iteration, kind, content, created_at FROM memories`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query memories: %w", err)
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		var (
			m         model.Memory
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.RunID, &m.TaskID, &m.Iteration, &kind, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		m.Kind = model.MemoryKind(kind)
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		memories = append(memories, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return memories, nil
}

// ResetMemories removes every memory bank entry.
func (r *Repository) ResetMemories(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("could not reset memories: %w", err)
	}

	r.logger.Debugf("Memory bank reset")
	return nil
}
