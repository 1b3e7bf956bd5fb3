package io

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"

	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/utils/env"
)

// AgentEnvFileRepository loads the agent environment from dotenv files, it keeps
// agent credentials out of the settings file.
type AgentEnvFileRepository struct {
	fs fs.FS
}

// NewAgentEnvFileRepository creates a new dotenv agent environment repository.
func NewAgentEnvFileRepository(filesystem fs.FS) *AgentEnvFileRepository {
	return &AgentEnvFileRepository{fs: filesystem}
}

// GetAgentEnv returns the variables of a dotenv file.
func (r *AgentEnvFileRepository) GetAgentEnv(ctx context.Context, path string) (map[string]string, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		if errorsIsNotExist(err) {
			return nil, fmt.Errorf("agent env file %s: %w", path, model.ErrNotFound)
		}
		return nil, fmt.Errorf("opening agent env file: %w", err)
	}
	defer f.Close()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	vars, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing agent env file: %w", err)
	}
	if err := env.Validate(vars); err != nil {
		return nil, fmt.Errorf("invalid agent env file: %s: %w", err, model.ErrNotValid)
	}

	return vars, nil
}
