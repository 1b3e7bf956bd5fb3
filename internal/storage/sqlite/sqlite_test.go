package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/sqlite"
)

func memoryFixture(id, runID string, kind model.MemoryKind, createdAt time.Time) model.Memory {
	return model.Memory{
		ID:        id,
		RunID:     runID,
		TaskID:    "TASK-001",
		Iteration: 1,
		Kind:      kind,
		Content:   "memory " + id,
		CreatedAt: createdAt,
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "memory.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestNewRepository(t *testing.T) {
	tests := map[string]struct {
		cfg    sqlite.RepositoryConfig
		expErr bool
	}{
		"missing db path should fail": {
			cfg:    sqlite.RepositoryConfig{},
			expErr: true,
		},
		"nested db path should be created": {
			cfg: sqlite.RepositoryConfig{
				DBPath: filepath.Join(t.TempDir(), "a", "b", "memory.db"),
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			repo, err := sqlite.NewRepository(context.Background(), test.cfg)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, repo.Close())
		})
	}
}

func TestRepositoryReopen(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "memory.db")

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(err)
	require.NoError(repo.AddMemory(ctx, memoryFixture("m1", "r1", model.MemoryKindEpisodic, time.Now())))
	require.NoError(repo.Close())

	// Migrations already applied should not fail and data should survive.
	repo, err = sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(err)
	defer repo.Close()

	got, err := repo.ListMemories(ctx, model.MemoryQuery{})
	require.NoError(err)
	require.Len(got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestRepositoryMemories(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		memories []model.Memory
		query    model.MemoryQuery
		expIDs   []string
		expErr   bool
	}{
		"listing without filters should return every memory newest first": {
			memories: []model.Memory{
				memoryFixture("m1", "r1", model.MemoryKindEpisodic, base),
				memoryFixture("m2", "r1", model.MemoryKindError, base.Add(time.Second)),
				memoryFixture("m3", "r2", model.MemoryKindEpisodic, base.Add(2*time.Second)),
			},
			expIDs: []string{"m3", "m2", "m1"},
		},
		"listing by run should filter other runs": {
			memories: []model.Memory{
				memoryFixture("m1", "r1", model.MemoryKindEpisodic, base),
				memoryFixture("m2", "r2", model.MemoryKindEpisodic, base.Add(time.Second)),
			},
			query:  model.MemoryQuery{RunID: "r1"},
			expIDs: []string{"m1"},
		},
		"listing by kind with limit should return the newest matching": {
			memories: []model.Memory{
				memoryFixture("m1", "r1", model.MemoryKindError, base),
				memoryFixture("m2", "r1", model.MemoryKindEpisodic, base.Add(time.Second)),
				memoryFixture("m3", "r1", model.MemoryKindError, base.Add(2*time.Second)),
			},
			query:  model.MemoryQuery{Kind: model.MemoryKindError, Limit: 1},
			expIDs: []string{"m3"},
		},
		"duplicated ids should fail": {
			memories: []model.Memory{
				memoryFixture("m1", "r1", model.MemoryKindEpisodic, base),
				memoryFixture("m1", "r1", model.MemoryKindEpisodic, base),
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()
			repo := newRepo(t)

			var err error
			for _, m := range test.memories {
				if err = repo.AddMemory(ctx, m); err != nil {
					break
				}
			}
			if test.expErr {
				assert.ErrorIs(err, model.ErrAlreadyExists)
				return
			}
			require.NoError(err)

			got, err := repo.ListMemories(ctx, test.query)
			require.NoError(err)

			gotIDs := []string{}
			for _, m := range got {
				gotIDs = append(gotIDs, m.ID)
			}
			assert.Equal(test.expIDs, gotIDs)
		})
	}
}

func TestRepositoryResetMemories(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(repo.AddMemory(ctx, memoryFixture("m1", "r1", model.MemoryKindEpisodic, time.Now())))
	require.NoError(repo.ResetMemories(ctx))

	got, err := repo.ListMemories(ctx, model.MemoryQuery{})
	require.NoError(err)
	assert.Empty(t, got)
}
