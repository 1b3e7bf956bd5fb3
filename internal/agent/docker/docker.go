package docker

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/conventions"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/utils/env"
	fileutil "github.com/slok/ralph/internal/utils/file"
)

const (
	workspaceDir   = "/workspace"
	promptFileName = "prompt.md"
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// RunnerConfig is the configuration for the Docker agent runner.
type RunnerConfig struct {
	Client  DockerClient
	Image   string
	Command string
	Args    []string
	// WorkDir is the project root, bind mounted as the container workspace.
	WorkDir  string
	Env      map[string]string
	SkipPull bool
	Stream   io.Writer
	Logger   log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	abs, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("invalid work dir: %w", err)
	}
	c.WorkDir = abs

	if c.Client == nil {
		// Create a default Docker client
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Stream == nil {
		c.Stream = io.Discard
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.Docker"})
	return nil
}

// Runner runs each agent invocation in a fresh container with the project mounted.
type Runner struct {
	client   DockerClient
	image    string
	command  string
	args     []string
	workDir  string
	env      map[string]string
	skipPull bool
	stream   io.Writer
	logger   log.Logger

	pullOnce sync.Once
	pullErr  error
}

// NewRunner returns a new Docker agent runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		client:   cfg.Client,
		image:    cfg.Image,
		command:  cfg.Command,
		args:     cfg.Args,
		workDir:  cfg.WorkDir,
		env:      cfg.Env,
		skipPull: cfg.SkipPull,
		stream:   cfg.Stream,
		logger:   cfg.Logger,
	}, nil
}

// Run runs the agent in a container until it exits or the invocation times out.
func (r *Runner) Run(ctx context.Context, inv agent.Invocation) (*agent.Result, error) {
	if err := r.pull(ctx); err != nil {
		return nil, err
	}

	args, useStdin := agent.ExpandArgs(r.args, inv)
	cmd := append([]string{r.command}, args...)
	if useStdin {
		promptPath := conventions.RunFilePath(r.workDir, promptFileName)
		if err := fileutil.WriteAtomic(promptPath, []byte(inv.Prompt), 0o644); err != nil {
			return nil, fmt.Errorf("could not write prompt file: %w", err)
		}
		containerPrompt := workspaceDir + "/" + conventions.DataDir + "/" + promptFileName
		cmd = append([]string{"sh", "-c", `exec "$@" < ` + containerPrompt, "agent"}, cmd...)
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	containerName := fmt.Sprintf("ralph-%s-%s", inv.Persona, strings.ToLower(id))

	containerConfig := &container.Config{
		Image:      r.image,
		Cmd:        cmd,
		Env:        env.List(env.Merge(r.env, inv.Env)),
		WorkingDir: workspaceDir,
		User:       hostUser(),
	}
	hostConfig := &container.HostConfig{
		Binds: []string{r.workDir + ":" + workspaceDir},
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		// Use a fresh context, the run one could be cancelled already.
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warningf("Could not remove container %s: %s", containerName, err)
		}
	}()

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	r.logger.Debugf("Started %s agent container %s", inv.Persona, containerName)

	res := &agent.Result{}
	waitC, errC := r.client.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case w := <-waitC:
		res.ExitCode = int(w.StatusCode)
	case err := <-errC:
		if runCtx.Err() == nil {
			return nil, fmt.Errorf("failed waiting container: %w", err)
		}
		r.kill(resp.ID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.TimedOut = true
		res.ExitCode = -1
	case <-runCtx.Done():
		r.kill(resp.ID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.TimedOut = true
		res.ExitCode = -1
	}
	res.Duration = time.Since(start)

	output, err := r.logs(resp.ID)
	if err != nil {
		return nil, err
	}
	res.Output = output
	_, _ = io.WriteString(r.stream, output)

	return res, nil
}

func (r *Runner) pull(ctx context.Context) error {
	if r.skipPull {
		return nil
	}

	r.pullOnce.Do(func() {
		r.logger.Infof("Pulling agent image: %s", r.image)
		pullResp, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
		if err != nil {
			r.pullErr = fmt.Errorf("failed to pull image %s: %w", r.image, err)
			return
		}
		// Consume the pull response to ensure it completes
		_, _ = io.Copy(io.Discard, pullResp)
		pullResp.Close()
	})

	return r.pullErr
}

func (r *Runner) kill(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.client.ContainerKill(ctx, id, "SIGKILL"); err != nil {
		r.logger.Warningf("Could not kill container %s: %s", id, err)
	}
}

func (r *Runner) logs(id string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc, err := r.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("failed to get container logs: %w", err)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read container logs: %w", err)
	}

	return out.String(), nil
}

func hostUser() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	uid, gid := os.Getuid(), os.Getgid()
	if uid < 0 || gid < 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", uid, gid)
}
