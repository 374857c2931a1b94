package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"time"

	"github.com/go-logr/logr"
)

type localOption func(*local)

func WithLocalLogger(logger logr.Logger) func(*local) {
	return func(l *local) {
		l.logger = logger
	}
}

// WithTmpDir sets the directory job workspaces are created in.
func WithTmpDir(dir string) func(*local) {
	return func(l *local) {
		l.tmpDir = dir
	}
}

type local struct {
	logger logr.Logger
	tmpDir string
	env    []string
}

// NewLocal returns a runtime which executes commands as host processes.
// Every job gets its own temporary workspace directory.
func NewLocal(opts ...localOption) *local {
	l := &local{
		logger: logr.Discard(),
		env:    os.Environ(),
	}

	for _, o := range opts {
		o(l)
	}

	return l
}

func defaultShell() []string {
	if goruntime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}

	return []string{"sh", "-c"}
}

func (l *local) Acquire(ctx context.Context, spec EnvironmentSpec) (Environment, error) {
	dir, err := os.MkdirTemp(l.tmpDir, fmt.Sprintf("rigor-%s-", spec.JobID))
	if err != nil {
		return nil, Unavailable(spec.Selector, err)
	}

	l.logger.V(3).Info("local workspace created", "job", spec.JobName, "workspace", dir)

	return &localEnvironment{
		spec:      spec,
		workspace: dir,
		env:       l.env,
		logger:    l.logger,
	}, nil
}

type localEnvironment struct {
	spec      EnvironmentSpec
	workspace string
	env       []string
	logger    logr.Logger
}

func (e *localEnvironment) Workspace() string {
	return e.workspace
}

func (e *localEnvironment) Exec(ctx context.Context, command Command) (int, error) {
	args := shellCommand(e.spec.Shell, defaultShell(), command.Script)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = e.workspace
	if command.WorkDir != "" {
		cmd.Dir = command.WorkDir
		if !filepath.IsAbs(command.WorkDir) {
			cmd.Dir = filepath.Join(e.workspace, command.WorkDir)
		}
	}

	cmd.Env = append(append(append([]string{}, e.env...), envSlice(e.spec.Env)...), envSlice(command.Env)...)
	cmd.Stdout = command.Stdout
	cmd.Stderr = command.Stderr
	cmd.WaitDelay = 5 * time.Second

	e.logger.V(3).Info("exec local command", "job", e.spec.JobName, "command", args, "dir", cmd.Dir)
	err := cmd.Run()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	if err != nil {
		return -1, fmt.Errorf("failed to execute command: %w", err)
	}

	return 0, nil
}

func (e *localEnvironment) Release(ctx context.Context) error {
	e.logger.V(3).Info("remove local workspace", "job", e.spec.JobName, "workspace", e.workspace)
	return os.RemoveAll(e.workspace)
}
