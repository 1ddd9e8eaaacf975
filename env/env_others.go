//go:build !linux

package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/criyle/go-sandbox/runner"
	"github.com/criyle/judgebox/envexec"
	"go.uber.org/zap"
)

var _ envexec.Environment = &environment{}

type environment struct {
	workDir string
	logger  *zap.Logger
}

// New creates an os/exec backed environment. Seccomp and memory accounting
// are not available on this platform.
func New(c Config) (envexec.Environment, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(c.Seccomp) > 0 {
		logger.Warn("seccomp filter ignored on this platform")
	}
	if c.WorkDir != "" {
		if err := os.MkdirAll(c.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("env: create work dir: %w", err)
		}
	}
	return &environment{workDir: c.WorkDir, logger: logger}, nil
}

func (e *environment) Execve(c context.Context, param envexec.ExecveParam) (envexec.Process, error) {
	if len(param.Args) == 0 {
		return nil, fmt.Errorf("execve: empty args")
	}
	if param.ExecPath == "" {
		return nil, fmt.Errorf("execve: exec path required on this platform")
	}
	cmd := exec.CommandContext(c, param.ExecPath, param.Args[1:]...)
	cmd.Env = param.Env
	cmd.Dir = e.workDir
	if len(param.Files) > 0 {
		cmd.Stdin = param.Files[0]
	}
	if len(param.Files) > 1 {
		cmd.Stdout = param.Files[1]
	}
	if len(param.Files) > 2 {
		cmd.Stderr = param.Files[2]
	}
	if len(param.Files) > 3 {
		cmd.ExtraFiles = param.Files[3:]
	}

	sTime := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("execve: %w", err)
	}
	p := &process{
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		mTime := time.Now()
		err := cmd.Wait()
		p.result = runner.Result{
			Status:      runner.StatusNormal,
			SetUpTime:   mTime.Sub(sTime),
			RunningTime: time.Since(mTime),
		}
		if st := cmd.ProcessState; st != nil {
			p.result.Time = st.UserTime() + st.SystemTime()
			p.result.ExitStatus = st.ExitCode()
		}
		var exitErr *exec.ExitError
		switch {
		case c.Err() != nil:
			p.result.Status = runner.StatusTimeLimitExceeded
		case errors.As(err, &exitErr):
			if exitErr.ExitCode() < 0 {
				p.result.Status = runner.StatusSignalled
			} else {
				p.result.Status = runner.StatusNonzeroExitStatus
			}
		case err != nil:
			p.result.Status = runner.StatusRunnerError
			p.result.Error = err.Error()
		case param.Limit.Time > 0 && p.result.Time > param.Limit.Time:
			p.result.Status = runner.StatusTimeLimitExceeded
		}
	}()
	return p, nil
}
