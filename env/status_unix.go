//go:build unix

package env

import (
	"syscall"

	"github.com/criyle/go-sandbox/runner"
	"github.com/criyle/judgebox/envexec"
	"golang.org/x/sys/unix"
)

// classify maps a reaped child to a runner status. killed reports whether the
// child received SIGKILL from the environment because its context ended. A
// killed child over its memory limit stays memory limit exceeded.
func classify(r *runner.Result, ws syscall.WaitStatus, killed bool, limit envexec.Limit) {
	r.Status = runner.StatusNormal
	if limit.Time > 0 && r.Time > limit.Time {
		r.Status = runner.StatusTimeLimitExceeded
	}
	if limit.Memory > 0 && r.Memory > limit.Memory {
		r.Status = runner.StatusMemoryLimitExceeded
	}

	switch {
	case ws.Exited():
		if status := ws.ExitStatus(); status != 0 {
			r.Status = runner.StatusNonzeroExitStatus
			r.ExitStatus = status
		}

	case ws.Signaled():
		sig := ws.Signal()
		switch {
		case sig == unix.SIGKILL && killed:
			if r.Status != runner.StatusMemoryLimitExceeded {
				r.Status = runner.StatusTimeLimitExceeded
			}
		case sig == unix.SIGXCPU:
			r.Status = runner.StatusTimeLimitExceeded
		case sig == unix.SIGXFSZ:
			r.Status = runner.StatusOutputLimitExceeded
		case sig == unix.SIGSYS:
			r.Status = runner.StatusDisallowedSyscall
		default:
			r.Status = runner.StatusSignalled
		}
		r.ExitStatus = int(sig)
	}
}
