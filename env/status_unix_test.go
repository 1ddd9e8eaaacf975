//go:build unix

package env

import (
	"syscall"
	"testing"
	"time"

	"github.com/criyle/go-sandbox/runner"
	"github.com/criyle/judgebox/envexec"
)

// wait status layout: exit code in bits 8-15, terminating signal in bits 0-6
func exitedWith(code int) syscall.WaitStatus {
	return syscall.WaitStatus(code << 8)
}

func signalledWith(sig syscall.Signal) syscall.WaitStatus {
	return syscall.WaitStatus(sig)
}

func TestClassify(t *testing.T) {
	limit := envexec.Limit{Time: time.Second, Memory: 64 << 20}
	tests := []struct {
		name   string
		ws     syscall.WaitStatus
		killed bool
		time   time.Duration
		memory runner.Size
		want   runner.Status
	}{
		{"exit zero", exitedWith(0), false, 0, 0, runner.StatusNormal},
		{"exit nonzero", exitedWith(3), false, 0, 0, runner.StatusNonzeroExitStatus},
		{"cpu time over", exitedWith(0), false, 2 * time.Second, 0, runner.StatusTimeLimitExceeded},
		{"memory over", exitedWith(0), false, 0, 128 << 20, runner.StatusMemoryLimitExceeded},
		{"sigxcpu", signalledWith(syscall.SIGXCPU), false, 0, 0, runner.StatusTimeLimitExceeded},
		{"killed by deadline", signalledWith(syscall.SIGKILL), true, 0, 0, runner.StatusTimeLimitExceeded},
		{"killed over memory", signalledWith(syscall.SIGKILL), true, 0, 128 << 20, runner.StatusMemoryLimitExceeded},
		{"killed externally", signalledWith(syscall.SIGKILL), false, 0, 0, runner.StatusSignalled},
		{"sigxfsz", signalledWith(syscall.SIGXFSZ), false, 0, 0, runner.StatusOutputLimitExceeded},
		{"sigsys", signalledWith(syscall.SIGSYS), false, 0, 0, runner.StatusDisallowedSyscall},
		{"sigsegv", signalledWith(syscall.SIGSEGV), false, 0, 0, runner.StatusSignalled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := runner.Result{Time: tc.time, Memory: tc.memory}
			classify(&r, tc.ws, tc.killed, limit)
			if r.Status != tc.want {
				t.Fatalf("status = %v, want %v", r.Status, tc.want)
			}
		})
	}
}

func TestClassifyExitStatus(t *testing.T) {
	var r runner.Result
	classify(&r, exitedWith(42), false, envexec.Limit{})
	if r.ExitStatus != 42 {
		t.Fatalf("exit status = %d, want 42", r.ExitStatus)
	}
	r = runner.Result{}
	classify(&r, signalledWith(syscall.SIGSEGV), false, envexec.Limit{})
	if r.ExitStatus != int(syscall.SIGSEGV) {
		t.Fatalf("exit status = %d, want %d", r.ExitStatus, syscall.SIGSEGV)
	}
}
