package env

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/criyle/go-sandbox/pkg/forkexec"
	"github.com/criyle/go-sandbox/pkg/rlimit"
	"github.com/criyle/go-sandbox/runner"
	"github.com/criyle/judgebox/envexec"
	"github.com/prometheus/procfs"
	"go.uber.org/zap"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

var _ envexec.Environment = &environment{}

// dataCeiling scales the memory limit into RLIMIT_DATA. The limit itself is
// enforced on the sampled resident peak, the rlimit only stops runaway
// reservations.
const dataCeiling = 4

type environment struct {
	workDir string
	seccomp *syscall.SockFprog
	proc    procfs.FS
	logger  *zap.Logger
}

// New creates the forkexec backed environment
func New(c Config) (envexec.Environment, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.WorkDir != "" {
		if err := os.MkdirAll(c.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("env: create work dir: %w", err)
		}
	}
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("env: open procfs: %w", err)
	}
	e := &environment{
		workDir: c.WorkDir,
		proc:    fs,
		logger:  logger,
	}
	if len(c.Seccomp) > 0 {
		e.seccomp = toSockFprog(c.Seccomp)
		logger.Info("seccomp filter enabled", zap.Int("instructions", len(c.Seccomp)))
	}
	return e, nil
}

func (e *environment) Execve(c context.Context, param envexec.ExecveParam) (envexec.Process, error) {
	if len(param.Args) == 0 {
		return nil, fmt.Errorf("execve: empty args")
	}
	sTime := time.Now()
	rLimits := rlimit.RLimits{
		CPU:         uint64(param.Limit.Time.Truncate(time.Second)/time.Second) + 1,
		Data:        param.Limit.Memory.Byte() * dataCeiling,
		FileSize:    param.Limit.Output.Byte(),
		Stack:       param.Limit.Stack.Byte(),
		DisableCore: true,
	}

	args := param.Args
	var execFile uintptr
	if param.ExecFile != nil {
		execFile = param.ExecFile.Fd()
	} else {
		if param.ExecPath == "" {
			return nil, fmt.Errorf("execve: neither exec file nor exec path")
		}
		// without fexecve the runner resolves argv[0]
		args = append([]string{param.ExecPath}, args[1:]...)
	}

	ch := &forkexec.Runner{
		Args:       args,
		Env:        param.Env,
		ExecFile:   execFile,
		Files:      getFdArray(param.Files),
		WorkDir:    e.workDir,
		RLimits:    rLimits.PrepareRLimit(),
		Seccomp:    e.seccomp,
		NoNewPrivs: true,
	}

	pid, err := ch.Start()
	if err != nil {
		return nil, fmt.Errorf("execve: %w", err)
	}
	p := &process{
		pid:  pid,
		done: make(chan struct{}),
	}
	// the vfork child has exec'd by now so its status describes its own image
	if proc, err := e.proc.Proc(pid); err == nil {
		p.sample = func() (envexec.Usage, bool) {
			return sampleProc(proc)
		}
		p.Usage()
	}
	go e.wait(c, p, param.Limit, sTime)
	return p, nil
}

func (e *environment) wait(c context.Context, p *process, limit envexec.Limit, sTime time.Time) {
	defer close(p.done)
	mTime := time.Now()

	exited := make(chan struct{})
	go func() {
		select {
		case <-c.Done():
		case <-exited:
			return
		}
		p.kill(func(pid int) { unix.Kill(pid, unix.SIGKILL) })
	}()

	// wait without reaping so the pid cannot be recycled under the killer
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, p.pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err != unix.EINTR {
			break
		}
	}
	wasKilled, peak := p.reap()
	close(exited)

	var (
		wstatus syscall.WaitStatus
		rusage  syscall.Rusage
		err     error
	)
	for {
		_, err = syscall.Wait4(p.pid, &wstatus, 0, &rusage)
		if err != syscall.EINTR {
			break
		}
	}
	if err != nil {
		e.logger.Error("wait4 failed", zap.Int("pid", p.pid), zap.Error(err))
		p.result.Status = runner.StatusRunnerError
		p.result.Error = err.Error()
		return
	}
	fTime := time.Now()
	p.result = runner.Result{
		Time:        time.Duration(rusage.Utime.Nano() + rusage.Stime.Nano()),
		Memory:      e.peakMemory(runner.Size(rusage.Maxrss<<10), peak), // linux reports KiB
		SetUpTime:   mTime.Sub(sTime),
		RunningTime: fTime.Sub(mTime),
	}
	classify(&p.result, wstatus, wasKilled, limit)
}

// peakMemory picks the child's own resident peak. A vfork child inherits the
// judge's high-water mark into ru_maxrss, so maxrss only counts when it is
// above what the judge itself ever held. Otherwise the sampled peak is used.
func (e *environment) peakMemory(maxrss, sampled envexec.Size) envexec.Size {
	self, err := e.proc.Self()
	if err != nil {
		e.logger.Debug("read own procfs entry", zap.Error(err))
		return max(maxrss, sampled)
	}
	status, err := self.NewStatus()
	if err != nil {
		e.logger.Debug("read own status", zap.Error(err))
		return max(maxrss, sampled)
	}
	if host := envexec.Size(status.VmHWM); maxrss > host && maxrss > sampled {
		return maxrss
	}
	return sampled
}

// sampleProc reads the resident high-water mark and cpu time of a live child
func sampleProc(proc procfs.Proc) (envexec.Usage, bool) {
	status, err := proc.NewStatus()
	if err != nil {
		return envexec.Usage{}, false
	}
	u := envexec.Usage{Memory: envexec.Size(status.VmHWM)}
	if stat, err := proc.Stat(); err == nil {
		u.Time = time.Duration(stat.CPUTime() * float64(time.Second))
	}
	return u, true
}

func getFdArray(fd []*os.File) []uintptr {
	r := make([]uintptr, 0, len(fd))
	for _, f := range fd {
		r = append(r, f.Fd())
	}
	return r
}

func toSockFprog(raw []bpf.RawInstruction) *syscall.SockFprog {
	f := make([]syscall.SockFilter, 0, len(raw))
	for _, in := range raw {
		f = append(f, syscall.SockFilter{
			Code: in.Op,
			Jt:   in.Jt,
			Jf:   in.Jf,
			K:    in.K,
		})
	}
	return &syscall.SockFprog{
		Len:    uint16(len(f)),
		Filter: &f[0],
	}
}
